package models

import (
	"database/sql"
	"time"
)

// Slot — локальная запись о временном слоте из внешнего календаря.
// Описательные поля (Start, End, Summary...) принадлежат фиду,
// поля брони (Status, OwningUserID, ClientData) — только координатору.
type Slot struct {
	ID              int64         `json:"id"`
	ExternalEventID string        `json:"external_event_id"`
	CalendarID      string        `json:"calendar_id"`
	Start           time.Time     `json:"start"`
	End             time.Time     `json:"end"`
	Summary         string        `json:"summary"`
	Description     string        `json:"description"`
	Location        string        `json:"location"`
	RawPayload      string        `json:"-"` // снимок события фида, только для диагностики
	Status          string        `json:"status"` // free, booked, unavailable
	OwningUserID    sql.NullInt64 `json:"owning_user_id"`
	ClientData      string        `json:"client_data"`
	ExternalVersion string        `json:"external_version"`
	NeedsReview     bool          `json:"needs_review"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Version         int64         `json:"version"`
}

// IsBooked reports whether the slot currently has an owner.
func (s *Slot) IsBooked() bool {
	return s.Status == StatusBooked
}

// OwnedBy reports whether the slot is booked by the given user.
func (s *Slot) OwnedBy(userID int64) bool {
	return s.Status == StatusBooked && s.OwningUserID.Valid && s.OwningUserID.Int64 == userID
}
