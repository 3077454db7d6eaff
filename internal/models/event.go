package models

import "time"

// ExternalEvent — событие из внешнего календарного фида.
type ExternalEvent struct {
	ID          string    `json:"id"`
	CalendarID  string    `json:"calendar_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Etag        string    `json:"etag"`
	Raw         string    `json:"-"`
}
