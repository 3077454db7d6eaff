package models

// EventFailure — ошибка обработки одного события фида; батч при этом продолжается.
type EventFailure struct {
	EventID string `json:"event_id"`
	Err     string `json:"error"`
}

// SyncReport summarizes one reconciliation pass over a calendar window.
type SyncReport struct {
	CalendarID string         `json:"calendar_id"`
	Created    int            `json:"created"`
	Updated    int            `json:"updated"`
	Unchanged  int            `json:"unchanged"`
	Stale      int            `json:"stale"`
	Flagged    int            `json:"flagged"`
	Failures   []EventFailure `json:"failures,omitempty"`
}

// IsZero reports whether the pass changed nothing (idempotent re-run).
func (r *SyncReport) IsZero() bool {
	return r.Created == 0 && r.Updated == 0 && r.Stale == 0 && r.Flagged == 0 && len(r.Failures) == 0
}
