package models

import "time"

// SessionSummary is the listing view of a stored research session.
type SessionSummary struct {
	ID        string    `db:"id"`
	Query     string    `db:"query"`
	Mode      string    `db:"mode"`
	Phase     string    `db:"phase"`
	Closed    bool      `db:"closed"`
	UpdatedAt time.Time `db:"-"`
}
