package model

import "time"

// StepEntry is one user's step count for one day. Entries upsert per
// (user, day); re-recording a day replaces the count.
type StepEntry struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Day       string    `json:"day" db:"day"` // YYYY-MM-DD
	Count     int64     `json:"count" db:"count"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
