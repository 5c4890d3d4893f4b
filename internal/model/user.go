package model

import "time"

// User is the identity anchor for the challenge. Users are created implicitly
// the first time a magic link is issued or consumed for an unseen email; this
// subsystem never deletes them.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	Team      *string   `json:"team,omitempty" db:"team"`
	IsAdmin   bool      `json:"is_admin" db:"is_admin"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
