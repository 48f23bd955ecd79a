package model

import "time"

// Student is the student profile read from the data store. Registration and
// login live in a separate identity service; this backend only reads.
type Student struct {
	ID           int       `json:"id"`
	Identifier   string    `json:"identifier"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
