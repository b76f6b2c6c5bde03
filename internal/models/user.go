package models

import "time"

// User represents a registered account. The password hash never leaves the
// server; IsOnline is flipped by the presence path on connect/disconnect.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsOnline     bool      `json:"is_online"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
