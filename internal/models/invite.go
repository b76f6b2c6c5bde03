package models

import "time"

// Invite is a single-use entry token. RoomID is nil for private-chat invites
// until redemption binds them to the room they resolved to. IsActive flips
// true->false exactly once, at redemption, and never reverses.
type Invite struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	IssuerID  int64     `json:"issuer_id"`
	RoomID    *int64    `json:"room_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
