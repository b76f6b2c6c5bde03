package models

import (
	"fmt"
	"time"
)

// RoomType distinguishes two-party private rooms from group rooms.
type RoomType string

const (
	RoomTypePrivate RoomType = "private"
	RoomTypeGroup   RoomType = "group"
)

// Room represents a conversation context. Private rooms carry a canonical
// pair-derived name and exactly two members; group rooms have a creator who
// acts as admin and must remain a member for the room's lifetime.
type Room struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      RoomType  `json:"type"`
	CreatorID *int64    `json:"creator_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PrivateRoomName returns the canonical name for the private room between two
// users. The pair is ordered by id so both call orders map to the same name,
// which (with the unique index on rooms.name) guarantees at most one private
// room per unordered pair.
func PrivateRoomName(userA, userB int64) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("private:%d:%d", userA, userB)
}
