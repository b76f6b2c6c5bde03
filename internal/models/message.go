package models

import "time"

// Message is an immutable chat message. Ordering within a room is
// (CreatedAt, ID) ascending; the id breaks ties between messages persisted
// in the same instant.
type Message struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"room_id"`
	SenderID  int64     `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
