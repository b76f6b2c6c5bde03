package hub

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/parleychat/parley/internal/models"
)

// Event types carried on the fan-out channel.
const (
	EventMessage  = "message"
	EventPresence = "presence"
)

// Event is the wire format delivered to WebSocket subscribers and relayed
// across instances via Redis. The ULID id gives consumers a sortable,
// globally unique event identity.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp int64  `json:"ts"`

	// Message fields.
	RoomID    int64  `json:"room_id,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
	SenderID  int64  `json:"sender_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Content   string `json:"content,omitempty"`

	// Presence fields.
	UserID   int64 `json:"user_id,omitempty"`
	IsOnline bool  `json:"is_online,omitempty"`
}

// NewMessageEvent builds a message event from a persisted message.
func NewMessageEvent(msg *models.Message, username string) Event {
	return Event{
		ID:        ulid.Make().String(),
		Type:      EventMessage,
		Timestamp: msg.CreatedAt.UnixMilli(),
		RoomID:    msg.RoomID,
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Username:  username,
		Content:   msg.Content,
	}
}

// NewPresenceEvent builds an online/offline transition event.
func NewPresenceEvent(userID int64, username string, online bool) Event {
	return Event{
		ID:        ulid.Make().String(),
		Type:      EventPresence,
		Timestamp: time.Now().UnixMilli(),
		UserID:    userID,
		Username:  username,
		IsOnline:  online,
	}
}
