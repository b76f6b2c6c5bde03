package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// MessageLog is the append-only per-room message history. Reads and writes
// are both gated on current membership.
type MessageLog struct {
	store store.DataStore
}

// NewMessageLog creates a message log over the given store.
func NewMessageLog(st store.DataStore) *MessageLog {
	return &MessageLog{store: st}
}

// Append records a message in a room. Content that is empty after trimming
// is dropped silently and Append returns (nil, nil); callers must treat a
// nil message as "nothing was sent". Non-members get ErrPermissionDenied
// no matter how they reached the room.
func (l *MessageLog) Append(ctx context.Context, roomID, senderID int64, content string) (*models.Message, error) {
	room, err := l.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, fmt.Errorf("%w: room %d", ErrNotFound, roomID)
	}

	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	isMember, err := l.store.IsMember(ctx, room.ID, senderID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, fmt.Errorf("%w: not a member of room %d", ErrPermissionDenied, roomID)
	}

	return l.store.CreateMessage(ctx, room.ID, senderID, content)
}

// ListByRoom returns up to limit messages from a room in ascending
// (created_at, id) order, restricted to members. A beforeID cursor pages
// backwards through history; zero means "the newest messages".
func (l *MessageLog) ListByRoom(ctx context.Context, roomID, requesterID int64, limit int, beforeID int64) ([]models.Message, error) {
	room, err := l.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, fmt.Errorf("%w: room %d", ErrNotFound, roomID)
	}

	isMember, err := l.store.IsMember(ctx, room.ID, requesterID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, fmt.Errorf("%w: not a member of room %d", ErrPermissionDenied, roomID)
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	return l.store.ListMessages(ctx, room.ID, limit, beforeID)
}
