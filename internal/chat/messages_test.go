package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/store"
)

func TestAppendAndListByRoom(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)
	log := NewMessageLog(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	room, err := reg.EnsurePrivateRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	m1, err := log.Append(ctx, room.ID, alice.ID, "hello")
	require.NoError(t, err)
	require.NotNil(t, m1)
	m2, err := log.Append(ctx, room.ID, bob.ID, "hi back")
	require.NoError(t, err)
	require.NotNil(t, m2)

	msgs, err := log.ListByRoom(ctx, room.ID, alice.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "hi back", msgs[1].Content)
	assert.Less(t, msgs[0].ID, msgs[1].ID)
}

func TestAppendBlankContentIsDropped(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)
	log := NewMessageLog(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	room, err := reg.EnsurePrivateRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	msg, err := log.Append(ctx, room.ID, alice.ID, "   \n\t ")
	require.NoError(t, err)
	assert.Nil(t, msg)

	msgs, err := log.ListByRoom(ctx, room.ID, alice.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAppendRequiresMembership(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)
	log := NewMessageLog(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	mallory := seedUser(t, st, "mallory")

	room, err := reg.EnsurePrivateRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = log.Append(ctx, room.ID, mallory.ID, "let me in")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = log.Append(ctx, 999, alice.ID, "hello?")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByRoomRequiresMembership(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)
	log := NewMessageLog(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	mallory := seedUser(t, st, "mallory")

	room, err := reg.EnsurePrivateRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = log.ListByRoom(ctx, room.ID, mallory.ID, 0, 0)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestListByRoomPagination(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)
	log := NewMessageLog(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	room, err := reg.EnsurePrivateRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	for i := 1; i <= 10; i++ {
		_, err := log.Append(ctx, room.ID, alice.ID, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	// Newest page first.
	page, err := log.ListByRoom(ctx, room.ID, bob.ID, 4, 0)
	require.NoError(t, err)
	require.Len(t, page, 4)
	assert.Equal(t, "msg 7", page[0].Content)
	assert.Equal(t, "msg 10", page[3].Content)

	// Cursor walks backwards.
	older, err := log.ListByRoom(ctx, room.ID, bob.ID, 4, page[0].ID)
	require.NoError(t, err)
	require.Len(t, older, 4)
	assert.Equal(t, "msg 3", older[0].Content)
	assert.Equal(t, "msg 6", older[3].Content)
}
