package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/store"
)

func seedUser(t *testing.T, st *store.MemoryStore, name string) *models.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), name, name+"@example.com", "hash")
	require.NoError(t, err)
	return u
}

func TestEnsurePrivateRoomIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	first, err := reg.EnsurePrivateRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoomTypePrivate, first.Type)

	// Same pair from either side resolves to the same room.
	second, err := reg.EnsurePrivateRoom(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	count, err := st.CountMembers(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEnsurePrivateRoomReusesRenamedRoom(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	// A pair room whose name no longer follows the canonical scheme.
	renamed, err := st.CreateRoom(ctx, "our chat", models.RoomTypePrivate, &alice.ID)
	require.NoError(t, err)
	for _, id := range []int64{alice.ID, bob.ID} {
		_, err := st.AddMember(ctx, renamed.ID, id)
		require.NoError(t, err)
	}

	// Reuse goes by participant intersection, so no second room appears.
	room, err := reg.EnsurePrivateRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, renamed.ID, room.ID)

	room, err = reg.EnsurePrivateRoom(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, renamed.ID, room.ID)
}

func TestEnsurePrivateRoomRejectsSelf(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)

	alice := seedUser(t, st, "alice")

	_, err := reg.EnsurePrivateRoom(ctx, alice.ID, alice.ID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEnsurePrivateRoomUnknownUser(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)

	alice := seedUser(t, st, "alice")

	_, err := reg.EnsurePrivateRoom(ctx, alice.ID, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateGroupRoomValidation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	tests := []struct {
		name    string
		room    string
		members []int64
		wantErr error
	}{
		{"empty name", "   ", []int64{bob.ID}, ErrValidation},
		{"no members", "standup", nil, ErrValidation},
		{"unknown member", "standup", []int64{999}, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.CreateGroupRoom(ctx, alice.ID, tt.room, tt.members)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateGroupRoomAddsCreatorAndMembers(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	carol := seedUser(t, st, "carol")

	room, err := reg.CreateGroupRoom(ctx, alice.ID, "standup", []int64{bob.ID, carol.ID, alice.ID})
	require.NoError(t, err)
	require.NotNil(t, room.CreatorID)
	assert.Equal(t, alice.ID, *room.CreatorID)

	count, err := st.CountMembers(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCreateGroupRoomNameConflict(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	_, err := reg.CreateGroupRoom(ctx, alice.ID, "standup", []int64{bob.ID})
	require.NoError(t, err)

	_, err = reg.CreateGroupRoom(ctx, bob.ID, "standup", []int64{alice.ID})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAddMembersCountsOnlyNew(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	carol := seedUser(t, st, "carol")

	room, err := reg.CreateGroupRoom(ctx, alice.ID, "standup", []int64{bob.ID})
	require.NoError(t, err)

	// bob is already in; only carol is new. Any member may add.
	added, err := reg.AddMembers(ctx, room.ID, bob.ID, []int64{bob.ID, carol.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
}

func TestAddMembersRequiresMembership(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	mallory := seedUser(t, st, "mallory")

	room, err := reg.CreateGroupRoom(ctx, alice.ID, "standup", []int64{bob.ID})
	require.NoError(t, err)

	_, err = reg.AddMembers(ctx, room.ID, mallory.ID, []int64{mallory.ID})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRemoveMemberCreatorOnly(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	carol := seedUser(t, st, "carol")

	room, err := reg.CreateGroupRoom(ctx, alice.ID, "standup", []int64{bob.ID, carol.ID})
	require.NoError(t, err)

	err = reg.RemoveMember(ctx, room.ID, bob.ID, carol.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = reg.RemoveMember(ctx, room.ID, alice.ID, alice.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, reg.RemoveMember(ctx, room.ID, alice.ID, carol.ID))
	isMember, err := st.IsMember(ctx, room.ID, carol.ID)
	require.NoError(t, err)
	assert.False(t, isMember)
}

func TestLeaveRules(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	room, err := reg.CreateGroupRoom(ctx, alice.ID, "standup", []int64{bob.ID})
	require.NoError(t, err)

	// The creator has to delete, not leave.
	err = reg.Leave(ctx, room.ID, alice.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, reg.Leave(ctx, room.ID, bob.ID))

	// Leaving twice is a NotFound, not a silent success.
	err = reg.Leave(ctx, room.ID, bob.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLeaveDeletesEmptyGroupRoom(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	room, err := reg.CreateGroupRoom(ctx, alice.ID, "standup", []int64{bob.ID})
	require.NoError(t, err)

	// Empty the room: creator removes themself via delete path is separate;
	// here the creator removes bob, then deletes. Instead simulate the
	// last-regular-member case with a creator-less room.
	require.NoError(t, st.RemoveMember(ctx, room.ID, alice.ID))

	require.NoError(t, reg.Leave(ctx, room.ID, bob.ID))

	got, err := st.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteRoomCreatorOnly(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	room, err := reg.CreateGroupRoom(ctx, alice.ID, "standup", []int64{bob.ID})
	require.NoError(t, err)

	err = reg.DeleteRoom(ctx, room.ID, bob.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, reg.DeleteRoom(ctx, room.ID, alice.ID))

	got, err := st.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMembersGatedOnMembership(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	mallory := seedUser(t, st, "mallory")

	room, err := reg.CreateGroupRoom(ctx, alice.ID, "standup", []int64{bob.ID})
	require.NoError(t, err)

	_, err = reg.Members(ctx, room.ID, mallory.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	members, err := reg.Members(ctx, room.ID, alice.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestRoomsForListsMemberships(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := NewRegistry(st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	for i := 0; i < 3; i++ {
		_, err := reg.CreateGroupRoom(ctx, alice.ID, fmt.Sprintf("room-%d", i), []int64{bob.ID})
		require.NoError(t, err)
	}
	_, err := reg.EnsurePrivateRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	rooms, err := reg.RoomsFor(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, rooms, 4)
}
