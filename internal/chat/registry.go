package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/store"
)

// Registry owns room membership: who belongs to which room, and the
// room-type rules (two-party private rooms, creator-administered groups).
type Registry struct {
	store store.DataStore
}

// NewRegistry creates a membership registry over the given store.
func NewRegistry(st store.DataStore) *Registry {
	return &Registry{store: st}
}

// EnsurePrivateRoom returns the private room for the caller and the other
// user, creating it on first contact. Reuse goes by participant
// intersection, not by name, so a pair room that was renamed after creation
// is still found; the canonical pair-derived name plus the unique index on
// room names then guarantee at most one room per unordered pair, so
// EnsurePrivateRoom(a, b) and EnsurePrivateRoom(b, a) always land on the
// same room. Membership adds are idempotent.
func (r *Registry) EnsurePrivateRoom(ctx context.Context, callerID, otherID int64) (*models.Room, error) {
	if callerID == otherID {
		return nil, fmt.Errorf("%w: cannot open a private chat with yourself", ErrValidation)
	}

	other, err := r.store.GetUserByID(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, otherID)
	}

	room, err := r.store.FindPrivateRoomForPair(ctx, callerID, otherID)
	if err != nil {
		return nil, err
	}
	if room != nil {
		return room, nil
	}

	name := models.PrivateRoomName(callerID, otherID)
	room, err = r.store.GetRoomByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if room == nil {
		room, err = r.store.CreateRoom(ctx, name, models.RoomTypePrivate, &callerID)
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a concurrent first-contact race; the winner's room is ours.
			room, err = r.store.GetRoomByName(ctx, name)
		}
		if err != nil {
			return nil, err
		}
		if room == nil {
			return nil, fmt.Errorf("%w: room %q vanished during creation", ErrConflict, name)
		}
	}

	if _, err := r.store.AddMember(ctx, room.ID, callerID); err != nil {
		return nil, err
	}
	if _, err := r.store.AddMember(ctx, room.ID, otherID); err != nil {
		return nil, err
	}
	return room, nil
}

// CreateGroupRoom creates a group room with the caller as creator and admin.
// The creator and every initial member are added; at least one initial
// member is required.
func (r *Registry) CreateGroupRoom(ctx context.Context, creatorID int64, name string, memberIDs []int64) (*models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(memberIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one participant is required", ErrValidation)
	}

	for _, id := range memberIDs {
		u, err := r.store.GetUserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
	}

	room, err := r.store.CreateRoom(ctx, name, models.RoomTypeGroup, &creatorID)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, fmt.Errorf("%w: room name %q is taken", ErrConflict, name)
	}
	if err != nil {
		return nil, err
	}

	if _, err := r.store.AddMember(ctx, room.ID, creatorID); err != nil {
		return nil, err
	}
	for _, id := range memberIDs {
		if id == creatorID {
			continue
		}
		if _, err := r.store.AddMember(ctx, room.ID, id); err != nil {
			return nil, err
		}
	}
	return room, nil
}

// AddMembers adds users to a room. Any current member may add others; adds
// for users already present are no-ops. Returns how many members were
// actually added.
func (r *Registry) AddMembers(ctx context.Context, roomID, requesterID int64, memberIDs []int64) (int, error) {
	room, err := r.requireRoom(ctx, roomID)
	if err != nil {
		return 0, err
	}

	isMember, err := r.store.IsMember(ctx, room.ID, requesterID)
	if err != nil {
		return 0, err
	}
	if !isMember {
		return 0, fmt.Errorf("%w: not a member of room %d", ErrPermissionDenied, roomID)
	}

	added := 0
	for _, id := range memberIDs {
		u, err := r.store.GetUserByID(ctx, id)
		if err != nil {
			return added, err
		}
		if u == nil {
			return added, fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
		created, err := r.store.AddMember(ctx, room.ID, id)
		if err != nil {
			return added, err
		}
		if created {
			added++
		}
	}
	return added, nil
}

// RemoveMember removes a member from a group room. Only the creator may
// remove members, and the creator themself cannot be removed.
func (r *Registry) RemoveMember(ctx context.Context, roomID, requesterID, targetID int64) error {
	room, err := r.requireRoom(ctx, roomID)
	if err != nil {
		return err
	}

	if room.CreatorID == nil || *room.CreatorID != requesterID {
		return fmt.Errorf("%w: only the room creator can remove members", ErrPermissionDenied)
	}
	if targetID == requesterID {
		return fmt.Errorf("%w: the creator cannot be removed", ErrPermissionDenied)
	}

	return r.store.RemoveMember(ctx, room.ID, targetID)
}

// Leave removes the requester's own membership. The creator cannot leave
// while the room exists (they must delete it); a group room left with no
// members is deleted outright.
func (r *Registry) Leave(ctx context.Context, roomID, requesterID int64) error {
	room, err := r.requireRoom(ctx, roomID)
	if err != nil {
		return err
	}

	if room.CreatorID != nil && *room.CreatorID == requesterID {
		return fmt.Errorf("%w: the creator cannot leave; delete the room instead", ErrPermissionDenied)
	}

	isMember, err := r.store.IsMember(ctx, room.ID, requesterID)
	if err != nil {
		return err
	}
	if !isMember {
		return fmt.Errorf("%w: not a member of room %d", ErrNotFound, roomID)
	}

	if err := r.store.RemoveMember(ctx, room.ID, requesterID); err != nil {
		return err
	}

	if room.Type == models.RoomTypeGroup {
		count, err := r.store.CountMembers(ctx, room.ID)
		if err != nil {
			return err
		}
		if count == 0 {
			return r.store.DeleteRoom(ctx, room.ID)
		}
	}
	return nil
}

// DeleteRoom deletes a room and everything in it. Creator only.
func (r *Registry) DeleteRoom(ctx context.Context, roomID, requesterID int64) error {
	room, err := r.requireRoom(ctx, roomID)
	if err != nil {
		return err
	}

	if room.CreatorID == nil || *room.CreatorID != requesterID {
		return fmt.Errorf("%w: only the room creator can delete it", ErrPermissionDenied)
	}

	return r.store.DeleteRoom(ctx, room.ID)
}

// Members returns the member list of a room the requester belongs to.
func (r *Registry) Members(ctx context.Context, roomID, requesterID int64) ([]models.User, error) {
	room, err := r.requireRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	isMember, err := r.store.IsMember(ctx, room.ID, requesterID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, fmt.Errorf("%w: not a member of room %d", ErrPermissionDenied, roomID)
	}

	return r.store.ListMembers(ctx, room.ID)
}

// RoomsFor lists the rooms a user belongs to.
func (r *Registry) RoomsFor(ctx context.Context, userID int64) ([]models.Room, error) {
	return r.store.ListRoomsForUser(ctx, userID)
}

// IsMember reports room membership for transport-layer gating.
func (r *Registry) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	return r.store.IsMember(ctx, roomID, userID)
}

func (r *Registry) requireRoom(ctx context.Context, roomID int64) (*models.Room, error) {
	room, err := r.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, fmt.Errorf("%w: room %d", ErrNotFound, roomID)
	}
	return room, nil
}
