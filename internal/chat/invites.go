package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/store"
)

// Invites issues and redeems single-use invite tokens. A room invite is
// bound to a room at issue time; a private invite binds its room lazily at
// redemption, when the redeemer's identity is first known.
type Invites struct {
	store    store.DataStore
	registry *Registry
}

// NewInvites creates an invite service. Redemption goes through the
// registry so private-room creation keeps its dedupe guarantees.
func NewInvites(st store.DataStore, registry *Registry) *Invites {
	return &Invites{store: st, registry: registry}
}

// IssueRoomInvite issues a single-use token that admits its redeemer to the
// given room. Any current member may issue one.
func (i *Invites) IssueRoomInvite(ctx context.Context, roomID, issuerID int64) (*models.Invite, error) {
	room, err := i.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, fmt.Errorf("%w: room %d", ErrNotFound, roomID)
	}

	isMember, err := i.store.IsMember(ctx, room.ID, issuerID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, fmt.Errorf("%w: not a member of room %d", ErrPermissionDenied, roomID)
	}

	return i.createInvite(ctx, issuerID, &room.ID)
}

// IssuePrivateInvite issues a single-use token that opens (or reuses) a
// private room between the issuer and whoever redeems it.
func (i *Invites) IssuePrivateInvite(ctx context.Context, issuerID int64) (*models.Invite, error) {
	return i.createInvite(ctx, issuerID, nil)
}

// createInvite inserts a fresh token, retrying once on the astronomically
// unlikely UUID collision.
func (i *Invites) createInvite(ctx context.Context, issuerID int64, roomID *int64) (*models.Invite, error) {
	for attempt := 0; attempt < 2; attempt++ {
		inv, err := i.store.CreateInvite(ctx, uuid.NewString(), issuerID, roomID)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return inv, nil
	}
	return nil, fmt.Errorf("%w: could not allocate invite token", ErrConflict)
}

// Redeem consumes a token on behalf of the redeemer and returns the room it
// admits them to. The token kind (room-bound or private) is decided by the
// invite itself, so one endpoint serves both.
//
// A nil room with a nil error means the redemption was a no-op: the issuer
// followed their own private invite link. The token stays active for the
// intended recipient.
func (i *Invites) Redeem(ctx context.Context, token string, redeemerID int64) (*models.Room, error) {
	inv, err := i.store.GetInviteByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil || !inv.IsActive {
		return nil, fmt.Errorf("%w: invalid or already used invite", ErrNotFound)
	}
	if inv.RoomID != nil {
		return i.RedeemRoomInvite(ctx, token, redeemerID)
	}
	return i.RedeemPrivateInvite(ctx, token, redeemerID)
}

// RedeemRoomInvite consumes a room-bound token and adds the redeemer to the
// room. The guarded deactivation in the store guarantees exactly one winner
// under concurrent redemption; every later attempt sees ErrNotFound.
func (i *Invites) RedeemRoomInvite(ctx context.Context, token string, redeemerID int64) (*models.Room, error) {
	inv, err := i.store.DeactivateInvite(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil || inv.RoomID == nil {
		return nil, fmt.Errorf("%w: invalid or already used invite", ErrNotFound)
	}

	room, err := i.store.GetRoom(ctx, *inv.RoomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, fmt.Errorf("%w: room %d", ErrNotFound, *inv.RoomID)
	}

	if _, err := i.store.AddMember(ctx, room.ID, redeemerID); err != nil {
		return nil, err
	}
	return room, nil
}

// RedeemPrivateInvite consumes an unbound token and opens a private room
// between the issuer and the redeemer, reusing an existing one if the pair
// already has a room. The issuer redeeming their own invite is a no-op that
// returns (nil, nil) and leaves the token active.
func (i *Invites) RedeemPrivateInvite(ctx context.Context, token string, redeemerID int64) (*models.Room, error) {
	inv, err := i.store.GetInviteByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil || !inv.IsActive || inv.RoomID != nil {
		return nil, fmt.Errorf("%w: invalid or already used invite", ErrNotFound)
	}
	if inv.IssuerID == redeemerID {
		return nil, nil
	}

	inv, err = i.store.DeactivateInvite(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		// Someone else burned the token between the read and the guard.
		return nil, fmt.Errorf("%w: invalid or already used invite", ErrNotFound)
	}

	room, err := i.registry.EnsurePrivateRoom(ctx, inv.IssuerID, redeemerID)
	if err != nil {
		return nil, err
	}

	if err := i.store.BindInviteRoom(ctx, inv.ID, room.ID); err != nil {
		return nil, err
	}
	return room, nil
}
