package store

import (
	"context"

	"github.com/parleychat/parley/internal/models"
)

// DataStore defines the interface for persistent storage of users, rooms,
// memberships, messages and invites. PostgresStore and SQLiteStore implement
// this interface; MemoryStore implements it for tests.
//
// Lookup methods return (nil, nil) when the record does not exist; the
// service layer translates that into its own not-found error.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context, excludeID int64) ([]models.User, error)
	UpdateUser(ctx context.Context, id int64, username, email, passwordHash string) (*models.User, error)
	SetUserOnline(ctx context.Context, id int64, online bool) error

	// Room operations
	CreateRoom(ctx context.Context, name string, roomType models.RoomType, creatorID *int64) (*models.Room, error)
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	GetRoomByName(ctx context.Context, name string) (*models.Room, error)
	ListRoomsForUser(ctx context.Context, userID int64) ([]models.Room, error)
	// FindPrivateRoomForPair looks up a private room by participant
	// intersection rather than by canonical name, so descriptively renamed
	// rooms are still found.
	FindPrivateRoomForPair(ctx context.Context, userA, userB int64) (*models.Room, error)
	// DeleteRoom removes the room; memberships, messages and invites bound to
	// it cascade away in the same transaction.
	DeleteRoom(ctx context.Context, id int64) error

	// Membership operations
	// AddMember is idempotent; it reports whether a new membership row was
	// actually created.
	AddMember(ctx context.Context, roomID, userID int64) (bool, error)
	RemoveMember(ctx context.Context, roomID, userID int64) error
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)
	CountMembers(ctx context.Context, roomID int64) (int, error)
	ListMembers(ctx context.Context, roomID int64) ([]models.User, error)

	// Message operations
	CreateMessage(ctx context.Context, roomID, senderID int64, content string) (*models.Message, error)
	// ListMessages returns messages ascending by (created_at, id). A non-zero
	// beforeID restricts the result to messages older than that id.
	ListMessages(ctx context.Context, roomID int64, limit int, beforeID int64) ([]models.Message, error)

	// Invite operations
	CreateInvite(ctx context.Context, token string, issuerID int64, roomID *int64) (*models.Invite, error)
	GetInviteByToken(ctx context.Context, token string) (*models.Invite, error)
	// DeactivateInvite is the atomic check-and-set on is_active: it flips the
	// invite to inactive and returns it only if it was still active, so
	// exactly one of any concurrent redemption attempts succeeds.
	DeactivateInvite(ctx context.Context, token string) (*models.Invite, error)
	BindInviteRoom(ctx context.Context, inviteID, roomID int64) error
}
