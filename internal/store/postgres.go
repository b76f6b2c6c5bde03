package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parleychat/parley/internal/models"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint
// (username/email/room name/invite token).
var ErrDuplicate = errors.New("duplicate record")

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// isUniqueViolation reports whether err is a unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const userColumns = "id, username, email, password_hash, is_online, created_at, updated_at"

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsOnline, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns,
		username, email, passwordHash)
	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// GetUserByID retrieves a user by id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// GetUserByUsername retrieves a user by username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// ListUsers retrieves all users except excludeID, ordered by username.
func (s *PostgresStore) ListUsers(ctx context.Context, excludeID int64) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users WHERE id <> $1 ORDER BY username
	`, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsOnline, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUser updates the mutable profile fields of a user.
func (s *PostgresStore) UpdateUser(ctx context.Context, id int64, username, email, passwordHash string) (*models.User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users
		SET username = $2, email = $3, password_hash = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		id, username, email, passwordHash)
	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// SetUserOnline updates the online flag for a user.
func (s *PostgresStore) SetUserOnline(ctx context.Context, id int64, online bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET is_online = $2, updated_at = NOW() WHERE id = $1
	`, id, online)
	return err
}

const roomColumns = "id, name, type, creator_id, created_at"

func scanRoom(row pgx.Row) (*models.Room, error) {
	r := &models.Room{}
	err := row.Scan(&r.ID, &r.Name, &r.Type, &r.CreatorID, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// CreateRoom creates a new room.
func (s *PostgresStore) CreateRoom(ctx context.Context, name string, roomType models.RoomType, creatorID *int64) (*models.Room, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO rooms (name, type, creator_id)
		VALUES ($1, $2, $3)
		RETURNING `+roomColumns,
		name, roomType, creatorID)
	r, err := scanRoom(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return r, nil
}

// GetRoom retrieves a room by id.
func (s *PostgresStore) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
}

// GetRoomByName retrieves a room by its unique name.
func (s *PostgresStore) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE name = $1`, name))
}

// ListRoomsForUser retrieves the rooms a user is a member of, newest first.
func (s *PostgresStore) ListRoomsForUser(ctx context.Context, userID int64) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.name, r.type, r.creator_id, r.created_at
		FROM rooms r
		JOIN memberships m ON m.room_id = r.id
		WHERE m.user_id = $1
		ORDER BY r.id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var r models.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.Type, &r.CreatorID, &r.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// FindPrivateRoomForPair finds the private room both users belong to, if any.
func (s *PostgresStore) FindPrivateRoomForPair(ctx context.Context, userA, userB int64) (*models.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `
		SELECT r.id, r.name, r.type, r.creator_id, r.created_at
		FROM rooms r
		JOIN memberships ma ON ma.room_id = r.id AND ma.user_id = $1
		JOIN memberships mb ON mb.room_id = r.id AND mb.user_id = $2
		WHERE r.type = 'private'
		LIMIT 1
	`, userA, userB))
}

// DeleteRoom removes a room. Memberships, messages and invites cascade via
// foreign keys, so a concurrent add either lands before the delete or fails
// on the missing room; no dangling rows either way.
func (s *PostgresStore) DeleteRoom(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	return err
}

// AddMember inserts a membership row if absent. Returns true when a new row
// was created, false when the user was already a member.
func (s *PostgresStore) AddMember(ctx context.Context, roomID, userID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO memberships (room_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`, roomID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveMember deletes a membership row.
func (s *PostgresStore) RemoveMember(ctx context.Context, roomID, userID int64) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM memberships WHERE room_id = $1 AND user_id = $2
	`, roomID, userID)
	return err
}

// IsMember reports whether the user belongs to the room.
func (s *PostgresStore) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM memberships WHERE room_id = $1 AND user_id = $2)
	`, roomID, userID).Scan(&exists)
	return exists, err
}

// CountMembers returns the number of members in a room.
func (s *PostgresStore) CountMembers(ctx context.Context, roomID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM memberships WHERE room_id = $1
	`, roomID).Scan(&count)
	return count, err
}

// ListMembers returns the users belonging to a room, ordered by username.
func (s *PostgresStore) ListMembers(ctx context.Context, roomID int64) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.username, u.email, u.password_hash, u.is_online, u.created_at, u.updated_at
		FROM users u
		JOIN memberships m ON m.user_id = u.id
		WHERE m.room_id = $1
		ORDER BY u.username
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsOnline, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateMessage persists a message with a server-assigned timestamp.
func (s *PostgresStore) CreateMessage(ctx context.Context, roomID, senderID int64, content string) (*models.Message, error) {
	m := &models.Message{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (room_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, room_id, sender_id, content, created_at
	`, roomID, senderID, content).Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages retrieves up to limit messages from a room, ascending by
// (created_at, id). A non-zero beforeID returns only messages older than
// that message.
func (s *PostgresStore) ListMessages(ctx context.Context, roomID int64, limit int, beforeID int64) ([]models.Message, error) {
	// Page backwards from the cursor, then flip to ascending order.
	query := `
		SELECT id, room_id, sender_id, content, created_at
		FROM messages
		WHERE room_id = $1
	`
	args := []any{roomID}
	if beforeID > 0 {
		query += ` AND id < $2 ORDER BY created_at DESC, id DESC LIMIT $3`
		args = append(args, beforeID, limit)
	} else {
		query += ` ORDER BY created_at DESC, id DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

const inviteColumns = "id, token, issuer_id, room_id, is_active, created_at"

func scanInvite(row pgx.Row) (*models.Invite, error) {
	inv := &models.Invite{}
	err := row.Scan(&inv.ID, &inv.Token, &inv.IssuerID, &inv.RoomID, &inv.IsActive, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inv, nil
}

// CreateInvite persists a new invite token.
func (s *PostgresStore) CreateInvite(ctx context.Context, token string, issuerID int64, roomID *int64) (*models.Invite, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO invites (token, issuer_id, room_id)
		VALUES ($1, $2, $3)
		RETURNING `+inviteColumns,
		token, issuerID, roomID)
	inv, err := scanInvite(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return inv, nil
}

// GetInviteByToken retrieves an invite by token regardless of active state.
func (s *PostgresStore) GetInviteByToken(ctx context.Context, token string) (*models.Invite, error) {
	return scanInvite(s.pool.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invites WHERE token = $1`, token))
}

// DeactivateInvite flips is_active to false and returns the invite, but only
// if it was still active. The guarded UPDATE serializes concurrent
// redemptions: exactly one caller gets the row back, the rest get (nil, nil).
func (s *PostgresStore) DeactivateInvite(ctx context.Context, token string) (*models.Invite, error) {
	return scanInvite(s.pool.QueryRow(ctx, `
		UPDATE invites
		SET is_active = FALSE
		WHERE token = $1 AND is_active = TRUE
		RETURNING `+inviteColumns,
		token))
}

// BindInviteRoom records the room a private-chat invite resolved to.
func (s *PostgresStore) BindInviteRoom(ctx context.Context, inviteID, roomID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE invites SET room_id = $2 WHERE id = $1`, inviteID, roomID)
	return err
}

var _ DataStore = (*PostgresStore)(nil)
