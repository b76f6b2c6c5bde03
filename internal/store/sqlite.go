package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/parleychat/parley/internal/models"
)

// SQLiteStore handles SQLite database operations. It backs local development
// when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/parley.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/parley.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	// Concurrent writers serialize through a single connection.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT UNIQUE NOT NULL,
		email         TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		is_online     INTEGER NOT NULL DEFAULT 0,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT UNIQUE NOT NULL,
		type       TEXT NOT NULL CHECK (type IN ('private', 'group')),
		creator_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS memberships (
		room_id   INTEGER NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		user_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (room_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id    INTEGER NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		sender_id  INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content    TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_order ON messages (room_id, created_at, id);

	CREATE TABLE IF NOT EXISTS invites (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		token      TEXT UNIQUE NOT NULL,
		issuer_id  INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		room_id    INTEGER REFERENCES rooms(id) ON DELETE CASCADE,
		is_active  INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships (user_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isSQLiteUnique reports whether err is a sqlite uniqueness violation.
func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLiteStore) scanUserRow(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsOnline, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)
	`, username, email, passwordHash)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by id.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.scanUserRow(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, is_online, created_at, updated_at
		FROM users WHERE id = ?
	`, id))
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUserRow(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, is_online, created_at, updated_at
		FROM users WHERE email = ?
	`, email))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.scanUserRow(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, is_online, created_at, updated_at
		FROM users WHERE username = ?
	`, username))
}

// ListUsers retrieves all users except excludeID, ordered by username.
func (s *SQLiteStore) ListUsers(ctx context.Context, excludeID int64) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, email, password_hash, is_online, created_at, updated_at
		FROM users WHERE id <> ? ORDER BY username
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
func (s *SQLiteStore) UpdateUser(ctx context.Context, id int64, username, email, passwordHash string) (*models.User, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET username = ?, email = ?, password_hash = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, username, email, passwordHash, id)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

// SetUserOnline updates the online flag for a user.
func (s *SQLiteStore) SetUserOnline(ctx context.Context, id int64, online bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_online = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, online, id)
	return err
}

func (s *SQLiteStore) scanRoomRow(row *sql.Row) (*models.Room, error) {
	r := &models.Room{}
	err := row.Scan(&r.ID, &r.Name, &r.Type, &r.CreatorID, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// CreateRoom creates a new room.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string, roomType models.RoomType, creatorID *int64) (*models.Room, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (name, type, creator_id) VALUES (?, ?, ?)
	`, name, string(roomType), creatorID)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetRoom(ctx, id)
}

// GetRoom retrieves a room by id.
func (s *SQLiteStore) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	return s.scanRoomRow(s.db.QueryRowContext(ctx, `
		SELECT id, name, type, creator_id, created_at FROM rooms WHERE id = ?
	`, id))
}

// GetRoomByName retrieves a room by its unique name.
func (s *SQLiteStore) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	return s.scanRoomRow(s.db.QueryRowContext(ctx, `
		SELECT id, name, type, creator_id, created_at FROM rooms WHERE name = ?
	`, name))
}

// ListRoomsForUser retrieves the rooms a user is a member of, newest first.
func (s *SQLiteStore) ListRoomsForUser(ctx context.Context, userID int64) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.type, r.creator_id, r.created_at
		FROM rooms r
		JOIN memberships m ON m.room_id = r.id
		WHERE m.user_id = ?
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
func (s *SQLiteStore) FindPrivateRoomForPair(ctx context.Context, userA, userB int64) (*models.Room, error) {
	return s.scanRoomRow(s.db.QueryRowContext(ctx, `
		SELECT r.id, r.name, r.type, r.creator_id, r.created_at
		FROM rooms r
		JOIN memberships ma ON ma.room_id = r.id AND ma.user_id = ?
		JOIN memberships mb ON mb.room_id = r.id AND mb.user_id = ?
		WHERE r.type = 'private'
		LIMIT 1
	`, userA, userB))
}

// DeleteRoom removes a room; dependent rows cascade via foreign keys.
func (s *SQLiteStore) DeleteRoom(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	return err
}

// AddMember inserts a membership row if absent.
func (s *SQLiteStore) AddMember(ctx context.Context, roomID, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO memberships (room_id, user_id) VALUES (?, ?)
	`, roomID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveMember deletes a membership row.
func (s *SQLiteStore) RemoveMember(ctx context.Context, roomID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM memberships WHERE room_id = ? AND user_id = ?
	`, roomID, userID)
	return err
}

// IsMember reports whether the user belongs to the room.
func (s *SQLiteStore) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM memberships WHERE room_id = ? AND user_id = ?)
	`, roomID, userID).Scan(&exists)
	return exists, err
}

// CountMembers returns the number of members in a room.
func (s *SQLiteStore) CountMembers(ctx context.Context, roomID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memberships WHERE room_id = ?
	`, roomID).Scan(&count)
	return count, err
}

// ListMembers returns the users belonging to a room, ordered by username.
func (s *SQLiteStore) ListMembers(ctx context.Context, roomID int64) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.email, u.password_hash, u.is_online, u.created_at, u.updated_at
		FROM users u
		JOIN memberships m ON m.user_id = u.id
		WHERE m.room_id = ?
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
func (s *SQLiteStore) CreateMessage(ctx context.Context, roomID, senderID int64, content string) (*models.Message, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (room_id, sender_id, content) VALUES (?, ?, ?)
	`, roomID, senderID, content)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	m := &models.Message{}
	err = s.db.QueryRowContext(ctx, `
		SELECT id, room_id, sender_id, content, created_at FROM messages WHERE id = ?
	`, id).Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages retrieves up to limit messages ascending by (created_at, id).
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID int64, limit int, beforeID int64) ([]models.Message, error) {
	query := `
		SELECT id, room_id, sender_id, content, created_at
		FROM messages
		WHERE room_id = ?
	`
	args := []any{roomID}
	if beforeID > 0 {
		query += ` AND id < ? ORDER BY created_at DESC, id DESC LIMIT ?`
		args = append(args, beforeID, limit)
	} else {
		query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) scanInviteRow(row *sql.Row) (*models.Invite, error) {
	inv := &models.Invite{}
	err := row.Scan(&inv.ID, &inv.Token, &inv.IssuerID, &inv.RoomID, &inv.IsActive, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inv, nil
}

// CreateInvite persists a new invite token.
func (s *SQLiteStore) CreateInvite(ctx context.Context, token string, issuerID int64, roomID *int64) (*models.Invite, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO invites (token, issuer_id, room_id) VALUES (?, ?, ?)
	`, token, issuerID, roomID)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.scanInviteRow(s.db.QueryRowContext(ctx, `
		SELECT id, token, issuer_id, room_id, is_active, created_at FROM invites WHERE id = ?
	`, id))
}

// GetInviteByToken retrieves an invite by token regardless of active state.
func (s *SQLiteStore) GetInviteByToken(ctx context.Context, token string) (*models.Invite, error) {
	return s.scanInviteRow(s.db.QueryRowContext(ctx, `
		SELECT id, token, issuer_id, room_id, is_active, created_at FROM invites WHERE token = ?
	`, token))
}

// DeactivateInvite flips is_active to false only if it was still active.
// RowsAffected tells apart the winner of a concurrent redemption race.
func (s *SQLiteStore) DeactivateInvite(ctx context.Context, token string) (*models.Invite, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invites SET is_active = 0 WHERE token = ? AND is_active = 1
	`, token)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetInviteByToken(ctx, token)
}

// BindInviteRoom records the room a private-chat invite resolved to.
func (s *SQLiteStore) BindInviteRoom(ctx context.Context, inviteID, roomID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE invites SET room_id = ? WHERE id = ?`, roomID, inviteID)
	return err
}

var _ DataStore = (*SQLiteStore)(nil)
