package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/parleychat/parley/internal/models"
)

// MemoryStore is an in-memory DataStore used by tests. It honors the same
// contracts as the SQL stores: idempotent membership adds, cascading room
// deletes, the guarded invite deactivation, and (created_at, id) message
// ordering.
type MemoryStore struct {
	mu sync.Mutex

	users    map[int64]*models.User
	rooms    map[int64]*models.Room
	members  map[int64]map[int64]struct{} // roomID -> set of userIDs
	messages map[int64][]*models.Message  // roomID -> append-ordered log
	invites  map[string]*models.Invite    // token -> invite

	nextUserID    int64
	nextRoomID    int64
	nextMessageID int64
	nextInviteID  int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int64]*models.User),
		rooms:    make(map[int64]*models.Room),
		members:  make(map[int64]map[int64]struct{}),
		messages: make(map[int64][]*models.Message),
		invites:  make(map[string]*models.Invite),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username || u.Email == email {
			return nil, ErrDuplicate
		}
	}

	s.nextUserID++
	now := time.Now()
	u := &models.User{
		ID:           s.nextUserID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, excludeID int64) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []models.User
	for _, u := range s.users {
		if u.ID != excludeID {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, id int64, username, email, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	for _, other := range s.users {
		if other.ID != id && (other.Username == username || other.Email == email) {
			return nil, ErrDuplicate
		}
	}
	u.Username = username
	u.Email = email
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) SetUserOnline(ctx context.Context, id int64, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.IsOnline = online
		u.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) CreateRoom(ctx context.Context, name string, roomType models.RoomType, creatorID *int64) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rooms {
		if r.Name == name {
			return nil, ErrDuplicate
		}
	}

	s.nextRoomID++
	r := &models.Room{
		ID:        s.nextRoomID,
		Name:      name,
		Type:      roomType,
		CreatedAt: time.Now(),
	}
	if creatorID != nil {
		id := *creatorID
		r.CreatorID = &id
	}
	s.rooms[r.ID] = r
	s.members[r.ID] = make(map[int64]struct{})
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListRoomsForUser(ctx context.Context, userID int64) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rooms []models.Room
	for roomID, set := range s.members {
		if _, ok := set[userID]; ok {
			if r, exists := s.rooms[roomID]; exists {
				rooms = append(rooms, *r)
			}
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID > rooms[j].ID })
	return rooms, nil
}

func (s *MemoryStore) FindPrivateRoomForPair(ctx context.Context, userA, userB int64) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for roomID, set := range s.members {
		r, ok := s.rooms[roomID]
		if !ok || r.Type != models.RoomTypePrivate {
			continue
		}
		_, hasA := set[userA]
		_, hasB := set[userB]
		if hasA && hasB {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) DeleteRoom(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
	delete(s.members, id)
	delete(s.messages, id)
	for token, inv := range s.invites {
		if inv.RoomID != nil && *inv.RoomID == id {
			delete(s.invites, token)
		}
	}
	return nil
}

func (s *MemoryStore) AddMember(ctx context.Context, roomID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.members[roomID]
	if !ok {
		set = make(map[int64]struct{})
		s.members[roomID] = set
	}
	if _, exists := set[userID]; exists {
		return false, nil
	}
	set[userID] = struct{}{}
	return true, nil
}

func (s *MemoryStore) RemoveMember(ctx context.Context, roomID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.members[roomID]; ok {
		delete(set, userID)
	}
	return nil
}

func (s *MemoryStore) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.members[roomID]
	if !ok {
		return false, nil
	}
	_, exists := set[userID]
	return exists, nil
}

func (s *MemoryStore) CountMembers(ctx context.Context, roomID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members[roomID]), nil
}

func (s *MemoryStore) ListMembers(ctx context.Context, roomID int64) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []models.User
	for userID := range s.members[roomID] {
		if u, ok := s.users[userID]; ok {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, roomID, senderID int64, content string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMessageID++
	m := &models.Message{
		ID:        s.nextMessageID,
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.messages[roomID] = append(s.messages[roomID], m)
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, roomID int64, limit int, beforeID int64) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Message
	for _, m := range s.messages[roomID] {
		if beforeID > 0 && m.ID >= beforeID {
			continue
		}
		out = append(out, *m)
	}
	// The log is already in (created_at, id) append order; keep the newest
	// window like the SQL stores do.
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemoryStore) CreateInvite(ctx context.Context, token string, issuerID int64, roomID *int64) (*models.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invites[token]; exists {
		return nil, ErrDuplicate
	}

	s.nextInviteID++
	inv := &models.Invite{
		ID:        s.nextInviteID,
		Token:     token,
		IssuerID:  issuerID,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if roomID != nil {
		id := *roomID
		inv.RoomID = &id
	}
	s.invites[token] = inv
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) GetInviteByToken(ctx context.Context, token string) (*models.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[token]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) DeactivateInvite(ctx context.Context, token string) (*models.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[token]
	if !ok || !inv.IsActive {
		return nil, nil
	}
	inv.IsActive = false
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) BindInviteRoom(ctx context.Context, inviteID, roomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invites {
		if inv.ID == inviteID {
			id := roomID
			inv.RoomID = &id
			return nil
		}
	}
	return nil
}

var _ DataStore = (*MemoryStore)(nil)
