package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/parleychat/parley/internal/api/middleware"
	"github.com/parleychat/parley/internal/models"
)

// roomIDParam parses the {id} route parameter.
func roomIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// StartPrivateChatRequest is the request body for POST /chats/private. The
// other participant goes by id or by username; id wins when both are set.
type StartPrivateChatRequest struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// StartPrivateChatResponse returns the room plus its recent history so the
// client can render immediately.
type StartPrivateChatResponse struct {
	Room     *models.Room     `json:"room"`
	Messages []models.Message `json:"messages"`
}

// StartPrivateChat handles POST /chats/private: open (or reopen) a private
// room with another user.
func (h *Handler) StartPrivateChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	var req StartPrivateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	otherID := req.UserID
	if otherID == 0 {
		if req.Username == "" {
			h.Error(w, http.StatusBadRequest, "user_id or username is required")
			return
		}
		other, err := h.store.GetUserByUsername(r.Context(), req.Username)
		if err != nil {
			h.DomainError(w, err)
			return
		}
		if other == nil {
			h.Error(w, http.StatusNotFound, "user not found")
			return
		}
		otherID = other.ID
	}

	room, err := h.registry.EnsurePrivateRoom(r.Context(), user.ID, otherID)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	msgs, err := h.messages.ListByRoom(r.Context(), room.ID, user.ID, 0, 0)
	if err != nil {
		h.DomainError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	h.JSON(w, http.StatusOK, StartPrivateChatResponse{Room: room, Messages: msgs})
}

// CreateRoomRequest is the request body for POST /rooms.
type CreateRoomRequest struct {
	Name      string  `json:"name"`
	MemberIDs []int64 `json:"member_ids"`
}

// CreateRoom handles POST /rooms: create a group room.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	room, err := h.registry.CreateGroupRoom(r.Context(), user.ID, sanitizeName(req.Name), req.MemberIDs)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	h.logger.Info().Int64("room_id", room.ID).Int64("creator_id", user.ID).Msg("room created")
	h.JSON(w, http.StatusCreated, room)
}

// ListRoomsResponse is the response body for GET /rooms.
type ListRoomsResponse struct {
	Rooms []models.Room `json:"rooms"`
}

// ListRooms handles GET /rooms: every room the caller belongs to.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	rooms, err := h.registry.RoomsFor(r.Context(), user.ID)
	if err != nil {
		h.DomainError(w, err)
		return
	}
	if rooms == nil {
		rooms = []models.Room{}
	}

	h.JSON(w, http.StatusOK, ListRoomsResponse{Rooms: rooms})
}

// RoomMembersResponse is the response body for GET /rooms/{id}/members.
type RoomMembersResponse struct {
	Members []UserSummary `json:"members"`
}

// RoomMembers handles GET /rooms/{id}/members.
func (h *Handler) RoomMembers(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	roomID, ok := roomIDParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid room id")
		return
	}

	members, err := h.registry.Members(r.Context(), roomID, user.ID)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	summaries := make([]UserSummary, 0, len(members))
	for _, m := range members {
		summaries = append(summaries, UserSummary{
			ID:       m.ID,
			Username: m.Username,
			IsOnline: h.isOnline(r, &m),
		})
	}

	h.JSON(w, http.StatusOK, RoomMembersResponse{Members: summaries})
}

// AddMembersRequest is the request body for POST /rooms/{id}/members.
type AddMembersRequest struct {
	MemberIDs []int64 `json:"member_ids"`
}

// AddMembersResponse reports how many members were actually added.
type AddMembersResponse struct {
	Added int `json:"added"`
}

// AddMembers handles POST /rooms/{id}/members.
func (h *Handler) AddMembers(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	roomID, ok := roomIDParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid room id")
		return
	}

	var req AddMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.MemberIDs) == 0 {
		h.Error(w, http.StatusBadRequest, "member_ids is required")
		return
	}

	added, err := h.registry.AddMembers(r.Context(), roomID, user.ID, req.MemberIDs)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, AddMembersResponse{Added: added})
}

// RemoveMember handles DELETE /rooms/{id}/members/{userID}.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	roomID, ok := roomIDParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid room id")
		return
	}
	targetID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || targetID <= 0 {
		h.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.registry.RemoveMember(r.Context(), roomID, user.ID, targetID); err != nil {
		h.DomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LeaveRoom handles POST /rooms/{id}/leave.
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	roomID, ok := roomIDParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid room id")
		return
	}

	if err := h.registry.Leave(r.Context(), roomID, user.ID); err != nil {
		h.DomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteRoom handles DELETE /rooms/{id}.
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	roomID, ok := roomIDParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid room id")
		return
	}

	if err := h.registry.DeleteRoom(r.Context(), roomID, user.ID); err != nil {
		h.DomainError(w, err)
		return
	}

	h.logger.Info().Int64("room_id", roomID).Int64("user_id", user.ID).Msg("room deleted")
	w.WriteHeader(http.StatusNoContent)
}
