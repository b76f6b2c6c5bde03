package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/parleychat/parley/internal/api/middleware"
	"github.com/parleychat/parley/internal/hub"
	"github.com/parleychat/parley/internal/metrics"
	"github.com/parleychat/parley/internal/models"
)

// ListMessagesResponse is the response body for GET /rooms/{id}/messages.
type ListMessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

// ListMessages handles GET /rooms/{id}/messages with optional limit and
// before query parameters for paging backwards through history.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
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

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	beforeID, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)

	msgs, err := h.messages.ListByRoom(r.Context(), roomID, user.ID, limit, beforeID)
	if err != nil {
		h.DomainError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	h.JSON(w, http.StatusOK, ListMessagesResponse{Messages: msgs})
}

// PostMessageRequest is the request body for POST /rooms/{id}/messages.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// PostMessage handles POST /rooms/{id}/messages. Blank content is accepted
// and dropped with a 204, matching the silent no-op on the socket path.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
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

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.messages.Append(r.Context(), roomID, user.ID, req.Content)
	if err != nil {
		h.DomainError(w, err)
		return
	}
	if msg == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	room, err := h.store.GetRoom(r.Context(), roomID)
	if err == nil && room != nil {
		metrics.MessagesPosted.WithLabelValues(string(room.Type)).Inc()
	}

	evt := hub.NewMessageEvent(msg, user.Username)
	if err := h.hub.Publish(r.Context(), evt); err != nil {
		h.logger.Error().Err(err).Int64("room_id", roomID).Msg("failed to publish message event")
	}

	h.JSON(w, http.StatusCreated, msg)
}
