package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parleychat/parley/internal/api/middleware"
	"github.com/parleychat/parley/internal/metrics"
	"github.com/parleychat/parley/internal/models"
)

// InviteResponse is the response body for the invite issue endpoints.
type InviteResponse struct {
	Token string `json:"token"`
	Link  string `json:"link"`
}

func (h *Handler) inviteResponse(inv *models.Invite) InviteResponse {
	return InviteResponse{
		Token: inv.Token,
		Link:  h.cfg.PublicBaseURL + "/invites/" + inv.Token + "/redeem",
	}
}

// CreateRoomInvite handles POST /rooms/{id}/invites: a single-use token
// that admits its redeemer to the room.
func (h *Handler) CreateRoomInvite(w http.ResponseWriter, r *http.Request) {
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

	inv, err := h.invites.IssueRoomInvite(r.Context(), roomID, user.ID)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	metrics.InvitesIssued.WithLabelValues("room").Inc()
	h.JSON(w, http.StatusCreated, h.inviteResponse(inv))
}

// CreatePrivateInvite handles POST /invites/private: a single-use token
// that opens a private chat with the issuer.
func (h *Handler) CreatePrivateInvite(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	inv, err := h.invites.IssuePrivateInvite(r.Context(), user.ID)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	metrics.InvitesIssued.WithLabelValues("private").Inc()
	h.JSON(w, http.StatusCreated, h.inviteResponse(inv))
}

// RedeemInviteResponse is the response body for invite redemption. Room is
// null when the issuer followed their own private link.
type RedeemInviteResponse struct {
	Room *models.Room `json:"room"`
}

// RedeemInvite handles POST /invites/{token}/redeem for both invite kinds.
func (h *Handler) RedeemInvite(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	token := chi.URLParam(r, "token")
	if token == "" {
		h.Error(w, http.StatusBadRequest, "invalid invite token")
		return
	}

	room, err := h.invites.Redeem(r.Context(), token, user.ID)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	if room != nil {
		kind := "private"
		if room.Type == models.RoomTypeGroup {
			kind = "room"
		}
		metrics.InvitesRedeemed.WithLabelValues(kind).Inc()
		h.logger.Info().Int64("room_id", room.ID).Int64("user_id", user.ID).Msg("invite redeemed")
	}

	h.JSON(w, http.StatusOK, RedeemInviteResponse{Room: room})
}
