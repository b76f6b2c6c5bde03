package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/parleychat/parley/internal/api/middleware"
	"github.com/parleychat/parley/internal/metrics"
)

// AssistantRequest is the request body for POST /assistant.
type AssistantRequest struct {
	Prompt string `json:"prompt"`
}

// AssistantResponse is the response body for POST /assistant.
type AssistantResponse struct {
	Reply string `json:"reply"`
}

// Assistant handles POST /assistant: proxy a prompt to the configured
// completion backend. Returns 502 when the backend is missing or failing.
func (h *Handler) Assistant(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	var req AssistantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		h.Error(w, http.StatusBadRequest, "prompt is required")
		return
	}

	if h.assistant == nil {
		metrics.AssistantRequests.WithLabelValues("error").Inc()
		h.Error(w, http.StatusBadGateway, "assistant backend not configured")
		return
	}

	reply, err := h.assistant.Complete(r.Context(), req.Prompt)
	if err != nil {
		metrics.AssistantRequests.WithLabelValues("error").Inc()
		h.DomainError(w, err)
		return
	}

	metrics.AssistantRequests.WithLabelValues("ok").Inc()
	h.JSON(w, http.StatusOK, AssistantResponse{Reply: reply})
}
