package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/warfront-game/api/internal/repository"
	"github.com/warfront-game/api/internal/service"
)

// SessionHandler handles the REST surface over sessions: creation, listing,
// state reads and teardown. Gameplay itself flows over the WebSocket.
type SessionHandler struct {
	registry    *service.Registry
	sessionRepo repository.SessionRepository
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(registry *service.Registry, sessionRepo repository.SessionRepository) *SessionHandler {
	return &SessionHandler{registry: registry, sessionRepo: sessionRepo}
}

// CreateSession handles POST /api/v1/sessions — the REST alternative to the
// WebSocket initialize message.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code    string   `json:"code"`
		Players []string `json:"players"`
		Colors  []string `json:"colors,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if len(req.Players) < 2 || len(req.Players) > 6 {
		writeError(w, http.StatusBadRequest, "2 to 6 players required")
		return
	}

	state, err := h.registry.Initialize(r.Context(), req.Code, req.Players, req.Colors)
	if err != nil {
		if errors.Is(err, service.ErrSessionExists) {
			writeError(w, http.StatusConflict, "session code already in use")
			return
		}
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"code":  req.Code,
		"state": state,
	})
}

// ListSessions handles GET /api/v1/sessions — open sessions by default,
// active ones with ?status=active.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	var (
		sessions any
		err      error
	)
	switch r.URL.Query().Get("status") {
	case "", "waiting":
		sessions, err = h.sessionRepo.ListOpen(r.Context())
	case "active":
		sessions, err = h.sessionRepo.ListActive(r.Context())
	default:
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sessions")
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// GetSession handles GET /api/v1/sessions/{code} — the durable record.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	session, err := h.sessionRepo.FindByCode(r.Context(), code)
	if err != nil {
		log.Error().Err(err).Str("sessionCode", code).Msg("Failed to fetch session")
		writeError(w, http.StatusInternalServerError, "failed to fetch session")
		return
	}
	if session == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// GetSessionState handles GET /api/v1/sessions/{code}/state — the live
// state, equivalent to what a resync delivers over the WebSocket.
func (h *SessionHandler) GetSessionState(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	state, seq, err := h.registry.State(r.Context(), code)
	if err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state": state,
		"seq":   seq,
	})
}

// DeleteSession handles DELETE /api/v1/sessions/{code}.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if err := h.registry.Remove(r.Context(), code); err != nil {
		log.Error().Err(err).Str("sessionCode", code).Msg("Failed to delete session")
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
