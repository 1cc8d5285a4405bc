package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/go_cart/cart-sync/internal/session"
	"github.com/fjod/go_cart/cart-sync/pkg/logger"
	"go.uber.org/zap"
)

type SessionHandler struct {
	sessions Sessions
	timeout  time.Duration
	log      *zap.Logger
}

func NewSessionHandler(sessions Sessions, timeout time.Duration, log *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		timeout:  timeout,
		log:      logger.OrNop(log),
	}
}

type CreateSessionRequestDTO struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
}

type CreateSessionResponseDTO struct {
	SessionID string `json:"session_id"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateSessionRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s, err := h.sessions.Create(ctx, req.UserID, req.AccessToken)
	if errors.Is(err, session.ErrInvalidSession) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err != nil {
		logger.FromContext(ctx, h.log).Error("create session failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "session store unavailable")
		return
	}

	respondJSON(w, http.StatusCreated, CreateSessionResponseDTO{SessionID: s.ID})
}

// Logout ends the current session and discards its cart state.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := sessionFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_session", "missing "+SessionHeader+" header")
		return
	}

	if err := h.sessions.Logout(ctx, s.ID); err != nil {
		logger.FromContext(ctx, h.log).Error("logout failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "session store unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
