package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/cart-sync/internal/engine"
	"github.com/fjod/go_cart/cart-sync/internal/gateway"
	"github.com/fjod/go_cart/cart-sync/internal/session"
	"github.com/fjod/go_cart/cart-sync/internal/view"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	// Cart is the last known cart, present when the session is still usable.
	Cart *view.CartView `json:"cart,omitempty"`
}

type CartResponse struct {
	Cart view.CartView `json:"cart"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// classify maps cart errors to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, gateway.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusUnauthorized, "session_expired"
	case errors.Is(err, gateway.ErrRejected):
		return http.StatusUnprocessableEntity, "rejected"
	case errors.Is(err, gateway.ErrUnavailable):
		return http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, engine.ErrClosed), errors.Is(err, engine.ErrReset):
		return http.StatusConflict, "session_closed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func errorMessage(err error, status int) string {
	switch {
	case status == http.StatusBadRequest:
		return err.Error()
	case errors.Is(err, session.ErrSessionNotFound):
		return "session expired, please sign in again"
	case status == http.StatusConflict:
		return "cart session has ended"
	case status == http.StatusGatewayTimeout:
		return "request timed out"
	case status == http.StatusInternalServerError:
		return "internal server error"
	default:
		return gateway.Message(err)
	}
}
