package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/cart-sync/internal/engine"
	"github.com/fjod/go_cart/cart-sync/internal/gateway"
	"github.com/fjod/go_cart/cart-sync/internal/session"
	"github.com/fjod/go_cart/cart-sync/internal/view"
	"github.com/fjod/go_cart/cart-sync/pkg/logger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Sessions is implemented by session.Registry.
type Sessions interface {
	Create(ctx context.Context, userID, accessToken string) (session.Session, error)
	Lookup(ctx context.Context, id string) (session.Session, error)
	Engine(ctx context.Context, id string) (*engine.Engine, error)
	Logout(ctx context.Context, id string) error
}

type CartHandler struct {
	sessions Sessions
	timeout  time.Duration
	log      *zap.Logger
}

func NewCartHandler(sessions Sessions, timeout time.Duration, log *zap.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		timeout:  timeout,
		log:      logger.OrNop(log),
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type DiscountRequestDTO struct {
	DiscountCode string `json:"discount_code"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, http.StatusOK, nil)
}

func (h *CartHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, http.StatusOK, func(ctx context.Context, e *engine.Engine) error {
		return e.Refresh(ctx)
	})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	h.run(w, r, http.StatusCreated, func(ctx context.Context, e *engine.Engine) error {
		return e.AddItem(ctx, req.ProductID, req.Quantity)
	})
}

func (h *CartHandler) Increment(w http.ResponseWriter, r *http.Request) {
	h.changeQuantity(w, r, 1)
}

func (h *CartHandler) Decrement(w http.ResponseWriter, r *http.Request) {
	h.changeQuantity(w, r, -1)
}

func (h *CartHandler) changeQuantity(w http.ResponseWriter, r *http.Request, delta int) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	h.run(w, r, http.StatusOK, func(ctx context.Context, e *engine.Engine) error {
		return e.ChangeQuantity(ctx, productID, delta)
	})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	h.run(w, r, http.StatusOK, func(ctx context.Context, e *engine.Engine) error {
		return e.RemoveLine(ctx, productID)
	})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, http.StatusOK, func(ctx context.Context, e *engine.Engine) error {
		return e.Clear(ctx)
	})
}

func (h *CartHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var req DiscountRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	h.run(w, r, http.StatusOK, func(ctx context.Context, e *engine.Engine) error {
		return e.ApplyDiscountCode(ctx, req.DiscountCode)
	})
}

// run resolves the session's engine, applies op and answers with the
// resulting cart view. A nil op only reads the cart.
func (h *CartHandler) run(w http.ResponseWriter, r *http.Request, okStatus int, op func(context.Context, *engine.Engine) error) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := sessionFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_session", "missing "+SessionHeader+" header")
		return
	}

	e, err := h.sessions.Engine(ctx, s.ID)
	if err != nil {
		h.respondCartError(ctx, w, s, nil, err)
		return
	}

	if op != nil {
		if err := op(ctx, e); err != nil {
			h.respondCartError(ctx, w, s, e, err)
			return
		}
	}

	respondJSON(w, okStatus, CartResponse{Cart: view.Project(e.State())})
}

// respondCartError answers a failed cart operation. The cart view is included
// while the session remains usable; an unauthenticated failure ends it.
func (h *CartHandler) respondCartError(ctx context.Context, w http.ResponseWriter, s session.Session, e *engine.Engine, err error) {
	status, code := classify(err)
	resp := ErrorResponse{
		Error: errorMessage(err, status),
		Code:  code,
	}

	switch {
	case errors.Is(err, gateway.ErrUnauthenticated):
		if lerr := h.sessions.Logout(context.WithoutCancel(ctx), s.ID); lerr != nil {
			logger.FromContext(ctx, h.log).Error("logout after auth failure", zap.Error(lerr))
		}
	case e != nil && status != http.StatusConflict:
		cart := view.Project(e.State())
		resp.Cart = &cart
	}
	if status == http.StatusInternalServerError {
		logger.FromContext(ctx, h.log).Error("cart request failed", zap.Error(err))
	}

	respondJSON(w, status, resp)
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}
