package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/cart-sync/internal/domain"
	"github.com/fjod/go_cart/cart-sync/internal/gateway"
	"github.com/fjod/go_cart/cart-sync/internal/view"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	carts *CartHandler
}

func NewCheckoutHandler(sessions Sessions, timeout time.Duration, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{carts: NewCartHandler(sessions, timeout, log)}
}

type CheckoutRequestDTO struct {
	PaymentMethod string `json:"payment_method"`
}

type OrderResponseDTO struct {
	OrderID int64  `json:"order_id"`
	Total   string `json:"total"`
	Status  string `json:"status"`
}

type CheckoutResponseDTO struct {
	Order OrderResponseDTO `json:"order"`
	Cart  view.CartView    `json:"cart"`
}

func convertOrder(o domain.Order) OrderResponseDTO {
	return OrderResponseDTO{
		OrderID: o.ID,
		Total:   o.Total.StringFixed(2),
		Status:  o.Status,
	}
}

type OrderItemDTO struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type OrderDetailResponseDTO struct {
	OrderID   int64          `json:"order_id"`
	Status    string         `json:"status"`
	Subtotal  string         `json:"subtotal"`
	Tax       string         `json:"tax"`
	Total     string         `json:"total"`
	CreatedAt *time.Time     `json:"created_at,omitempty"`
	Items     []OrderItemDTO `json:"items"`
}

func convertOrderDetail(o domain.OrderDetail) OrderDetailResponseDTO {
	resp := OrderDetailResponseDTO{
		OrderID:  o.ID,
		Status:   o.Status,
		Subtotal: o.Subtotal.StringFixed(2),
		Tax:      o.Tax.StringFixed(2),
		Total:    o.Total.StringFixed(2),
		Items:    make([]OrderItemDTO, 0, len(o.Items)),
	}
	if !o.CreatedAt.IsZero() {
		created := o.CreatedAt
		resp.CreatedAt = &created
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, OrderItemDTO{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Subtotal:  it.Subtotal.StringFixed(2),
		})
	}
	return resp
}

// Checkout places the order. When the order was accepted but the cart could
// not be reloaded afterwards, the order is still reported; the cart view
// carries the sync error.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.carts.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s, ok := sessionFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_session", "missing "+SessionHeader+" header")
		return
	}

	e, err := h.carts.sessions.Engine(ctx, s.ID)
	if err != nil {
		h.carts.respondCartError(ctx, w, s, nil, err)
		return
	}

	order, err := e.Checkout(ctx, req.PaymentMethod)
	if err != nil && order.ID == 0 {
		h.carts.respondCartError(ctx, w, s, e, err)
		return
	}

	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{
		Order: convertOrder(order),
		Cart:  view.Project(e.State()),
	})
}

// GetOrder returns a placed order of the session's user.
func (h *CheckoutHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "order_id"), 10, 64)
	if err != nil || orderID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a positive integer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.carts.timeout)
	defer cancel()

	s, ok := sessionFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_session", "missing "+SessionHeader+" header")
		return
	}

	e, err := h.carts.sessions.Engine(ctx, s.ID)
	if err != nil {
		h.carts.respondCartError(ctx, w, s, nil, err)
		return
	}

	order, err := e.Order(ctx, orderID)
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) && gwErr.Status == http.StatusNotFound {
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
		return
	}
	if err != nil {
		h.carts.respondCartError(ctx, w, s, nil, err)
		return
	}

	respondJSON(w, http.StatusOK, convertOrderDetail(order))
}
