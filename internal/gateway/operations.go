package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/go_cart/cart-sync/internal/domain"
	"github.com/shopspring/decimal"
)

// DiscountResult is the partial totals object the discount endpoint returns.
type DiscountResult struct {
	AppliedAmount decimal.Decimal
	NewSubtotal   decimal.Decimal
	Message       string
}

// FetchItems returns the cart lines. FetchedAt is left for the caller to stamp.
func (g *HTTPGateway) FetchItems(ctx context.Context) (domain.CartSnapshot, error) {
	const op = "fetch items"
	var items []cartItemDTO
	if err := g.do(ctx, op, http.MethodGet, "/cart/", nil, &items); err != nil {
		return domain.CartSnapshot{}, err
	}

	snapshot := domain.CartSnapshot{Lines: make([]domain.CartLine, 0, len(items))}
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		line := domain.CartLine{
			ProductID: it.Product.ID,
			Name:      it.Product.Name,
			ImageURL:  it.Product.ImageURL,
			Quantity:  it.Quantity,
			UnitPrice: it.Product.Price,
		}
		if it.Product.Description != nil {
			line.Description = *it.Product.Description
		}
		snapshot.Lines = append(snapshot.Lines, line)
	}

	if err := snapshot.Validate(); err != nil {
		return domain.CartSnapshot{}, &Error{Op: op, Kind: ErrUnavailable, Err: err}
	}
	return snapshot, nil
}

func (g *HTTPGateway) FetchTotals(ctx context.Context) (domain.CartTotals, error) {
	var dto cartTotalDTO
	if err := g.do(ctx, "fetch totals", http.MethodGet, "/cart/total", nil, &dto); err != nil {
		return domain.CartTotals{}, err
	}

	totals := domain.CartTotals{
		Subtotal:   dto.Total,
		Tax:        dto.Tax,
		GrandTotal: dto.GrandTotal,
		ItemCount:  dto.ItemCount,
	}
	if dto.Discount != nil && dto.Discount.IsPositive() {
		d := *dto.Discount
		totals.Discount = &d
	}
	return totals, nil
}

func (g *HTTPGateway) SetQuantity(ctx context.Context, productID int64, quantity int) error {
	const op = "set quantity"
	if quantity < 1 {
		return &Error{Op: op, Kind: ErrRejected, Message: "quantity must be at least 1"}
	}
	path := fmt.Sprintf("/cart/%d", productID)
	return g.do(ctx, op, http.MethodPut, path, quantityDTO{Quantity: quantity}, nil)
}

// RemoveItem treats the backend's 404 for an absent line as success: the line
// is gone either way.
func (g *HTTPGateway) RemoveItem(ctx context.Context, productID int64) error {
	path := fmt.Sprintf("/cart/%d", productID)
	err := g.do(ctx, "remove item", http.MethodDelete, path, nil, nil)

	var gwErr *Error
	if errors.As(err, &gwErr) && errors.Is(err, ErrRejected) && gwErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

func (g *HTTPGateway) ApplyDiscount(ctx context.Context, code string) (DiscountResult, error) {
	var dto discountResponseDTO
	err := g.do(ctx, "apply discount", http.MethodPost, "/cart/discount", discountRequestDTO{DiscountCode: code}, &dto)
	if err != nil {
		return DiscountResult{}, err
	}

	res := DiscountResult{
		AppliedAmount: dto.DiscountApplied,
		NewSubtotal:   dto.NewTotal,
	}
	if dto.Message != nil {
		res.Message = *dto.Message
	}
	return res, nil
}

func (g *HTTPGateway) AddItem(ctx context.Context, productID int64, quantity int) error {
	const op = "add item"
	if quantity < 1 {
		return &Error{Op: op, Kind: ErrRejected, Message: "quantity must be at least 1"}
	}
	return g.do(ctx, op, http.MethodPost, "/cart/", addItemDTO{ProductID: productID, Quantity: quantity}, nil)
}

func (g *HTTPGateway) ClearCart(ctx context.Context) error {
	return g.do(ctx, "clear cart", http.MethodDelete, "/cart/", nil, nil)
}

func (g *HTTPGateway) PlaceOrder(ctx context.Context, paymentMethod string) (domain.Order, error) {
	var dto orderDTO
	err := g.do(ctx, "place order", http.MethodPost, "/orders/", placeOrderDTO{PaymentMethod: paymentMethod}, &dto)
	if err != nil {
		return domain.Order{}, err
	}
	return domain.Order{ID: dto.OrderID, Total: dto.Total, Status: dto.Status}, nil
}

// orderTimeLayouts covers timestamps with and without a zone offset.
var orderTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"}

// FetchOrder reads a placed order. A creation time the backend formats in an
// unknown way is left zero.
func (g *HTTPGateway) FetchOrder(ctx context.Context, orderID int64) (domain.OrderDetail, error) {
	var dto orderDetailDTO
	if err := g.do(ctx, "fetch order", http.MethodGet, fmt.Sprintf("/orders/%d", orderID), nil, &dto); err != nil {
		return domain.OrderDetail{}, err
	}

	order := domain.OrderDetail{
		ID:       dto.ID,
		Status:   dto.Status,
		Subtotal: dto.Subtotal,
		Tax:      dto.Tax,
		Total:    dto.Total,
		Items:    make([]domain.OrderItem, 0, len(dto.Items)),
	}
	for _, layout := range orderTimeLayouts {
		if t, err := time.Parse(layout, dto.CreatedAt); err == nil {
			order.CreatedAt = t
			break
		}
	}
	for _, it := range dto.Items {
		item := domain.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
			Subtotal:  it.Subtotal,
		}
		if it.Product != nil {
			item.Name = it.Product.Name
		}
		order.Items = append(order.Items, item)
	}
	return order, nil
}
