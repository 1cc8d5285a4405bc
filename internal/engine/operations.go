package engine

import (
	"context"
	"strings"

	"github.com/fjod/go_cart/cart-sync/internal/domain"
	"go.uber.org/zap"
)

// ChangeQuantity moves a line's quantity by delta (+1 or -1). The new quantity
// is computed from the snapshot current when the request reaches the head of
// the queue. Dropping below 1 is rejected: removal goes through RemoveLine.
func (e *Engine) ChangeQuantity(ctx context.Context, productID int64, delta int) error {
	if delta != 1 && delta != -1 {
		return validationError("quantity delta must be +1 or -1, got %d", delta)
	}

	return e.submit(ctx, "change quantity", func(ctx context.Context) error {
		e.mu.Lock()
		line, ok := e.snapshot.Line(productID)
		e.mu.Unlock()

		if !ok {
			return validationError("product %d is not in the cart", productID)
		}
		quantity := line.Quantity + delta
		if quantity < 1 {
			return validationError("quantity cannot drop below 1, remove the line instead")
		}
		if quantity > MaxQuantity {
			return validationError("quantity cannot exceed %d", MaxQuantity)
		}

		return e.mutateRemote(ctx, func(ctx context.Context) error {
			return e.gw.SetQuantity(ctx, productID, quantity)
		})
	})
}

// RemoveLine asks the backend to drop the line. Whether an absent line is an
// error is the backend's call.
func (e *Engine) RemoveLine(ctx context.Context, productID int64) error {
	return e.submit(ctx, "remove line", func(ctx context.Context) error {
		return e.mutateRemote(ctx, func(ctx context.Context) error {
			return e.gw.RemoveItem(ctx, productID)
		})
	})
}

func (e *Engine) AddItem(ctx context.Context, productID int64, quantity int) error {
	if productID <= 0 {
		return validationError("product_id must be positive")
	}
	if quantity < 1 || quantity > MaxQuantity {
		return validationError("quantity must be between 1 and %d", MaxQuantity)
	}

	return e.submit(ctx, "add item", func(ctx context.Context) error {
		return e.mutateRemote(ctx, func(ctx context.Context) error {
			return e.gw.AddItem(ctx, productID, quantity)
		})
	})
}

func (e *Engine) Clear(ctx context.Context) error {
	return e.submit(ctx, "clear cart", func(ctx context.Context) error {
		return e.mutateRemote(ctx, e.gw.ClearCart)
	})
}

// ApplyDiscountCode applies a code through the backend. The discount endpoint
// only returns the new subtotal, so the grand total is recombined locally as
// new subtotal + last fetched tax. That requires totals to be loaded.
func (e *Engine) ApplyDiscountCode(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return validationError("discount code is empty")
	}

	return e.submit(ctx, "apply discount", func(ctx context.Context) error {
		e.mu.Lock()
		loaded := e.totals != nil
		e.mu.Unlock()
		if !loaded {
			return validationError("cart totals are not loaded yet")
		}

		epoch := e.beginSync()
		res, err := e.gw.ApplyDiscount(ctx, code)
		if err != nil {
			return e.fail(epoch, err)
		}

		e.mu.Lock()
		if epoch != e.epoch || e.totals == nil {
			e.mu.Unlock()
			return ErrReset
		}
		e.mutationSeq++

		totals := e.totals.Clone()
		applied := res.AppliedAmount
		totals.Discount = &applied
		totals.GrandTotal = res.NewSubtotal.Add(totals.Tax)
		e.totals = &totals
		e.discount = &domain.DiscountState{Code: code, AppliedAmount: applied}
		e.mutating = false
		e.status = domain.SyncStatusIdle
		e.lastErr = nil
		st := e.stateLocked()
		e.mu.Unlock()

		e.log.Info("discount applied",
			zap.String("code", code),
			zap.String("applied", applied.StringFixed(2)),
			zap.String("grand_total", totals.GrandTotal.StringFixed(2)))
		e.verifyTotals(totals)
		e.notify(st)
		return nil
	})
}

// Checkout places an order for the current cart and then refetches it. The
// order is returned even when the refetch afterwards fails.
func (e *Engine) Checkout(ctx context.Context, paymentMethod string) (domain.Order, error) {
	paymentMethod = strings.TrimSpace(paymentMethod)
	if paymentMethod == "" {
		return domain.Order{}, validationError("payment method is required")
	}

	placed := make(chan domain.Order, 1)
	err := e.submit(ctx, "checkout", func(ctx context.Context) error {
		e.mu.Lock()
		empty := e.snapshot.IsEmpty()
		e.mu.Unlock()
		if empty {
			return validationError("cart is empty, nothing to checkout")
		}

		return e.mutateRemote(ctx, func(ctx context.Context) error {
			order, err := e.gw.PlaceOrder(ctx, paymentMethod)
			if err == nil {
				placed <- order
			}
			return err
		})
	})

	select {
	case order := <-placed:
		return order, err
	default:
		return domain.Order{}, err
	}
}

// Order reads a placed order. It does not queue behind mutations and leaves
// the cart state untouched.
func (e *Engine) Order(ctx context.Context, orderID int64) (domain.OrderDetail, error) {
	if e.isClosed() {
		return domain.OrderDetail{}, ErrClosed
	}
	if orderID <= 0 {
		return domain.OrderDetail{}, validationError("order id must be positive")
	}

	e.mu.Lock()
	session := e.sessionCtx
	e.mu.Unlock()

	octx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(session, cancel)
	defer stop()

	order, err := e.gw.FetchOrder(octx, orderID)
	if err != nil {
		e.checkSession(err)
		return domain.OrderDetail{}, err
	}
	return order, nil
}
