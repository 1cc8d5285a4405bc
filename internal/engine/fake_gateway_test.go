package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/fjod/go_cart/cart-sync/internal/domain"
	"github.com/fjod/go_cart/cart-sync/internal/gateway"
	"github.com/shopspring/decimal"
)

// hold parks the next call of a method after it has read backend state,
// so tests can interleave other operations with an in-flight response.
type hold struct {
	entered chan struct{}
	release chan struct{}
}

// fakeGateway is an in-memory storefront backend.
type fakeGateway struct {
	mu          sync.Mutex
	lines       []domain.CartLine
	taxRate     decimal.Decimal
	taxOverride *decimal.Decimal
	discount    *gateway.DiscountResult
	errs        map[string][]error
	holds       map[string]*hold
	calls       []string
	lastTotals  domain.CartTotals
	nextOrderID int64
	orders      map[int64]domain.OrderDetail
}

func newFakeGateway(lines ...domain.CartLine) *fakeGateway {
	return &fakeGateway{
		lines:       lines,
		taxRate:     decimal.RequireFromString("0.08"),
		errs:        make(map[string][]error),
		holds:       make(map[string]*hold),
		nextOrderID: 1,
		orders:      make(map[int64]domain.OrderDetail),
	}
}

func line(productID int64, quantity int, price string) domain.CartLine {
	return domain.CartLine{
		ProductID: productID,
		Name:      fmt.Sprintf("product-%d", productID),
		Quantity:  quantity,
		UnitPrice: decimal.RequireFromString(price),
	}
}

func unavailable(op string) error {
	return &gateway.Error{Op: op, Kind: gateway.ErrUnavailable, Status: http.StatusServiceUnavailable}
}

func unauthenticated(op string) error {
	return &gateway.Error{Op: op, Kind: gateway.ErrUnauthenticated, Status: http.StatusUnauthorized}
}

func rejected(op, msg string) error {
	return &gateway.Error{Op: op, Kind: gateway.ErrRejected, Status: http.StatusBadRequest, Message: msg}
}

func (f *fakeGateway) failNext(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = append(f.errs[method], err)
}

func (f *fakeGateway) holdNext(method string) *hold {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &hold{entered: make(chan struct{}), release: make(chan struct{})}
	f.holds[method] = h
	return h
}

func (f *fakeGateway) setTax(tax string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := decimal.RequireFromString(tax)
	f.taxOverride = &t
}

func (f *fakeGateway) acceptDiscount(applied, newSubtotal string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discount = &gateway.DiscountResult{
		AppliedAmount: decimal.RequireFromString(applied),
		NewSubtotal:   decimal.RequireFromString(newSubtotal),
	}
}

// enter records the call and pops any queued error or hold. Callers hold f.mu.
func (f *fakeGateway) enterLocked(method, detail string) (*hold, error) {
	f.calls = append(f.calls, method+detail)

	var err error
	if q := f.errs[method]; len(q) > 0 {
		err = q[0]
		f.errs[method] = q[1:]
	}
	h := f.holds[method]
	delete(f.holds, method)
	return h, err
}

func (h *hold) wait() {
	if h == nil {
		return
	}
	close(h.entered)
	<-h.release
}

func (f *fakeGateway) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method || len(c) > len(method) && c[:len(method)+1] == method+" " {
			n++
		}
	}
	return n
}

func (f *fakeGateway) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeGateway) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeGateway) lastTotalsReturned() domain.CartTotals {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTotals
}

func (f *fakeGateway) indexOfLocked(productID int64) int {
	for i, l := range f.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (f *fakeGateway) totalsLocked() domain.CartTotals {
	subtotal := decimal.Zero
	count := 0
	for _, l := range f.lines {
		subtotal = subtotal.Add(l.LineSubtotal())
		count += l.Quantity
	}
	tax := subtotal.Mul(f.taxRate).Round(2)
	if f.taxOverride != nil {
		tax = *f.taxOverride
	}
	return domain.CartTotals{
		Subtotal:   subtotal,
		Tax:        tax,
		GrandTotal: subtotal.Add(tax),
		ItemCount:  count,
	}
}

func (f *fakeGateway) FetchItems(context.Context) (domain.CartSnapshot, error) {
	f.mu.Lock()
	h, err := f.enterLocked("FetchItems", "")
	snapshot := domain.CartSnapshot{Lines: append([]domain.CartLine(nil), f.lines...)}
	f.mu.Unlock()

	h.wait()
	if err != nil {
		return domain.CartSnapshot{}, err
	}
	return snapshot, nil
}

func (f *fakeGateway) FetchTotals(context.Context) (domain.CartTotals, error) {
	f.mu.Lock()
	h, err := f.enterLocked("FetchTotals", "")
	totals := f.totalsLocked()
	if err == nil {
		f.lastTotals = totals
	}
	f.mu.Unlock()

	h.wait()
	if err != nil {
		return domain.CartTotals{}, err
	}
	return totals, nil
}

func (f *fakeGateway) SetQuantity(_ context.Context, productID int64, quantity int) error {
	f.mu.Lock()
	h, err := f.enterLocked("SetQuantity", fmt.Sprintf(" %d %d", productID, quantity))
	if err == nil {
		if i := f.indexOfLocked(productID); i >= 0 {
			f.lines[i].Quantity = quantity
		} else {
			err = &gateway.Error{Op: "set quantity", Kind: gateway.ErrRejected, Status: http.StatusNotFound, Message: "Cart item not found"}
		}
	}
	f.mu.Unlock()

	h.wait()
	return err
}

func (f *fakeGateway) RemoveItem(_ context.Context, productID int64) error {
	f.mu.Lock()
	h, err := f.enterLocked("RemoveItem", fmt.Sprintf(" %d", productID))
	if err == nil {
		if i := f.indexOfLocked(productID); i >= 0 {
			f.lines = append(f.lines[:i], f.lines[i+1:]...)
		}
	}
	f.mu.Unlock()

	h.wait()
	return err
}

func (f *fakeGateway) ApplyDiscount(_ context.Context, code string) (gateway.DiscountResult, error) {
	f.mu.Lock()
	h, err := f.enterLocked("ApplyDiscount", " "+code)
	res := f.discount
	f.mu.Unlock()

	h.wait()
	if err != nil {
		return gateway.DiscountResult{}, err
	}
	if res == nil {
		return gateway.DiscountResult{}, rejected("apply discount", "Invalid discount code")
	}
	return *res, nil
}

func (f *fakeGateway) AddItem(_ context.Context, productID int64, quantity int) error {
	f.mu.Lock()
	h, err := f.enterLocked("AddItem", fmt.Sprintf(" %d %d", productID, quantity))
	if err == nil {
		if i := f.indexOfLocked(productID); i >= 0 {
			f.lines[i].Quantity += quantity
		} else {
			f.lines = append(f.lines, line(productID, quantity, "1.00"))
		}
	}
	f.mu.Unlock()

	h.wait()
	return err
}

func (f *fakeGateway) ClearCart(context.Context) error {
	f.mu.Lock()
	h, err := f.enterLocked("ClearCart", "")
	if err == nil {
		f.lines = nil
	}
	f.mu.Unlock()

	h.wait()
	return err
}

func (f *fakeGateway) PlaceOrder(_ context.Context, paymentMethod string) (domain.Order, error) {
	f.mu.Lock()
	h, err := f.enterLocked("PlaceOrder", " "+paymentMethod)
	var order domain.Order
	if err == nil {
		totals := f.totalsLocked()
		order = domain.Order{ID: f.nextOrderID, Total: totals.GrandTotal, Status: "Pending"}
		detail := domain.OrderDetail{ID: order.ID, Status: order.Status, Subtotal: totals.Subtotal,
			Tax: totals.Tax, Total: totals.GrandTotal}
		for _, l := range f.lines {
			detail.Items = append(detail.Items, domain.OrderItem{ProductID: l.ProductID, Name: l.Name,
				Quantity: l.Quantity, UnitPrice: l.UnitPrice, Subtotal: l.LineSubtotal()})
		}
		f.orders[order.ID] = detail
		f.nextOrderID++
		f.lines = nil
	}
	f.mu.Unlock()

	h.wait()
	return order, err
}

func (f *fakeGateway) FetchOrder(_ context.Context, orderID int64) (domain.OrderDetail, error) {
	f.mu.Lock()
	h, err := f.enterLocked("FetchOrder", fmt.Sprintf(" %d", orderID))
	order, ok := f.orders[orderID]
	if err == nil && !ok {
		err = &gateway.Error{Op: "fetch order", Kind: gateway.ErrRejected, Status: http.StatusNotFound, Message: "Order not found"}
	}
	f.mu.Unlock()

	h.wait()
	return order, err
}
