package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CartTotals are computed by the backend and treated as authoritative.
// Discount is nil when no discount is in effect.
type CartTotals struct {
	Subtotal   decimal.Decimal  `json:"subtotal"`
	Tax        decimal.Decimal  `json:"tax"`
	Discount   *decimal.Decimal `json:"discount,omitempty"`
	GrandTotal decimal.Decimal  `json:"grand_total"`
	ItemCount  int              `json:"item_count"`
	FetchedAt  uint64           `json:"fetched_at"`
}

func (t CartTotals) DiscountAmount() decimal.Decimal {
	if t.Discount == nil {
		return decimal.Zero
	}
	return *t.Discount
}

// Verify checks grand_total == subtotal - discount + tax to the cent.
func (t CartTotals) Verify() error {
	expected := t.Subtotal.Sub(t.DiscountAmount()).Add(t.Tax).Round(2)
	if !expected.Equal(t.GrandTotal.Round(2)) {
		return fmt.Errorf("%w: expected %s, backend reported %s",
			ErrTotalsMismatch, expected.StringFixed(2), t.GrandTotal.StringFixed(2))
	}
	return nil
}

func (t CartTotals) Clone() CartTotals {
	out := t
	if t.Discount != nil {
		d := *t.Discount
		out.Discount = &d
	}
	return out
}

// DiscountState records a discount code the backend accepted.
type DiscountState struct {
	Code          string          `json:"code"`
	AppliedAmount decimal.Decimal `json:"applied_amount"`
}

// Order is what the backend returns after a successful checkout.
type Order struct {
	ID     int64           `json:"order_id"`
	Total  decimal.Decimal `json:"total"`
	Status string          `json:"status"`
}

// OrderDetail is a placed order as the backend reports it on later reads.
type OrderDetail struct {
	ID        int64           `json:"order_id"`
	Status    string          `json:"status"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
	Items     []OrderItem     `json:"items"`
}

type OrderItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}
