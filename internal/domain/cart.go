package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CartLine is one product's presence in the cart. UnitPrice always comes from
// the backend at fetch time.
type CartLine struct {
	ProductID   int64           `json:"product_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// LineSubtotal is a display derivation only; charges use the backend totals.
func (l CartLine) LineSubtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartSnapshot is the local belief about cart contents. FetchedAt is the
// version marker of the fetch that produced it; zero means never fetched.
type CartSnapshot struct {
	Lines     []CartLine `json:"lines"`
	FetchedAt uint64     `json:"fetched_at"`
}

func (s CartSnapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

func (s CartSnapshot) Line(productID int64) (CartLine, bool) {
	for _, l := range s.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}

func (s CartSnapshot) Clone() CartSnapshot {
	out := CartSnapshot{FetchedAt: s.FetchedAt}
	if s.Lines != nil {
		out.Lines = make([]CartLine, len(s.Lines))
		copy(out.Lines, s.Lines)
	}
	return out
}

// Validate checks the snapshot invariants: unique product ids, quantity >= 1.
func (s CartSnapshot) Validate() error {
	seen := make(map[int64]struct{}, len(s.Lines))
	for _, l := range s.Lines {
		if l.Quantity < 1 {
			return fmt.Errorf("%w: product %d has quantity %d", ErrInvalidSnapshot, l.ProductID, l.Quantity)
		}
		if _, dup := seen[l.ProductID]; dup {
			return fmt.Errorf("%w: product %d listed twice", ErrInvalidSnapshot, l.ProductID)
		}
		seen[l.ProductID] = struct{}{}
	}
	return nil
}
