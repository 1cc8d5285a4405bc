// Package view projects engine state into the read model the storefront
// pages render. Projection is pure: it never calls the backend and never
// recomputes the grand total.
package view

import (
	"errors"
	"fmt"

	"github.com/fjod/go_cart/cart-sync/internal/domain"
	"github.com/fjod/go_cart/cart-sync/internal/engine"
	"github.com/fjod/go_cart/cart-sync/internal/gateway"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindEmpty     Kind = "empty"
	KindPopulated Kind = "populated"
)

type LineRow struct {
	ProductID    int64  `json:"product_id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	Quantity     int    `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	LineSubtotal string `json:"line_subtotal"`
}

type Summary struct {
	Subtotal      string  `json:"subtotal"`
	DiscountLabel *string `json:"discount_label,omitempty"`
	Discount      *string `json:"discount,omitempty"`
	Tax           string  `json:"tax"`
	GrandTotal    string  `json:"grand_total"`
	ItemCount     int     `json:"item_count"`
}

// CartView is the display model of one cart. Summary is nil for an empty
// cart and for a cart whose totals were never loaded.
type CartView struct {
	Kind   Kind              `json:"kind"`
	Status domain.SyncStatus `json:"status"`
	Lines  []LineRow         `json:"lines"`
	// Summary is absent for an empty cart and until totals are first loaded.
	Summary *Summary `json:"summary,omitempty"`
	// TotalsUnavailable is set when the summary is older than the lines or missing.
	TotalsUnavailable bool `json:"totals_unavailable"`
	// LinesStale is set when the summary reflects a newer cart than the lines,
	// e.g. after an item read failed but the totals read succeeded.
	LinesStale bool `json:"lines_stale"`
	// TotalsMismatch is set when the backend totals do not add up.
	TotalsMismatch bool   `json:"totals_mismatch"`
	Error          string `json:"error,omitempty"`
}

func Project(st engine.State) CartView {
	v := CartView{
		Status: st.Status,
		Lines:  make([]LineRow, 0, len(st.Snapshot.Lines)),
		Error:  errorMessage(st.Err),
	}

	if st.Snapshot.IsEmpty() {
		v.Kind = KindEmpty
		return v
	}
	v.Kind = KindPopulated

	for _, l := range st.Snapshot.Lines {
		v.Lines = append(v.Lines, LineRow{
			ProductID:    l.ProductID,
			Name:         l.Name,
			Description:  l.Description,
			ImageURL:     l.ImageURL,
			Quantity:     l.Quantity,
			UnitPrice:    money(l.UnitPrice),
			LineSubtotal: money(l.LineSubtotal()),
		})
	}

	if st.Totals == nil {
		v.TotalsUnavailable = true
		return v
	}
	t := st.Totals
	v.TotalsUnavailable = t.FetchedAt < st.Snapshot.FetchedAt
	v.LinesStale = st.Snapshot.FetchedAt < t.FetchedAt
	v.TotalsMismatch = t.Verify() != nil
	v.Summary = &Summary{
		Subtotal:   money(t.Subtotal),
		Tax:        money(t.Tax),
		GrandTotal: money(t.GrandTotal),
		ItemCount:  t.ItemCount,
	}
	if t.Discount != nil {
		amount := money(*t.Discount)
		v.Summary.Discount = &amount
		if st.Discount != nil {
			label := DiscountLabel(*st.Discount)
			v.Summary.DiscountLabel = &label
		}
	}
	return v
}

// DiscountLabel renders an applied code as "CODE (-x.xx)".
func DiscountLabel(d domain.DiscountState) string {
	return fmt.Sprintf("%s (-%s)", d.Code, money(d.AppliedAmount))
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func errorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, engine.ErrValidation):
		return err.Error()
	default:
		return gateway.Message(err)
	}
}
