package view

import (
	"encoding/json"
	"testing"

	"github.com/fjod/go_cart/cart-sync/internal/domain"
	"github.com/fjod/go_cart/cart-sync/internal/engine"
	"github.com/fjod/go_cart/cart-sync/internal/gateway"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func populatedState() engine.State {
	return engine.State{
		Snapshot: domain.CartSnapshot{
			Lines: []domain.CartLine{
				{ProductID: 1, Name: "Matcha", Quantity: 2, UnitPrice: dec("12.5")},
				{ProductID: 2, Name: "Yuzu jam", Quantity: 1, UnitPrice: dec("8")},
			},
			FetchedAt: 3,
		},
		Totals: &domain.CartTotals{
			Subtotal:   dec("33"),
			Tax:        dec("2.64"),
			GrandTotal: dec("35.64"),
			ItemCount:  3,
			FetchedAt:  3,
		},
		Status: domain.SyncStatusIdle,
	}
}

func TestProject_Populated(t *testing.T) {
	v := Project(populatedState())

	assert.Equal(t, KindPopulated, v.Kind)
	require.Len(t, v.Lines, 2)
	assert.Equal(t, "12.50", v.Lines[0].UnitPrice)
	assert.Equal(t, "25.00", v.Lines[0].LineSubtotal)
	require.NotNil(t, v.Summary)
	assert.Equal(t, "33.00", v.Summary.Subtotal)
	assert.Equal(t, "2.64", v.Summary.Tax)
	assert.Equal(t, "35.64", v.Summary.GrandTotal)
	assert.Equal(t, 3, v.Summary.ItemCount)
	assert.Nil(t, v.Summary.DiscountLabel)
	assert.False(t, v.TotalsUnavailable)
	assert.False(t, v.LinesStale)
	assert.False(t, v.TotalsMismatch)
	assert.Empty(t, v.Error)
}

func TestProject_GrandTotalPassedThrough(t *testing.T) {
	st := populatedState()
	// backend says something the lines do not add up to
	st.Totals.GrandTotal = dec("99.99")

	v := Project(st)

	assert.Equal(t, "99.99", v.Summary.GrandTotal)
	assert.True(t, v.TotalsMismatch)
}

func TestProject_EmptyCartSuppressesTotals(t *testing.T) {
	st := populatedState()
	st.Snapshot.Lines = nil
	st.Snapshot.FetchedAt = 4

	v := Project(st)

	assert.Equal(t, KindEmpty, v.Kind)
	assert.Nil(t, v.Summary)
	assert.NotNil(t, v.Lines)
	assert.Empty(t, v.Lines)
}

func TestProject_StaleTotals(t *testing.T) {
	st := populatedState()
	st.Snapshot.FetchedAt = 5
	st.Status = domain.SyncStatusError
	st.Err = &gateway.Error{Op: "fetch totals", Kind: gateway.ErrUnavailable}

	v := Project(st)

	assert.True(t, v.TotalsUnavailable)
	require.NotNil(t, v.Summary, "last known totals are kept")
	assert.Equal(t, "35.64", v.Summary.GrandTotal)
	assert.Equal(t, domain.SyncStatusError, v.Status)
	assert.Equal(t, gateway.Message(st.Err), v.Error)
}

func TestProject_StaleLines(t *testing.T) {
	st := populatedState()
	st.Totals.FetchedAt = 5
	st.Status = domain.SyncStatusError
	st.Err = &gateway.Error{Op: "fetch items", Kind: gateway.ErrUnavailable}

	v := Project(st)

	assert.True(t, v.LinesStale)
	assert.False(t, v.TotalsUnavailable)
	require.Len(t, v.Lines, 2, "last known lines are kept")
	assert.Equal(t, gateway.Message(st.Err), v.Error)
}

func TestProject_NoTotalsYet(t *testing.T) {
	st := populatedState()
	st.Totals = nil

	v := Project(st)

	assert.Equal(t, KindPopulated, v.Kind)
	assert.True(t, v.TotalsUnavailable)
	assert.Nil(t, v.Summary)
}

func TestProject_Discount(t *testing.T) {
	st := populatedState()
	discount := dec("5")
	st.Totals.Discount = &discount
	st.Totals.GrandTotal = dec("30.64")
	st.Discount = &domain.DiscountState{Code: "SAVE10", AppliedAmount: discount}

	v := Project(st)

	require.NotNil(t, v.Summary.DiscountLabel)
	assert.Equal(t, "SAVE10 (-5.00)", *v.Summary.DiscountLabel)
	require.NotNil(t, v.Summary.Discount)
	assert.Equal(t, "5.00", *v.Summary.Discount)
	assert.False(t, v.TotalsMismatch)
}

func TestProject_DoesNotAliasState(t *testing.T) {
	st := populatedState()
	v := Project(st)
	v.Lines[0].Quantity = 10

	assert.Equal(t, 2, st.Snapshot.Lines[0].Quantity)
}

func TestProject_JSONShape(t *testing.T) {
	data, err := json.Marshal(Project(populatedState()))
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "populated", out["kind"])
	assert.Equal(t, "IDLE", out["status"])
	summary := out["summary"].(map[string]any)
	assert.Equal(t, "35.64", summary["grand_total"])
	assert.NotContains(t, summary, "discount_label")
}
