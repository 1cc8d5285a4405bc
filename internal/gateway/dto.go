package gateway

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Wire shapes of the storefront backend.

type productDTO struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"imageUrl"`
}

type cartItemDTO struct {
	ID       int64      `json:"id"`
	Quantity int        `json:"quantity"`
	Product  productDTO `json:"product"`
}

type totalItemDTO struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type cartTotalDTO struct {
	Total      decimal.Decimal  `json:"total"`
	ItemCount  int              `json:"item_count"`
	Items      []totalItemDTO   `json:"items"`
	Tax        decimal.Decimal  `json:"tax"`
	GrandTotal decimal.Decimal  `json:"grand_total"`
	Discount   *decimal.Decimal `json:"discount"`
}

type quantityDTO struct {
	Quantity int `json:"quantity"`
}

type addItemDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type discountRequestDTO struct {
	DiscountCode string `json:"discount_code"`
}

type discountResponseDTO struct {
	Success         bool            `json:"success"`
	Total           decimal.Decimal `json:"total"`
	DiscountApplied decimal.Decimal `json:"discount_applied"`
	NewTotal        decimal.Decimal `json:"new_total"`
	Message         *string         `json:"message"`
}

type placeOrderDTO struct {
	PaymentMethod string `json:"payment_method"`
}

type orderDTO struct {
	Success bool            `json:"success"`
	OrderID int64           `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
	Status  string          `json:"status"`
}

type orderItemDTO struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Product   *productDTO     `json:"product"`
}

type orderDetailDTO struct {
	ID        int64           `json:"id"`
	Status    string          `json:"status"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt string          `json:"created_at"`
	Items     []orderItemDTO  `json:"items"`
}

// errorBodyDTO is the backend's structured error. detail is either a string
// or a list of validation problems.
type errorBodyDTO struct {
	Detail json.RawMessage `json:"detail"`
}

type validationProblemDTO struct {
	Msg string `json:"msg"`
}

// detailMessage extracts a human readable message; ok is false when the body
// is not a structured error.
func detailMessage(body []byte) (string, bool) {
	var e errorBodyDTO
	if err := json.Unmarshal(body, &e); err != nil || len(e.Detail) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return s, s != ""
	}

	var problems []validationProblemDTO
	if err := json.Unmarshal(e.Detail, &problems); err == nil && len(problems) > 0 {
		msgs := make([]string, 0, len(problems))
		for _, p := range problems {
			if p.Msg != "" {
				msgs = append(msgs, p.Msg)
			}
		}
		return strings.Join(msgs, "; "), len(msgs) > 0
	}
	return "", false
}
