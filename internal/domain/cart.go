package domain

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartLineItem is one product entry in the cart. Two entries for the same
// product are still distinct line items.
type CartLineItem struct {
	LineItemID string          `json:"lineItemId"`
	ProductID  string          `json:"productId"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	Quantity   int             `json:"quantity"`
	ImageRef   string          `json:"imageRef,omitempty"`
}

// CartSnapshot is a point-in-time copy of the cart. Version identifies the
// store state it was read from.
type CartSnapshot struct {
	Version uint64         `json:"version"`
	Items   []CartLineItem `json:"items"`
}

func NewLineItem(p Product, quantity int) CartLineItem {
	return CartLineItem{
		LineItemID: NewLineItemID(),
		ProductID:  p.ID,
		Name:       p.Name,
		UnitPrice:  p.Price,
		Quantity:   ClampQuantity(quantity),
		ImageRef:   p.Image,
	}
}

func NewLineItemID() string {
	return uuid.NewString()
}

// ClampQuantity floors q at 1.
func ClampQuantity(q int) int {
	if q < 1 {
		return 1
	}
	return q
}

func (i CartLineItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i CartLineItem) Validate() error {
	v := ValidationError{}
	if strings.TrimSpace(i.ProductID) == "" {
		v.Add("productId", "product id is required")
	}
	if strings.TrimSpace(i.Name) == "" {
		v.Add("name", "name is required")
	}
	if i.UnitPrice.IsNegative() {
		v.Add("unitPrice", "unit price must be >= 0")
	}
	if v.HasErrors() {
		return &v
	}
	return nil
}

func (s CartSnapshot) Len() int {
	return len(s.Items)
}

func (s CartSnapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// Clone returns a deep copy that shares nothing with s.
func (s CartSnapshot) Clone() CartSnapshot {
	return CartSnapshot{Version: s.Version, Items: CloneItems(s.Items)}
}

func CloneItems(items []CartLineItem) []CartLineItem {
	if items == nil {
		return nil
	}
	out := make([]CartLineItem, len(items))
	copy(out, items)
	return out
}
