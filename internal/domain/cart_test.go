package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLineItem_ClampsAndAssignsID(t *testing.T) {
	p := Product{ID: "p1", Name: "Mouse", Price: decimal.RequireFromString("10"), Image: "m.png"}
	a := NewLineItem(p, 0)
	b := NewLineItem(p, 3)

	assert.Equal(t, 1, a.Quantity)
	assert.Equal(t, 3, b.Quantity)
	assert.NotEmpty(t, a.LineItemID)
	assert.NotEqual(t, a.LineItemID, b.LineItemID)
	assert.Equal(t, "m.png", a.ImageRef)
}

func TestCartLineItem_Validate(t *testing.T) {
	err := CartLineItem{UnitPrice: decimal.NewFromInt(-1)}.Validate()
	require.Error(t, err)

	var v *ValidationError
	require.ErrorAs(t, err, &v)
	assert.Contains(t, v.Fields, "productId")
	assert.Contains(t, v.Fields, "name")
	assert.Contains(t, v.Fields, "unitPrice")

	ok := CartLineItem{ProductID: "p", Name: "n", UnitPrice: decimal.Zero, Quantity: 1}
	assert.NoError(t, ok.Validate())
}

func TestCartLineItem_LineTotal(t *testing.T) {
	i := CartLineItem{UnitPrice: decimal.RequireFromString("5.50"), Quantity: 3}
	assert.True(t, i.LineTotal().Equal(decimal.RequireFromString("16.5")))
}
