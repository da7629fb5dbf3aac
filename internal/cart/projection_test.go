package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/domain"
)

func TestProject_Empty(t *testing.T) {
	p := Project(domain.CartSnapshot{})
	assert.True(t, p.Subtotal.IsZero())
	assert.Equal(t, 0, p.ItemCount)
	assert.Equal(t, "0.00", p.SubtotalDisplay())
}

func TestProject_TwoLineSubtotal(t *testing.T) {
	s := NewStore()
	_, _ = s.Add(item("A", "10.00", 2))
	_, _ = s.Add(item("B", "5.50", 1))

	p := Project(s.Snapshot())
	assert.Equal(t, "25.50", p.SubtotalDisplay())
	assert.True(t, p.RoundedSubtotal().Equal(decimal.RequireFromString("25.5")))
	assert.Equal(t, 3, p.ItemCount)
}

func TestProject_SubtotalIsSumOfLines(t *testing.T) {
	snap := domain.CartSnapshot{Items: []domain.CartLineItem{
		{LineItemID: "a", UnitPrice: decimal.RequireFromString("0.333"), Quantity: 3},
		{LineItemID: "b", UnitPrice: decimal.RequireFromString("19.99"), Quantity: 2},
		{LineItemID: "c", UnitPrice: decimal.Zero, Quantity: 5},
	}}

	p := Project(snap)
	require.Len(t, p.Lines, 3)

	sum := decimal.Zero
	for _, l := range p.Lines {
		sum = sum.Add(l.Total)
	}
	assert.True(t, sum.Equal(p.Subtotal))
	assert.True(t, p.Subtotal.Equal(decimal.RequireFromString("40.979")))
	assert.Equal(t, "40.98", p.SubtotalDisplay())
	assert.Equal(t, "1.00", p.LineDisplay("a"))
	assert.Equal(t, 10, p.ItemCount)
}

func TestProject_AdditiveOverConcatenation(t *testing.T) {
	left := []domain.CartLineItem{{LineItemID: "a", UnitPrice: decimal.RequireFromString("1.1"), Quantity: 2}}
	right := []domain.CartLineItem{{LineItemID: "b", UnitPrice: decimal.RequireFromString("2.05"), Quantity: 3}}

	whole := Project(domain.CartSnapshot{Items: append(append([]domain.CartLineItem{}, left...), right...)})
	l := Project(domain.CartSnapshot{Items: left})
	r := Project(domain.CartSnapshot{Items: right})

	assert.True(t, whole.Subtotal.Equal(l.Subtotal.Add(r.Subtotal)))
	assert.Equal(t, l.ItemCount+r.ItemCount, whole.ItemCount)
}

func TestProjector_MemoizesOnVersion(t *testing.T) {
	s := NewStore()
	pr := NewProjector()

	_, _ = s.Add(item("A", "2", 1))
	first := pr.Project(s.Snapshot())
	again := pr.Project(s.Snapshot())
	assert.Equal(t, first, again)
	assert.Equal(t, 1, pr.Computations())

	a := s.Snapshot().Items[0]
	s.Increment(a.LineItemID)
	next := pr.Project(s.Snapshot())
	assert.Equal(t, 2, pr.Computations())
	assert.Equal(t, "4.00", next.SubtotalDisplay())
}
