package cart

import (
	"sync"

	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
)

type LineTotal struct {
	LineItemID string          `json:"lineItemId"`
	Total      decimal.Decimal `json:"total"`
}

// Projection is the derived read view of a snapshot. Totals are unrounded;
// use the Rounded helpers for display.
type Projection struct {
	Version   uint64          `json:"version"`
	Lines     []LineTotal     `json:"lines"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	ItemCount int             `json:"itemCount"`
}

func Project(snap domain.CartSnapshot) Projection {
	p := Projection{
		Version:  snap.Version,
		Lines:    make([]LineTotal, 0, len(snap.Items)),
		Subtotal: decimal.Zero,
	}
	for _, it := range snap.Items {
		total := it.LineTotal()
		p.Lines = append(p.Lines, LineTotal{LineItemID: it.LineItemID, Total: total})
		p.Subtotal = p.Subtotal.Add(total)
		p.ItemCount += it.Quantity
	}
	return p
}

func (p Projection) RoundedSubtotal() decimal.Decimal {
	return p.Subtotal.Round(2)
}

func (p Projection) SubtotalDisplay() string {
	return p.Subtotal.StringFixed(2)
}

func (p Projection) LineDisplay(lineItemID string) string {
	for _, l := range p.Lines {
		if l.LineItemID == lineItemID {
			return l.Total.StringFixed(2)
		}
	}
	return ""
}

// Projector memoizes Project on the snapshot version of a single store.
type Projector struct {
	mu       sync.Mutex
	last     Projection
	valid    bool
	computed int
}

func NewProjector() *Projector {
	return &Projector{}
}

func (p *Projector) Project(snap domain.CartSnapshot) Projection {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.valid && p.last.Version == snap.Version {
		return p.last
	}
	p.last = Project(snap)
	p.valid = true
	p.computed++
	return p.last
}

// Computations reports how many times the projection was recomputed.
func (p *Projector) Computations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.computed
}
