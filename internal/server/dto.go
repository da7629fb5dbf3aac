package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/identity"
	"storefront-checkout/internal/service"
)

// addItemRequest names a catalog product. Name and UnitPrice are only read
// when no catalog is configured.
type addItemRequest struct {
	ProductID string           `json:"productId" binding:"required"`
	Quantity  int              `json:"quantity"`
	Name      string           `json:"name"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
	ImageRef  string           `json:"imageRef"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type captureWebhookRequest struct {
	HandleID       string           `json:"handleId" binding:"required"`
	OrderID        string           `json:"orderId" binding:"omitempty,uuid"`
	Status         string           `json:"status" binding:"required,oneof=success failure"`
	PayerReference string           `json:"payerReference"`
	CapturedAmount *decimal.Decimal `json:"capturedAmount"`
	Currency       string           `json:"currency"`
	Reason         string           `json:"reason"`
}

func (r captureWebhookRequest) toDomain() (domain.CaptureResult, error) {
	res := domain.CaptureResult{
		HandleID:       r.HandleID,
		Status:         domain.CaptureStatus(r.Status),
		PayerReference: r.PayerReference,
		CapturedAmount: decimal.Zero,
		Currency:       r.Currency,
		Reason:         r.Reason,
	}
	if r.OrderID != "" {
		id, err := uuid.Parse(r.OrderID)
		if err != nil {
			return domain.CaptureResult{}, domain.NewValidationError("orderId", "must be a valid uuid")
		}
		res.OrderID = id
	}
	if r.CapturedAmount != nil {
		res.CapturedAmount = *r.CapturedAmount
	}
	return res, nil
}

type lineView struct {
	domain.CartLineItem
	LineTotal string `json:"lineTotal"`
}

type cartResponse struct {
	SessionID string         `json:"sessionId"`
	ClientID  string         `json:"clientId"`
	Identity  identity.State `json:"identity"`
	Version   uint64         `json:"version"`
	Items     []lineView     `json:"items"`
	Subtotal  string         `json:"subtotal"`
	ItemCount int            `json:"itemCount"`
}

func newCartResponse(sess *service.Session) cartResponse {
	snap := sess.Store.Snapshot()
	proj := sess.Projector.Project(snap)

	items := make([]lineView, 0, len(snap.Items))
	for _, it := range snap.Items {
		items = append(items, lineView{CartLineItem: it, LineTotal: proj.LineDisplay(it.LineItemID)})
	}
	return cartResponse{
		SessionID: sess.ID,
		ClientID:  sess.ClientID,
		Identity:  sess.Identity.Current(),
		Version:   proj.Version,
		Items:     items,
		Subtotal:  proj.SubtotalDisplay(),
		ItemCount: proj.ItemCount,
	}
}

type attemptResponse struct {
	OrderID       uuid.UUID             `json:"orderId"`
	State         domain.AttemptState   `json:"state"`
	Order         *domain.CheckoutOrder `json:"order"`
	AwaitingSince *time.Time            `json:"awaitingSince,omitempty"`
	Error         string                `json:"error,omitempty"`
	Code          string                `json:"code,omitempty"`
}

func newAttemptResponse(a service.Attempt) attemptResponse {
	resp := attemptResponse{State: a.State, Order: a.Order}
	if a.Order != nil {
		resp.OrderID = a.Order.ID
	}
	if !a.AwaitingSince.IsZero() {
		t := a.AwaitingSince
		resp.AwaitingSince = &t
	}
	if a.Err != nil {
		_, resp.Code = statusFor(a.Err)
		resp.Error = a.Err.Error()
	}
	return resp
}

func attemptEvent(a service.Attempt) domain.CheckoutEvent {
	ev := domain.CheckoutEvent{
		OrderID:   a.Order.ID,
		SessionID: a.SessionID,
		State:     a.State,
		Status:    a.Order.Status,
		At:        a.Order.UpdatedAt,
	}
	if a.Err != nil {
		ev.Error = a.Err.Error()
	}
	return ev
}
