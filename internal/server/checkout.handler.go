package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/service"
)

func (s *Server) submitCheckout(c *gin.Context) {
	sess := sessionFrom(c)
	a, err := s.deps.Checkout.Submit(c.Request.Context(), sess)
	if err != nil {
		if a.Order == nil {
			s.abortWithError(c, err)
			return
		}
		s.writeSettled(c, a)
		return
	}

	if c.Query("wait") == "true" && !a.State.IsTerminal() {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.deps.AwaitTimeout)
		defer cancel()
		settled, err := s.deps.Checkout.Await(ctx, a.Order.ID)
		if err == nil {
			a = settled
		}
	}

	if !a.State.IsTerminal() {
		c.Header("Location", "/checkout/"+a.Order.ID.String())
		c.JSON(http.StatusAccepted, newAttemptResponse(a))
		return
	}
	s.writeSettled(c, a)
}

// writeSettled reports a terminal attempt, using the error status when it
// did not complete.
func (s *Server) writeSettled(c *gin.Context, a service.Attempt) {
	if a.Err == nil {
		c.JSON(http.StatusOK, newAttemptResponse(a))
		return
	}
	status, _ := statusFor(a.Err)
	c.JSON(status, newAttemptResponse(a))
}

func (s *Server) getCheckout(c *gin.Context) {
	id, ok := s.orderIDParam(c)
	if !ok {
		return
	}

	a, err := s.ownedAttempt(c, id)
	if err == nil {
		c.JSON(http.StatusOK, newAttemptResponse(a))
		return
	}
	if !errors.Is(err, domain.ErrAttemptNotFound) || s.deps.Orders == nil {
		s.abortWithError(c, err)
		return
	}

	// Settled attempts are pruned from memory; completed ones live on as
	// recorded orders.
	order, err := s.deps.Orders.FindOrder(c.Request.Context(), id)
	if err == nil && !ownedBy(order, sessionFrom(c)) {
		err = domain.ErrOrderNotFound
	}
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, attemptResponse{
		OrderID: order.ID,
		State:   domain.AttemptCompleted,
		Order:   order,
	})
}

func (s *Server) cancelCheckout(c *gin.Context) {
	id, ok := s.orderIDParam(c)
	if !ok {
		return
	}
	if _, err := s.ownedAttempt(c, id); err != nil {
		s.abortWithError(c, err)
		return
	}
	a, err := s.deps.Checkout.Cancel(c.Request.Context(), id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAttemptResponse(a))
}

// checkoutEvents streams lifecycle events for one attempt as server-sent
// events until it settles or the client goes away.
func (s *Server) checkoutEvents(c *gin.Context) {
	id, ok := s.orderIDParam(c)
	if !ok {
		return
	}
	if s.deps.Events == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Error: "event stream is not configured", Code: "EVENTS_DISABLED"})
		return
	}

	// Subscribe before reading the current state so no transition slips
	// between the two.
	ch, cancel := s.deps.Events.Subscribe(id)
	defer cancel()

	a, err := s.ownedAttempt(c, id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("checkout", attemptEvent(a))
	if a.State.IsTerminal() {
		return
	}
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, open := <-ch:
			if !open {
				return false
			}
			c.SSEvent("checkout", ev)
			return !ev.IsTerminal()
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// captureWebhook accepts a capture result pushed by the processor. The body
// must carry a valid signature under the shared webhook secret.
func (s *Server) captureWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		s.abortWithError(c, domain.NewValidationError("body", "unreadable body"))
		return
	}
	if !validSignature(s.deps.WebhookSecret, body, c.GetHeader(headerSignature)) {
		s.logger.Warn("capture webhook rejected", "reason", "bad signature", "remote", c.ClientIP())
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "invalid webhook signature", Code: "INVALID_SIGNATURE"})
		return
	}

	var req captureWebhookRequest
	if err := binding.JSON.BindBody(body, &req); err != nil {
		s.abortWithError(c, toValidationError(err))
		return
	}
	result, err := req.toDomain()
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if err := s.deps.Checkout.HandleCapture(c.Request.Context(), result); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ownedAttempt looks up an attempt on behalf of the calling session.
// Attempts submitted by another client are reported as missing.
func (s *Server) ownedAttempt(c *gin.Context, id uuid.UUID) (service.Attempt, error) {
	a, err := s.deps.Checkout.Get(id)
	if err != nil {
		return service.Attempt{}, err
	}
	if !ownedBy(a.Order, sessionFrom(c)) {
		return service.Attempt{}, domain.ErrAttemptNotFound
	}
	return a, nil
}

func ownedBy(o *domain.CheckoutOrder, sess *service.Session) bool {
	return o != nil && o.ClientID == sess.ClientID
}

func (s *Server) orderIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.abortWithError(c, domain.NewValidationError("id", "must be a valid uuid"))
		return uuid.Nil, false
	}
	return id, true
}
