package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-checkout/internal/domain"
)

func (s *Server) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, newCartResponse(sessionFrom(c)))
}

func (s *Server) addItem(c *gin.Context) {
	var req addItemRequest
	if err := bindJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}

	item, err := s.resolveItem(c.Request.Context(), req)
	if err != nil {
		if domain.IsValidation(err) {
			s.abortWithError(c, err)
			return
		}
		s.catalogError(c, err)
		return
	}

	sess := sessionFrom(c)
	added, err := sess.Store.Add(item)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Header("Location", "/cart/items/"+added.LineItemID)
	c.JSON(http.StatusCreated, newCartResponse(sess))
}

// resolveItem builds the line item from the catalog when one is wired, and
// from the request body otherwise.
func (s *Server) resolveItem(ctx context.Context, req addItemRequest) (domain.CartLineItem, error) {
	if s.deps.Catalog == nil {
		item := domain.CartLineItem{
			ProductID: req.ProductID,
			Name:      req.Name,
			Quantity:  req.Quantity,
			ImageRef:  req.ImageRef,
		}
		if req.UnitPrice == nil {
			return domain.CartLineItem{}, domain.NewValidationError("unitPrice", "is required")
		}
		item.UnitPrice = *req.UnitPrice
		return item, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.deps.RequestTimeout)
	defer cancel()
	p, err := s.deps.Catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.CartLineItem{}, fmt.Errorf("resolve product %s: %w", req.ProductID, err)
	}
	item := domain.NewLineItem(p, req.Quantity)
	item.LineItemID = ""
	return item, nil
}

func (s *Server) setQuantity(c *gin.Context) {
	var req setQuantityRequest
	if err := bindJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}
	sess := sessionFrom(c)
	sess.Store.SetQuantity(c.Param("id"), *req.Quantity)
	c.JSON(http.StatusOK, newCartResponse(sess))
}

func (s *Server) increment(c *gin.Context) {
	sess := sessionFrom(c)
	sess.Store.Increment(c.Param("id"))
	c.JSON(http.StatusOK, newCartResponse(sess))
}

func (s *Server) decrement(c *gin.Context) {
	sess := sessionFrom(c)
	sess.Store.Decrement(c.Param("id"))
	c.JSON(http.StatusOK, newCartResponse(sess))
}

func (s *Server) removeItem(c *gin.Context) {
	sess := sessionFrom(c)
	sess.Store.Remove(c.Param("id"))
	c.JSON(http.StatusOK, newCartResponse(sess))
}

func (s *Server) clearCart(c *gin.Context) {
	sess := sessionFrom(c)
	if err := sess.ClearCart(c.Request.Context()); err != nil {
		// The in-memory cart is already empty; the tiers catch up on the
		// next change.
		s.logger.Warn("purge cart tiers", "session_id", sess.ID, "err", err)
	}
	c.JSON(http.StatusOK, newCartResponse(sess))
}
