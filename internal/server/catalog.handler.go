package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-checkout/internal/infrastructure/catalog"
)

var errCatalogDisabled = errors.New("catalog is not configured")

func (s *Server) listProducts(c *gin.Context) {
	if s.deps.Catalog == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Error: errCatalogDisabled.Error(), Code: "CATALOG_DISABLED"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.deps.RequestTimeout)
	defer cancel()

	products, err := s.deps.Catalog.ListProducts(ctx)
	if err != nil {
		s.catalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (s *Server) getProduct(c *gin.Context) {
	if s.deps.Catalog == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Error: errCatalogDisabled.Error(), Code: "CATALOG_DISABLED"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.deps.RequestTimeout)
	defer cancel()

	p, err := s.deps.Catalog.GetProduct(ctx, c.Param("id"))
	if err != nil {
		s.catalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) catalogError(c *gin.Context, err error) {
	if errors.Is(err, catalog.ErrProductNotFound) {
		s.abortWithError(c, err)
		return
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadGateway, errorResponse{Error: "catalog unavailable", Code: "CATALOG_UNAVAILABLE"})
}
