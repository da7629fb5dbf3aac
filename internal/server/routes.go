package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	corsCfg := cors.Config{
		AllowOrigins:     s.deps.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", headerClientID, headerSessionID, headerUserID},
		ExposeHeaders:    []string{headerClientID, headerSessionID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) == 0 || (len(corsCfg.AllowOrigins) == 1 && corsCfg.AllowOrigins[0] == "*") {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", s.health)

	products := r.Group("/products")
	products.GET("", s.listProducts)
	products.GET("/:id", s.getProduct)

	// Processor callbacks are not tied to a shopper session. Without a
	// shared secret there is no way to tell them from forgeries.
	if s.deps.WebhookSecret != "" {
		r.POST("/payments/captures", s.captureWebhook)
	} else {
		s.logger.Warn("capture webhook disabled", "reason", "no webhook secret configured")
	}

	shop := r.Group("/", s.sessionMiddleware())
	{
		shop.GET("/cart", s.getCart)
		shop.POST("/cart/items", s.addItem)
		shop.PUT("/cart/items/:id", s.setQuantity)
		shop.POST("/cart/items/:id/increment", s.increment)
		shop.POST("/cart/items/:id/decrement", s.decrement)
		shop.DELETE("/cart/items/:id", s.removeItem)
		shop.DELETE("/cart", s.clearCart)

		// Attempts are only visible to the client that submitted them.
		shop.POST("/checkout", s.submitCheckout)
		shop.GET("/checkout/:id", s.getCheckout)
		shop.POST("/checkout/:id/cancel", s.cancelCheckout)
		shop.GET("/checkout/:id/events", s.checkoutEvents)
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	if s.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "up"})
		return
	}
	stats := s.deps.Health.Health()
	if stats["status"] != "up" {
		c.JSON(http.StatusServiceUnavailable, stats)
		return
	}
	c.JSON(http.StatusOK, stats)
}
