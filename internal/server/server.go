// Package server exposes the cart and checkout API over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/events"
	"storefront-checkout/internal/infrastructure/catalog"
	"storefront-checkout/internal/service"
)

type OrderFinder interface {
	FindOrder(ctx context.Context, id uuid.UUID) (*domain.CheckoutOrder, error)
}

type HealthChecker interface {
	Health() map[string]string
}

// Deps are the collaborators behind the routes. Orders, Catalog, Events and
// Health may be nil; the routes that need them degrade accordingly.
type Deps struct {
	Sessions service.SessionService
	Checkout service.CheckoutService

	Orders  OrderFinder
	Catalog catalog.Client
	Events  *events.Broadcaster
	Health  HealthChecker

	Logger         *slog.Logger
	AllowOrigins   []string
	RequestTimeout time.Duration
	// WebhookSecret signs processor capture callbacks. The callback route
	// is not mounted when it is empty.
	WebhookSecret string
	// AwaitTimeout bounds POST /checkout?wait=true.
	AwaitTimeout time.Duration
}

type Server struct {
	deps   Deps
	logger *slog.Logger
	engine *gin.Engine
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 10 * time.Second
	}
	if deps.AwaitTimeout <= 0 {
		deps.AwaitTimeout = 30 * time.Second
	}
	registerJSONTagNames()

	s := &Server{deps: deps, logger: deps.Logger}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// HTTPServer wraps the router with the timeouts used in production. The
// write timeout is left open for the SSE stream.
func (s *Server) HTTPServer(port string) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       time.Minute,
	}
}
