package server

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/identity"
	"storefront-checkout/internal/service"
)

const (
	headerClientID  = "X-Client-Id"
	headerSessionID = "X-Session-Id"
	headerUserID    = "X-User-Id"

	sessionKey = "session"
)

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if sid := c.Writer.Header().Get(headerSessionID); sid != "" {
			attrs = append(attrs, "session_id", sid)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "err", c.Errors.String())
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.Error("request", attrs...)
		case c.Writer.Status() >= 400:
			logger.Warn("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	}
}

// sessionMiddleware opens the shopper session named by the request headers.
// Missing client and session ids are minted and echoed back so the browser
// can keep them. A session id that belongs to another client is replaced
// with a fresh one.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := strings.TrimSpace(c.GetHeader(headerClientID))
		if clientID == "" {
			clientID = uuid.NewString()
		}
		sessionID := strings.TrimSpace(c.GetHeader(headerSessionID))
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		id := identity.FromUserID(c.GetHeader(headerUserID))
		sess, err := s.deps.Sessions.Open(c.Request.Context(), clientID, sessionID, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			sessionID = uuid.NewString()
			sess, err = s.deps.Sessions.Open(c.Request.Context(), clientID, sessionID, id)
		}
		c.Header(headerClientID, clientID)
		c.Header(headerSessionID, sessionID)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *service.Session {
	return c.MustGet(sessionKey).(*service.Session)
}
