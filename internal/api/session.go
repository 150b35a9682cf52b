package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HeaderSessionToken carries the active session token on gated requests.
const HeaderSessionToken = "X-Session-Token"

// sessionGate admits at most one active caller at a time. A session stays
// alive while heartbeats arrive within the TTL; an expired session is
// silently evicted by the next acquire attempt.
type sessionGate struct {
	mu       sync.Mutex
	token    string
	lastSeen time.Time
	ttl      time.Duration
}

func (s *sessionGate) acquire() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Since(s.lastSeen) < s.ttl {
		return "", false
	}
	s.token = uuid.NewString()
	s.lastSeen = time.Now()
	return s.token, true
}

func (s *sessionGate) touch(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" || s.token != token || time.Since(s.lastSeen) >= s.ttl {
		return false
	}
	s.lastSeen = time.Now()
	return true
}

func (s *sessionGate) release(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != token {
		return false
	}
	s.token = ""
	return true
}

// initSessionRoutes registers the single-session gate endpoints.
func (c *Controller) initSessionRoutes() {
	c.Group.POST("/session", c.StartSession)
	c.Group.POST("/session/heartbeat", c.SessionHeartbeat)
	c.Group.DELETE("/session", c.ReleaseSession)
}

// StartSession acquires the single-caller session. A second caller is
// rejected until the current session is released or its TTL expires.
func (c *Controller) StartSession(ctx echo.Context) error {
	token, ok := c.session.acquire()
	if !ok {
		return c.HandleError(ctx, nil, "another session is active", http.StatusConflict)
	}
	c.apiLogger.Info("session started", "ip", ctx.RealIP())
	return ctx.JSON(http.StatusOK, map[string]any{
		"token":       token,
		"ttl_seconds": c.session.ttl.Seconds(),
	})
}

// SessionHeartbeat extends the active session's lease.
func (c *Controller) SessionHeartbeat(ctx echo.Context) error {
	token := ctx.Request().Header.Get(HeaderSessionToken)
	if !c.session.touch(token) {
		return c.HandleError(ctx, nil, "session expired or unknown", http.StatusUnauthorized)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"ttl_seconds": c.session.ttl.Seconds(),
	})
}

// ReleaseSession ends the active session.
func (c *Controller) ReleaseSession(ctx echo.Context) error {
	token := ctx.Request().Header.Get(HeaderSessionToken)
	if !c.session.release(token) {
		return c.HandleError(ctx, nil, "session token does not match the active session", http.StatusUnauthorized)
	}
	c.apiLogger.Info("session released")
	return ctx.JSON(http.StatusOK, map[string]any{"message": "session released"})
}

// requireSession gates a handler behind the active session token.
func (c *Controller) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		token := ctx.Request().Header.Get(HeaderSessionToken)
		if !c.session.touch(token) {
			return c.HandleError(ctx, nil, "a valid session is required", http.StatusUnauthorized)
		}
		return next(ctx)
	}
}
