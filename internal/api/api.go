// Package api exposes the sorting workspace over HTTP. Routes live under
// /api/v2 and follow a single-session model: callers acquire a session
// token first, then drive the queue, folder and model endpoints with it.
package api

import (
	"crypto/rand"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/pixsort/pixsort-go/internal/classifier"
	"github.com/pixsort/pixsort-go/internal/conf"
	"github.com/pixsort/pixsort-go/internal/errors"
	"github.com/pixsort/pixsort-go/internal/logging"
	"github.com/pixsort/pixsort-go/internal/observability"
	"github.com/pixsort/pixsort-go/internal/pending"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo       *echo.Echo
	Group      *echo.Group
	Settings   *conf.Settings
	Queue      *pending.Manager
	Classifier *classifier.Manager

	logger       *log.Logger
	apiLogger    *slog.Logger
	metrics      *observability.Metrics
	previewCache *cache.Cache
	session      sessionGate
	startTime    time.Time
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithMetrics attaches the shared metrics instance and serves it at /metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Controller) {
		c.metrics = metrics
	}
}

// WithSessionTTL overrides the configured session heartbeat timeout.
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *Controller) {
		c.session.ttl = ttl
	}
}

// New creates a new API controller and registers its routes on e.
func New(e *echo.Echo, settings *conf.Settings, queue *pending.Manager,
	clf *classifier.Manager, logger *log.Logger, opts ...Option) (*Controller, error) {

	if settings == nil {
		return nil, errors.Newf("api: settings are required").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if queue == nil {
		return nil, errors.Newf("api: pending queue manager is required").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if logger == nil {
		logger = log.Default()
	}

	c := &Controller{
		Echo:         e,
		Settings:     settings,
		Queue:        queue,
		Classifier:   clf,
		logger:       logger,
		apiLogger:    logging.ForService("api"),
		previewCache: cache.New(5*time.Minute, 10*time.Minute),
		startTime:    time.Now(),
	}
	c.session.ttl = time.Duration(settings.WebServer.SessionTTL) * time.Second

	for _, opt := range opts {
		opt(c)
	}

	if c.session.ttl <= 0 {
		c.session.ttl = 5 * time.Minute
	}

	c.Group = e.Group("/api/v2")
	c.initRoutes()

	return c, nil
}

// initRoutes registers all API endpoints.
func (c *Controller) initRoutes() {
	// Publicly accessible endpoints.
	c.Group.GET("/health", c.HealthCheck)
	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}

	routeInitializers := []struct {
		name string
		fn   func()
	}{
		{"session routes", c.initSessionRoutes},
		{"folder routes", c.initFolderRoutes},
		{"image routes", c.initImageRoutes},
		{"model routes", c.initModelRoutes},
		{"queue routes", c.initQueueRoutes},
	}

	for _, initializer := range routeInitializers {
		c.Debug("Initializing %s...", initializer.name)
		initializer.fn()
	}
}

// HealthCheck handles the API health check endpoint.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	uptime := time.Since(c.startTime)
	response := map[string]any{
		"status":         "healthy",
		"version":        c.Settings.Version,
		"build_date":     c.Settings.BuildDate,
		"timestamp":      time.Now().Format(time.RFC3339),
		"uptime_seconds": uptime.Seconds(),
		"pending":        c.Queue.Len(),
	}
	if c.Settings.WebServer.Debug {
		response["environment"] = "development"
	} else {
		response["environment"] = "production"
	}
	return ctx.JSON(http.StatusOK, response)
}

// Shutdown performs cleanup of all resources used by the API controller.
func (c *Controller) Shutdown() {
	if c.previewCache != nil {
		c.previewCache.Flush()
	}
	c.Debug("API Controller shutting down")
}

// ErrorResponse is the JSON error body for all endpoints.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID creates a unique identifier for error tracking.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError constructs and returns an appropriate error response, with
// the HTTP status derived from the error category.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	if code == 0 {
		code = statusForError(err)
	}
	errorResp := NewErrorResponse(err, message, code)

	c.apiLogger.Error("API Error",
		"correlation_id", errorResp.CorrelationID,
		"message", message,
		"error", errorResp.Error,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP(),
	)

	return ctx.JSON(code, errorResp)
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.IsCategory(err, errors.CategoryNotFound):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryDuplicatePending),
		errors.IsCategory(err, errors.CategoryConflict):
		return http.StatusConflict
	case errors.IsCategory(err, errors.CategoryEmptyQueue),
		errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryModelUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Debug logs debug messages when debug mode is enabled.
func (c *Controller) Debug(format string, v ...any) {
	if c.Settings.WebServer.Debug {
		msg := fmt.Sprintf(format, v...)
		c.logger.Printf("[DEBUG] %s", msg)
		c.apiLogger.Debug(msg)
	}
}
