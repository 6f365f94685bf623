package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	// Set custom error handler for consistent JSON responses
	e.HTTPErrorHandler = JSONErrorHandler(h.Logger)

	// Apply global middleware
	e.Use(RecordMetrics(cfg.Metrics)) // Request counters and latency
	e.Use(SetNoCacheHeaders)          // Prevent caching of API responses

	// Optional API key authentication; health checks and scrapes stay open
	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/metrics" || c.Path() == "/v1/health"
			},
			KeyLookup: "header:X-API-Key", // Look for API key in X-API-Key header
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil // Simple string comparison
			},
		}))
	}

	// Prometheus scrape endpoint
	if cfg.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	// API v1 routes
	v1 := e.Group("/v1", SetJSONContentType)
	v1.GET("/health", h.Health)              // Database health check
	v1.GET("/status", h.Status)              // Task states and watermarks
	v1.GET("/events/recent", h.RecentEvents) // Recently ingested events
	v1.GET("/events/:id", h.Event)           // Stored event by id

	// Task control endpoints with rate limiting
	taskGroup := v1.Group("/tasks")
	taskGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(0.2), // 1 request every 5 seconds
		Burst:     2,               // Allow burst of 2 requests
		ExpiresIn: 2 * time.Minute, // Rate limit window
	})))
	taskGroup.POST("/start", h.StartTasks) // Start ingestion loops
	taskGroup.POST("/stop", h.StopTasks)   // Stop ingestion loops

	// Catch-all route for 404 responses
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
