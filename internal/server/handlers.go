package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/constants"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/storage"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/tasks"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Store is the part of the relational store the API reads
type Store interface {
	storage.EventRepository
	LatestModelTime(ctx context.Context) (time.Time, error)
	Ping(ctx context.Context) error
}

// TaskController starts, stops and reports the ingestion tasks
type TaskController interface {
	Start() []string
	Stop() []string
	Status() []tasks.Status
}

// IngestProgress reports the last record each loop handed to the cache
type IngestProgress interface {
	LastIngested(ctx context.Context, loop string) (time.Time, bool, error)
}

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Store    Store                // Relational event store
	Recent   storage.RecentEvents // Redis-backed recent events (optional)
	Progress IngestProgress       // Redis-backed last-ingest times (optional)
	Tasks    TaskController       // Ingestion task supervisor
	DevMode  bool                 // Enable detailed error responses in development
	Logger   *logrus.Logger       // Structured logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health reports whether the relational store answers a ping
func (h *Handlers) Health(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		h.Logger.WithError(err).Warn("health check: database unreachable")
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{OK: false, Database: false})
	}
	return c.JSON(http.StatusOK, HealthResponse{OK: true, Database: true})
}

// Status returns the task states and the watermark of each loop
func (h *Handlers) Status(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	events, err := h.Store.LatestEventTime(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to read watermark", map[string]any{"err": err.Error()})
	}
	entities, err := h.Store.LatestModelTime(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to read watermark", map[string]any{"err": err.Error()})
	}

	resp := StatusResponse{
		Tasks: h.Tasks.Status(),
		Watermarks: map[string]time.Time{
			constants.LoopEvents: events,
			constants.LoopModels: entities,
		},
	}
	if h.Progress != nil {
		resp.LastIngested = map[string]time.Time{}
		for _, loop := range []string{constants.LoopEvents, constants.LoopModels} {
			at, ok, err := h.Progress.LastIngested(ctx, loop)
			if err != nil {
				h.Logger.WithField("loop", loop).WithError(err).Warn("status: last ingest time unavailable")
				continue
			}
			if ok {
				resp.LastIngested[loop] = at
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// RecentEvents returns the most recently ingested events with optional limit parameter
// Accepts limit query parameter (default: 50, range: 1-200)
func (h *Handlers) RecentEvents(c echo.Context) error {
	if h.Recent == nil {
		return h.err(c, http.StatusServiceUnavailable, "recent events cache is not configured", nil)
	}

	limit := 50
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > constants.MaxRecentEvents {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 200"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Recent.GetRecentEvents(ctx, int64(limit))
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get events", nil)
	}
	return c.JSON(http.StatusOK, RecentEventsResponse{Items: items})
}

// Event returns one stored event by id
// Returns 404 if the event doesn't exist
func (h *Handlers) Event(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid id", map[string]any{"id": "must be a uuid"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	ev, err := h.Store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return h.err(c, http.StatusNotFound, "event not found", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to get event", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, ev)
}

// StartTasks starts every idle ingestion task
func (h *Handlers) StartTasks(c echo.Context) error {
	started := h.Tasks.Start()
	h.Logger.WithField("tasks", started).Info("start requested over api")
	return c.JSON(http.StatusAccepted, TasksResponse{Tasks: started})
}

// StopTasks signals every running ingestion task to stop
func (h *Handlers) StopTasks(c echo.Context) error {
	stopped := h.Tasks.Stop()
	h.Logger.WithField("tasks", stopped).Info("stop requested over api")
	return c.JSON(http.StatusAccepted, TasksResponse{Tasks: stopped})
}
