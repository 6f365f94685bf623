package server

import (
	"time"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/tasks"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK       bool `json:"ok"`       // Service health status
	Database bool `json:"database"` // Relational store reachable
}

// StatusResponse reports the ingestion tasks and how far each loop got
type StatusResponse struct {
	Tasks        []tasks.Status       `json:"tasks"`
	Watermarks   map[string]time.Time `json:"watermarks"`              // Newest stored time per loop
	LastIngested map[string]time.Time `json:"last_ingested,omitempty"` // Time of the last record each loop cached (Redis only)
}

// RecentEventsResponse lists recently ingested events, newest first
type RecentEventsResponse struct {
	Items []*models.StoredEvent `json:"items"`
}

// TasksResponse lists the tasks an admin request acted on
type TasksResponse struct {
	Tasks []string `json:"tasks"` // Names of tasks started or signalled
}
