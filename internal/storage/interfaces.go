package storage

import (
	"context"
	"io"
	"time"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/google/uuid"
)

// EventRepository persists decoded events
type EventRepository interface {
	// LatestEventTime returns the newest stored occurrence time, or the
	// UNIX epoch when nothing is stored yet
	LatestEventTime(ctx context.Context) (time.Time, error)

	// SaveEvent inserts the event and reports whether a row was written;
	// saving an existing id is a no-op that returns false
	SaveEvent(ctx context.Context, ev *models.StoredEvent) (bool, error)

	// GetEvent reads an event back by id
	GetEvent(ctx context.Context, id uuid.UUID) (*models.StoredEvent, error)
}

// ModelRepository persists model snapshots as append-only history
type ModelRepository interface {
	// LatestModelTime returns the newest snapshot time across all model
	// tables, or the UNIX epoch
	LatestModelTime(ctx context.Context) (time.Time, error)

	// SaveModel inserts the snapshot and reports whether a row was written;
	// saving an existing id is a no-op that returns false
	SaveModel(ctx context.Context, m *models.StoredModel) (bool, error)
}

// QuarantineStore keeps records that could not be decoded
type QuarantineStore interface {
	Quarantine(ctx context.Context, rec *QuarantinedRecord) error
}

// Store is a relational backend holding everything the ingester writes
type Store interface {
	EventRepository
	ModelRepository
	QuarantineStore

	// EnsureSchema creates missing tables
	EnsureSchema(ctx context.Context) error

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	// Close closes the store connection
	io.Closer
}

// EventSink receives events the first time they are stored
type EventSink interface {
	Name() string
	OnEvent(ctx context.Context, ev *models.StoredEvent) error
}

// ModelSink receives model snapshots the first time they are stored
type ModelSink interface {
	Name() string
	OnModel(ctx context.Context, m *models.StoredModel) error
}

// RecentEvents serves the most recently ingested events
type RecentEvents interface {
	GetRecentEvents(ctx context.Context, limit int64) ([]*models.StoredEvent, error)
}

// QuarantinedRecord is a raw record set aside together with the reason.
type QuarantinedRecord struct {
	ID      uuid.UUID
	At      time.Time
	Loop    string
	Tag     string
	EventID string
	Payload []byte
	Reason  string
}
