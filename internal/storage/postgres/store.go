// Package postgres is the production Store backed by a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

var dialect = storage.Dialect{
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	IDType:      "UUID",
	TimeType:    "TIMESTAMPTZ",
	IntType:     "BIGINT",
	U256Type:    "NUMERIC(78, 0)",
	TextType:    "TEXT",
	BlobType:    "BYTEA",
	U256Select:  "::text",
}

// Store writes events and model history to Postgres.
// Every insert uses ON CONFLICT (id) DO NOTHING so replays are no-ops.
type Store struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

// Config holds configuration for the Postgres store
type Config struct {
	URL      string
	MaxConns int32
	Logger   *logrus.Logger
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	cfg.Logger.WithField("database", pcfg.ConnConfig.Database).Info("connected to postgres")
	return &Store{pool: pool, logger: cfg.Logger}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range dialect.Schema() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return storage.Persist("ensure schema", err, classify)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) LatestEventTime(ctx context.Context) (time.Time, error) {
	return s.latest(ctx, storage.LatestEventQuery())
}

func (s *Store) LatestModelTime(ctx context.Context) (time.Time, error) {
	return s.latest(ctx, storage.LatestModelQuery())
}

func (s *Store) latest(ctx context.Context, query string) (time.Time, error) {
	var at *time.Time
	if err := s.pool.QueryRow(ctx, query).Scan(&at); err != nil {
		return time.Time{}, storage.Persist("latest timestamp", err, classify)
	}
	if at == nil {
		return time.Unix(0, 0).UTC(), nil
	}
	return at.UTC(), nil
}

func (s *Store) SaveEvent(ctx context.Context, ev *models.StoredEvent) (bool, error) {
	kind := ev.Data.Kind()
	table, ok := storage.EventTable(kind)
	if !ok {
		return false, fmt.Errorf("no table for event kind %s", kind)
	}
	values, err := table.Values(ev.Data)
	if err != nil {
		return false, err
	}

	inserted := false
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			dialect.Insert(storage.EventParentTable, []string{"id", "at", "event_type"}),
			ev.ID, ev.At.UTC(), string(kind))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx,
			dialect.Insert(table.Name, append([]string{"id"}, table.ColumnNames()...)),
			append([]any{ev.ID}, values...)...); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, storage.Persist("save event", err, classify)
	}
	return inserted, nil
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*models.StoredEvent, error) {
	var at time.Time
	var kind string
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT at, event_type FROM %s WHERE id = $1", storage.EventParentTable), id,
	).Scan(&at, &kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Persist("get event", err, classify)
	}

	table, ok := storage.EventTable(models.EventKind(kind))
	if !ok {
		return nil, fmt.Errorf("event %s has unknown type %q", id, kind)
	}
	dest := table.ScanDest()
	err = s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", dialect.SelectColumns(table), table.Name), id,
	).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Persist("get event", err, classify)
	}

	data, err := table.DecodeEvent(dest)
	if err != nil {
		return nil, fmt.Errorf("rebuild event %s: %w", id, err)
	}
	return &models.StoredEvent{ID: id, At: at.UTC(), Data: data}, nil
}

func (s *Store) SaveModel(ctx context.Context, m *models.StoredModel) (bool, error) {
	kind := m.Data.Kind()
	table, ok := storage.ModelTable(kind)
	if !ok {
		return false, fmt.Errorf("no table for model kind %s", kind)
	}
	values, err := table.Values(m.Data)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx,
		dialect.Insert(table.Name, append([]string{"id", "at"}, table.ColumnNames()...)),
		append([]any{m.ID, m.At.UTC()}, values...)...)
	if err != nil {
		return false, storage.Persist("save model", err, classify)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Quarantine(ctx context.Context, rec *storage.QuarantinedRecord) error {
	_, err := s.pool.Exec(ctx,
		dialect.Insert(storage.QuarantineTable, []string{"id", "at", "loop_name", "tag", "event_id", "payload", "reason"}),
		rec.ID, rec.At.UTC(), rec.Loop, rec.Tag, rec.EventID, rec.Payload, rec.Reason)
	return storage.Persist("quarantine", err, classify)
}

// classify maps integrity violations (SQLSTATE class 23) to ErrConstraint
// and everything else to ErrConnectivity.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23" {
		return storage.ErrConstraint
	}
	return storage.ErrConnectivity
}
