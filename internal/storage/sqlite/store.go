// Package sqlite provides a single-node Store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var dialect = storage.Dialect{
	Placeholder: func(int) string { return "?" },
	IDType:      "TEXT",
	TimeType:    "INTEGER",
	IntType:     "INTEGER",
	U256Type:    "TEXT",
	TextType:    "TEXT",
	BlobType:    "BLOB",
}

// Store persists events and model history in SQLite. Timestamps are kept
// as UTC unix milliseconds.
type Store struct {
	sqlDB  *sql.DB
	logger *logrus.Logger
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path. ":memory:" gives a private in-memory
// database, held on a single connection so every query sees it.
func Open(ctx context.Context, path string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	logger.WithField("path", path).Info("opened sqlite store")
	return &Store{sqlDB: sqlDB, logger: logger}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range dialect.Schema() {
		if _, err := s.sqlDB.ExecContext(ctx, stmt); err != nil {
			return storage.Persist("ensure schema", err, classify)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) LatestEventTime(ctx context.Context) (time.Time, error) {
	return s.latest(ctx, storage.LatestEventQuery())
}

func (s *Store) LatestModelTime(ctx context.Context) (time.Time, error) {
	return s.latest(ctx, storage.LatestModelQuery())
}

func (s *Store) latest(ctx context.Context, query string) (time.Time, error) {
	var at sql.NullInt64
	if err := s.sqlDB.QueryRowContext(ctx, query).Scan(&at); err != nil {
		return time.Time{}, storage.Persist("latest timestamp", err, classify)
	}
	if !at.Valid {
		return time.Unix(0, 0).UTC(), nil
	}
	return fromMillis(at.Int64), nil
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

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, storage.Persist("save event", err, classify)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		dialect.Insert(storage.EventParentTable, []string{"id", "at", "event_type"}),
		ev.ID.String(), toMillis(ev.At), string(kind))
	if err != nil {
		return false, storage.Persist("save event", err, classify)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, storage.Persist("save event", err, classify)
	} else if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		dialect.Insert(table.Name, append([]string{"id"}, table.ColumnNames()...)),
		append([]any{ev.ID.String()}, values...)...); err != nil {
		return false, storage.Persist("save event", err, classify)
	}
	if err := tx.Commit(); err != nil {
		return false, storage.Persist("save event", err, classify)
	}
	return true, nil
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*models.StoredEvent, error) {
	var at int64
	var kind string
	err := s.sqlDB.QueryRowContext(ctx,
		fmt.Sprintf("SELECT at, event_type FROM %s WHERE id = ?", storage.EventParentTable), id.String(),
	).Scan(&at, &kind)
	if errors.Is(err, sql.ErrNoRows) {
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
	err = s.sqlDB.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", dialect.SelectColumns(table), table.Name), id.String(),
	).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Persist("get event", err, classify)
	}

	data, err := table.DecodeEvent(dest)
	if err != nil {
		return nil, fmt.Errorf("rebuild event %s: %w", id, err)
	}
	return &models.StoredEvent{ID: id, At: fromMillis(at), Data: data}, nil
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
	res, err := s.sqlDB.ExecContext(ctx,
		dialect.Insert(table.Name, append([]string{"id", "at"}, table.ColumnNames()...)),
		append([]any{m.ID.String(), toMillis(m.At)}, values...)...)
	if err != nil {
		return false, storage.Persist("save model", err, classify)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storage.Persist("save model", err, classify)
	}
	return n > 0, nil
}

// CountModels returns how many snapshots of kind are stored.
func (s *Store) CountModels(ctx context.Context, kind models.ModelKind) (int, error) {
	table, ok := storage.ModelTable(kind)
	if !ok {
		return 0, fmt.Errorf("no table for model kind %s", kind)
	}
	var n int
	err := s.sqlDB.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table.Name)).Scan(&n)
	return n, storage.Persist("count models", err, classify)
}

func (s *Store) Quarantine(ctx context.Context, rec *storage.QuarantinedRecord) error {
	_, err := s.sqlDB.ExecContext(ctx,
		dialect.Insert(storage.QuarantineTable, []string{"id", "at", "loop_name", "tag", "event_id", "payload", "reason"}),
		rec.ID.String(), toMillis(rec.At), rec.Loop, rec.Tag, rec.EventID, rec.Payload, rec.Reason)
	return storage.Persist("quarantine", err, classify)
}

// CountQuarantined returns the number of quarantined records.
func (s *Store) CountQuarantined(ctx context.Context) (int, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", storage.QuarantineTable)).Scan(&n)
	return n, storage.Persist("count quarantined", err, classify)
}

func classify(err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3lib.SQLITE_CONSTRAINT {
		return storage.ErrConstraint
	}
	return storage.ErrConnectivity
}
