package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"
)

// ClickHouseConfig holds configuration for the analytics mirror
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Logger   *logrus.Logger
}

// ClickHouseStore mirrors stored records into ClickHouse for analytics.
// Replayed rows collapse on merge through ReplacingMergeTree.
type ClickHouseStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

const (
	clickhouseEventsTable = "ponziland_events"
	clickhouseModelsTable = "ponziland_models"
)

var clickhouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS ` + clickhouseEventsTable + ` (
		id UUID,
		at DateTime64(3, 'UTC'),
		kind LowCardinality(String),
		data String
	) ENGINE = ReplacingMergeTree ORDER BY (kind, at, id)`,
	`CREATE TABLE IF NOT EXISTS ` + clickhouseModelsTable + ` (
		id UUID,
		at DateTime64(3, 'UTC'),
		kind LowCardinality(String),
		data String
	) ENGINE = ReplacingMergeTree ORDER BY (kind, at, id)`,
}

func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	cfg.Logger.WithField("addr", cfg.Addr).Info("connected to ClickHouse")
	return &ClickHouseStore{conn: conn, logger: cfg.Logger}, nil
}

func (c *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range clickhouseSchema {
		if err := c.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create clickhouse table: %w", err)
		}
	}
	return nil
}

func (c *ClickHouseStore) Name() string { return "clickhouse" }

func (c *ClickHouseStore) OnEvent(ctx context.Context, ev *models.StoredEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	return c.insert(ctx, clickhouseEventsTable, ev.ID.String(), ev.At, string(ev.Data.Kind()), data)
}

func (c *ClickHouseStore) OnModel(ctx context.Context, m *models.StoredModel) error {
	data, err := json.Marshal(m.Data)
	if err != nil {
		return err
	}
	return c.insert(ctx, clickhouseModelsTable, m.ID.String(), m.At, string(m.Data.Kind()), data)
}

func (c *ClickHouseStore) insert(ctx context.Context, table, id string, at time.Time, kind string, data []byte) error {
	query := fmt.Sprintf("INSERT INTO %s (id, at, kind, data) VALUES (?, ?, ?, ?)", table)
	if err := c.conn.Exec(ctx, query, id, at, kind, string(data)); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
