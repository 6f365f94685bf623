package torii

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/constants"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/sirupsen/logrus"
)

// EventsAfter streams every tracked event created at or after since, oldest
// first. Rows sharing the boundary second are returned again; saves are
// idempotent so the overlap is harmless.
func (c *Client) EventsAfter(ctx context.Context, since time.Time) *Stream {
	return c.catchUp(ctx, constants.ToriiEventsTable, eventSelectors(), since)
}

// EntitiesAfter streams every tracked model snapshot created at or after since.
func (c *Client) EntitiesAfter(ctx context.Context, since time.Time) *Stream {
	return c.catchUp(ctx, constants.ToriiEntitiesTable, modelSelectors(), since)
}

func (c *Client) catchUp(ctx context.Context, table string, selectors []string, since time.Time) *Stream {
	return NewStream(ctx, func(ctx context.Context, emit Emit) error {
		log := c.logger.WithFields(logrus.Fields{
			"table": table,
			"since": since.UTC().Format(constants.ToriiTimeLayout),
		})
		log.Info("starting catch-up")

		total := 0
		for offset := 0; ; offset += c.pageSize {
			if err := c.pages.Wait(ctx); err != nil {
				return ctx.Err()
			}

			var rows []sqlRow
			query := catchUpQuery(table, selectors, since, c.pageSize, offset)
			if err := c.Query(ctx, query, &rows); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return &SourceError{Source: "catch-up " + table, Err: err}
			}

			for _, row := range rows {
				rec, err := row.record()
				if err != nil {
					return &SourceError{Source: "catch-up " + table, Err: err}
				}
				if !emit(rec) {
					return ctx.Err()
				}
			}
			total += len(rows)

			if len(rows) < c.pageSize {
				log.WithField("rows", total).Info("catch-up complete")
				return nil
			}
		}
	})
}

func (r sqlRow) record() (RawRecord, error) {
	at, err := ParseTime(r.CreatedAt)
	if err != nil {
		return RawRecord{}, fmt.Errorf("row %s: %w", r.EventID, err)
	}
	data, err := r.payload()
	if err != nil {
		return RawRecord{}, fmt.Errorf("row %s: %w", r.EventID, err)
	}
	return RawRecord{
		Origin:  OriginCatchUp,
		EventID: r.EventID,
		At:      at,
		JSON:    &JSONRecord{Name: r.Selector, Data: data},
	}, nil
}

func catchUpQuery(table string, selectors []string, since time.Time, limit, offset int) string {
	quoted := make([]string, len(selectors))
	for i, s := range selectors {
		quoted[i] = quoteLiteral(s)
	}
	return fmt.Sprintf(
		`SELECT m.namespace || '-' || m.name AS selector, t.data AS data, t.event_id AS event_id, t.created_at AS created_at `+
			`FROM %s t LEFT JOIN models m ON t.model_id = m.id `+
			`WHERE t.created_at >= %s AND (m.namespace || '-' || m.name) IN (%s) `+
			`ORDER BY t.created_at, t.event_id LIMIT %d OFFSET %d`,
		table,
		quoteLiteral(since.UTC().Format(constants.ToriiTimeLayout)),
		strings.Join(quoted, ", "),
		limit, offset,
	)
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func eventSelectors() []string {
	out := make([]string, len(models.EventKinds))
	for i, k := range models.EventKinds {
		out[i] = string(k)
	}
	return out
}

func modelSelectors() []string {
	out := make([]string, len(models.ModelKinds))
	for i, k := range models.ModelKinds {
		out[i] = string(k)
	}
	return out
}
