package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/constants"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisCache keeps the most recent events and the last ingest time of
// each loop.
type RedisCache struct {
	client    redis.Cmdable
	maxRecent int64
}

func NewRedisCache(client redis.Cmdable) (*RedisCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisCache{client: client, maxRecent: constants.MaxRecentEvents}, nil
}

func (r *RedisCache) Name() string { return "redis" }

// OnEvent pushes ev onto the capped recent list.
func (r *RedisCache) OnEvent(ctx context.Context, ev *models.StoredEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, constants.RedisKeyRecentEvents, b)
	pipe.LTrim(ctx, constants.RedisKeyRecentEvents, 0, r.maxRecent-1)
	pipe.Set(ctx, constants.RedisKeyWatermark+constants.LoopEvents, ev.At.UTC().Format(time.RFC3339Nano), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache event: %w", err)
	}
	return nil
}

func (r *RedisCache) OnModel(ctx context.Context, m *models.StoredModel) error {
	err := r.client.Set(ctx, constants.RedisKeyWatermark+constants.LoopModels, m.At.UTC().Format(time.RFC3339Nano), 0).Err()
	if err != nil {
		return fmt.Errorf("cache model time: %w", err)
	}
	return nil
}

// GetRecentEvents returns up to limit events, newest first.
func (r *RedisCache) GetRecentEvents(ctx context.Context, limit int64) ([]*models.StoredEvent, error) {
	if limit <= 0 || limit > r.maxRecent {
		limit = r.maxRecent
	}
	vals, err := r.client.LRange(ctx, constants.RedisKeyRecentEvents, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}

	out := make([]*models.StoredEvent, 0, len(vals))
	for _, v := range vals {
		var ev models.StoredEvent
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		out = append(out, &ev)
	}
	return out, nil
}

// LastIngested returns when loop last saved a record. ok is false when
// nothing was recorded yet.
func (r *RedisCache) LastIngested(ctx context.Context, loop string) (at time.Time, ok bool, err error) {
	val, err := r.client.Get(ctx, constants.RedisKeyWatermark+loop).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get last ingested: %w", err)
	}
	at, err = time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last ingested: %w", err)
	}
	return at, true, nil
}
