package cache

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/constants"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1, // Use different DB for tests
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.FlushDB(ctx).Err()
		_ = client.Close()
	})
	return client
}

func sampleEvent(at time.Time) *models.StoredEvent {
	return &models.StoredEvent{
		ID:   uuid.New(),
		At:   at,
		Data: models.LandNuked{Owner: models.Address("0xabc"), Location: models.Location(2080)},
	}
}

func TestNewRedisCacheRejectsNilClient(t *testing.T) {
	_, err := NewRedisCache(nil)
	assert.Error(t, err)
}

func TestEventChannels(t *testing.T) {
	assert.Equal(t, []string{"chaindata:events", "chaindata:events:LandNukedEvent"}, EventChannels(models.KindLandNuked))
}

func TestRedisCache_RecentEvents(t *testing.T) {
	client := setupTestRedis(t)
	cache, err := NewRedisCache(client)
	require.NoError(t, err)
	cache.maxRecent = 3
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var saved []*models.StoredEvent
	for i := 0; i < 5; i++ {
		ev := sampleEvent(base.Add(time.Duration(i) * time.Second))
		saved = append(saved, ev)
		require.NoError(t, cache.OnEvent(ctx, ev))
	}

	recent, err := cache.GetRecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, saved[4].ID, recent[0].ID)
	assert.Equal(t, saved[2].ID, recent[2].ID)
	assert.Equal(t, saved[4].Data, recent[0].Data)

	recent, err = cache.GetRecentEvents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	at, ok, err := cache.LastIngested(ctx, constants.LoopEvents)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, saved[4].At.Equal(at))
}

func TestRedisCache_LastIngestedModels(t *testing.T) {
	client := setupTestRedis(t)
	cache, err := NewRedisCache(client)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := cache.LastIngested(ctx, constants.LoopModels)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2025, 6, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, cache.OnModel(ctx, &models.StoredModel{
		ID:   uuid.New(),
		At:   at,
		Data: models.LandStake{Location: 1, LastPayTime: 2, Amount: models.NewU256(3)},
	}))

	got, ok, err := cache.LastIngested(ctx, constants.LoopModels)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(got))
}

func TestPubSub_PublishAndSubscribe(t *testing.T) {
	client := setupTestRedis(t)
	pubsub := NewPubSubManager(client, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *models.StoredEvent, 1)
	subscribed := make(chan error, 1)
	go func() {
		subscribed <- pubsub.SubscribeEvents(ctx, func(ev *models.StoredEvent) {
			received <- ev
		}, constants.PubSubChannelEventPrefix+"*")
	}()

	ev := sampleEvent(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumPat(ctx).Result()
		return err == nil && n > 0
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, pubsub.OnEvent(ctx, ev))

	select {
	case got := <-received:
		assert.Equal(t, ev.ID, got.ID)
		assert.Equal(t, ev.Data, got.Data)
	case <-ctx.Done():
		t.Fatal("no event received")
	}

	cancel()
	assert.ErrorIs(t, <-subscribed, context.Canceled)
}

func TestClickHouseStore_Mirror(t *testing.T) {
	addr := os.Getenv("CLICKHOUSE_ADDR")
	if addr == "" {
		t.Skip("CLICKHOUSE_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := NewClickHouseStore(ctx, ClickHouseConfig{Addr: addr, Database: "default", Logger: quietLogger()})
	if err != nil {
		t.Skipf("ClickHouse not available: %v", err)
	}
	defer store.Close()

	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.OnEvent(ctx, sampleEvent(time.Now().UTC())))
	require.NoError(t, store.OnModel(ctx, &models.StoredModel{
		ID:   uuid.New(),
		At:   time.Now().UTC(),
		Data: models.LandStake{Location: 1, LastPayTime: 2, Amount: models.NewU256(3)},
	}))
}
