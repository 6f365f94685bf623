package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func sampleBought() models.LandBought {
	return models.LandBought{
		Buyer:     models.Address("0xabc"),
		Location:  models.LocationFromXY(3, 4),
		SoldPrice: models.MustU256("128000000000000000000"),
		Seller:    models.Address("0xdef"),
		TokenUsed: models.Address("0x49d"),
	}
}

func TestSaveEventIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ev := &models.StoredEvent{
		ID:   models.DeriveID(string(models.KindLandBought), "0x1:0x2:0x3"),
		At:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Data: sampleBought(),
	}
	inserted, err := store.SaveEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = store.SaveEvent(ctx, ev)
	require.NoError(t, err)
	assert.False(t, inserted)

	var n int
	require.NoError(t, store.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM event").Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, store.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM event_land_bought").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestGetEventRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	events := []models.EventData{
		sampleBought(),
		models.AuctionFinished{
			Location:   models.Location(2080),
			Buyer:      models.Address("0x1"),
			StartTime:  1700000000,
			FinalTime:  1700003600,
			FinalPrice: models.MustU256("340282366920938463463374607431768211456"),
		},
		models.LandNuked{Owner: models.Address("0x2"), Location: models.Location(7)},
		models.NewAuction{Location: models.Location(9), StartTime: 5, StartPrice: models.NewU256(100), FloorPrice: models.NewU256(1)},
		models.RemainingStake{Location: models.Location(10), RemainingStake: models.NewU256(0)},
		models.AddressAuthorized{Address: models.Address("0x3"), AuthorizedAt: 42},
		models.AddressRemoved{Address: models.Address("0x3"), RemovedAt: 43},
		models.VerifierUpdated{NewVerifier: models.Address("0x4"), OldVerifier: models.Address("0x5")},
	}
	for i, data := range events {
		ev := &models.StoredEvent{
			ID:   uuid.New(),
			At:   time.Date(2025, 3, 1, 12, 0, i, 0, time.UTC),
			Data: data,
		}
		_, err := store.SaveEvent(ctx, ev)
		require.NoError(t, err)

		got, err := store.GetEvent(ctx, ev.ID)
		require.NoError(t, err, data.Kind())
		assert.Equal(t, ev.ID, got.ID)
		assert.True(t, ev.At.Equal(got.At))
		assert.Equal(t, data, got.Data)
	}
}

func TestGetEventNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetEvent(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLatestEventTime(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	at, err := store.LatestEventTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), at.Unix())

	times := []time.Time{
		time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
	}
	for _, ts := range times {
		_, err := store.SaveEvent(ctx, &models.StoredEvent{ID: uuid.New(), At: ts, Data: sampleBought()})
		require.NoError(t, err)
	}

	at, err = store.LatestEventTime(ctx)
	require.NoError(t, err)
	assert.True(t, times[1].Equal(at), "got %s", at)
}

func TestModelHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	at, err := store.LatestModelTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), at.Unix())

	land := models.Land{
		Location:        models.Location(2080),
		BlockDateBought: 1700000000,
		Owner:           models.Address("0xabc"),
		SellPrice:       models.NewU256(1000),
		TokenUsed:       models.Address("0x49d"),
		Level:           models.LevelFirst,
	}
	first := &models.StoredModel{ID: uuid.New(), At: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), Data: land}
	land.SellPrice = models.NewU256(2000)
	second := &models.StoredModel{ID: uuid.New(), At: time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC), Data: land}
	stake := &models.StoredModel{
		ID:   uuid.New(),
		At:   time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		Data: models.LandStake{Location: models.Location(2080), LastPayTime: 1700000100, Amount: models.NewU256(5)},
	}

	var written []bool
	for _, m := range []*models.StoredModel{first, second, stake, stake} {
		inserted, err := store.SaveModel(ctx, m)
		require.NoError(t, err)
		written = append(written, inserted)
	}
	assert.Equal(t, []bool{true, true, true, false}, written)

	n, err := store.CountModels(ctx, models.KindLand)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = store.CountModels(ctx, models.KindLandStake)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	at, err = store.LatestModelTime(ctx)
	require.NoError(t, err)
	assert.True(t, stake.At.Equal(at), "got %s", at)
}

func TestQuarantine(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := &storage.QuarantinedRecord{
		ID:      uuid.New(),
		At:      time.Now(),
		Loop:    "events",
		Tag:     "ponzi_land-MysteryEvent",
		EventID: "0x1",
		Payload: []byte(`{"x":1}`),
		Reason:  "unknown kind",
	}
	require.NoError(t, store.Quarantine(ctx, rec))
	require.NoError(t, store.Quarantine(ctx, rec))

	n, err := store.CountQuarantined(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClosedStoreReportsConnectivity(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.SaveModel(ctx, &models.StoredModel{
		ID:   uuid.New(),
		At:   time.Now(),
		Data: models.LandStake{Amount: models.NewU256(1)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrConnectivity))

	var pe *storage.PersistError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "save model", pe.Op)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ", nil)
	assert.Error(t, err)
}
