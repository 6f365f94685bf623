package torii

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func drain(t *testing.T, s *Stream) []RawRecord {
	t.Helper()
	var out []RawRecord
	timeout := time.After(5 * time.Second)
	for {
		select {
		case rec, ok := <-s.Records():
			if !ok {
				return out
			}
			out = append(out, rec)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func TestCatchUpPaginates(t *testing.T) {
	rows := []map[string]any{
		{"selector": "ponzi_land-LandNukedEvent", "data": `{"owner_nuked":"0x1","land_location":1}`, "event_id": "e1", "created_at": "2025-05-04 16:50:42"},
		{"selector": "ponzi_land-LandNukedEvent", "data": map[string]any{"owner_nuked": "0x2", "land_location": 2}, "event_id": "e2", "created_at": "2025-05-04 16:50:43"},
		{"selector": "ponzi_land-LandNukedEvent", "data": `{"owner_nuked":"0x3","land_location":3}`, "event_id": "e3", "created_at": "2025-05-04 16:50:44"},
	}

	var mu sync.Mutex
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sql", r.URL.Path)
		q := r.URL.Query().Get("query")
		mu.Lock()
		queries = append(queries, q)
		page := len(queries) - 1
		mu.Unlock()

		start := page * 2
		end := start + 2
		if start > len(rows) {
			start = len(rows)
		}
		if end > len(rows) {
			end = len(rows)
		}
		_ = json.NewEncoder(w).Encode(rows[start:end])
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second, PageSize: 2, Logger: quietLogger()})
	since := time.Date(2025, 5, 4, 16, 0, 0, 0, time.UTC)

	s := c.EventsAfter(context.Background(), since)
	got := drain(t, s)
	require.NoError(t, s.Err())
	require.Len(t, got, 3)

	for i, rec := range got {
		assert.Equal(t, OriginCatchUp, rec.Origin)
		assert.Equal(t, "ponzi_land-LandNukedEvent", rec.Tag())
		require.NotNil(t, rec.JSON)
		assert.True(t, json.Valid(rec.JSON.Data), "record %d data is not json", i)
	}
	assert.Equal(t, "e2", got[1].EventID)
	assert.Equal(t, time.Date(2025, 5, 4, 16, 50, 43, 0, time.UTC), got[1].At)
	assert.JSONEq(t, `{"owner_nuked":"0x1","land_location":1}`, string(got[0].JSON.Data))

	require.Len(t, queries, 2)
	assert.Contains(t, queries[0], "created_at >= '2025-05-04 16:00:00'")
	assert.Contains(t, queries[0], "event_messages_historical")
	assert.Contains(t, queries[0], "LIMIT 2 OFFSET 0")
	assert.Contains(t, queries[1], "LIMIT 2 OFFSET 2")
}

func TestEntitiesQueryTargetsTrackedModels(t *testing.T) {
	q := catchUpQuery("entities_historical", modelSelectors(), time.Unix(0, 0), 100, 0)
	assert.Contains(t, q, "FROM entities_historical t")
	assert.Contains(t, q, "'ponzi_land-Land', 'ponzi_land-LandStake'")
	assert.Contains(t, q, "created_at >= '1970-01-01 00:00:00'")
}

func TestQueryRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 3, RetryBackoff: time.Millisecond, Logger: quietLogger()})

	var rows []sqlRow
	require.NoError(t, c.Query(context.Background(), "SELECT 1", &rows))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCatchUpFailureIsSourceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 1, RetryBackoff: time.Millisecond, Logger: quietLogger()})
	s := c.EntitiesAfter(context.Background(), time.Unix(0, 0))
	assert.Empty(t, drain(t, s))

	var srcErr *SourceError
	require.ErrorAs(t, s.Err(), &srcErr)
	assert.Contains(t, srcErr.Source, "entities_historical")
}

func TestDeriveWSURL(t *testing.T) {
	assert.Equal(t, "wss://torii.example/ws", deriveWSURL("https://torii.example"))
	assert.Equal(t, "ws://localhost:8080/ws", deriveWSURL("http://localhost:8080"))
}

func TestParseTime(t *testing.T) {
	want := time.Date(2025, 5, 4, 16, 50, 42, 0, time.UTC)
	for _, in := range []string{"2025-05-04 16:50:42", "2025-05-04T16:50:42", "2025-05-04T16:50:42Z"} {
		got, err := ParseTime(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseTime("yesterday")
	assert.Error(t, err)
}

func TestSubscribeReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var sessions int32
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Channel != channelEvents || req.Type != "subscribe" {
			return
		}

		n := atomic.AddInt32(&sessions, 1)
		_ = conn.WriteJSON(frame{
			EventID:   "ev-" + string(rune('0'+n)),
			CreatedAt: "2025-05-04 16:50:42",
			Models: []Struct{{
				Name: "ponzi_land-LandNukedEvent",
				Children: []Member{
					{Name: "land_location", Ty: Ty{Primitive: &Primitive{Type: TypeU16, Value: json.RawMessage(`1`)}}},
				},
			}},
		})
		if n == 1 {
			return // drop the first session
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewClient(ClientConfig{BaseURL: srv.URL, WSURL: wsURL, ReconnectBackoff: 10 * time.Millisecond, Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	s := c.SubscribeEvents(ctx)

	var got []RawRecord
	for len(got) < 2 {
		select {
		case rec := <-s.Records():
			got = append(got, rec)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for live records")
		}
	}
	cancel()
	drain(t, s)

	assert.ErrorIs(t, s.Err(), context.Canceled)
	assert.Equal(t, "ev-1", got[0].EventID)
	assert.Equal(t, "ev-2", got[1].EventID)
	assert.Equal(t, OriginLive, got[1].Origin)
	require.NotNil(t, got[1].Struct)
	assert.Equal(t, "ponzi_land-LandNukedEvent", got[1].Tag())
}

func TestSubscribeGivesUp(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var dials int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&dials, 1) > 1 {
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var req subscribeRequest
		_ = conn.ReadJSON(&req)
		_ = conn.Close()
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		BaseURL:          srv.URL,
		MaxReconnects:    2,
		ReconnectBackoff: time.Millisecond,
		Logger:           quietLogger(),
	})
	s := c.SubscribeEntities(context.Background())
	require.NoError(t, s.Opened(context.Background()))
	assert.Empty(t, drain(t, s))

	var srcErr *SourceError
	require.ErrorAs(t, s.Err(), &srcErr)
	assert.Equal(t, "subscribe entities", srcErr.Source)
	assert.Equal(t, int32(2), atomic.LoadInt32(&dials))
}

func TestSubscribeFirstDialFailureIsSourceError(t *testing.T) {
	c := NewClient(ClientConfig{
		BaseURL:          "http://127.0.0.1:1",
		MaxReconnects:    5,
		ReconnectBackoff: time.Hour,
		Logger:           quietLogger(),
	})
	s := c.SubscribeEvents(context.Background())

	var srcErr *SourceError
	require.ErrorAs(t, s.Opened(context.Background()), &srcErr)
	assert.Equal(t, "subscribe event_messages", srcErr.Source)
	assert.Empty(t, drain(t, s))
}

func TestStreamOpenedWaitsForSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	s := NewLiveStream(ctx, func(ctx context.Context, emit Emit, open func()) error {
		<-release
		open()
		<-ctx.Done()
		return ctx.Err()
	})

	waitCtx, waitCancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer waitCancel()
	assert.ErrorIs(t, s.Opened(waitCtx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, s.Opened(ctx))
	require.NoError(t, FromRecords(ctx).Opened(ctx))
}
