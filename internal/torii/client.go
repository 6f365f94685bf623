package torii

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/constants"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Client talks to a Torii node: SQL over HTTP for catch-up and a websocket
// for live updates.
type Client struct {
	httpClient    *http.Client
	dialer        *websocket.Dialer
	baseURL       string
	wsURL         string
	maxRetries    int
	retryBackoff  time.Duration
	pageSize      int
	pages         *rate.Limiter
	maxReconnects int
	reconnectWait time.Duration
	logger        *logrus.Logger
}

// ClientConfig holds configuration for the Torii client
type ClientConfig struct {
	BaseURL      string // http(s) root of the Torii node
	WSURL        string // subscription endpoint; derived from BaseURL when empty
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	PageSize int     // rows per catch-up page
	PageRate float64 // catch-up pages per second, 0 for unlimited

	MaxReconnects    int           // consecutive failed sessions before the live stream gives up
	ReconnectBackoff time.Duration // first wait between sessions, doubled up to a cap
	Logger           *logrus.Logger
}

// NewClient creates a Torii client
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = constants.CatchUpPageSize
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = constants.MaxSubscribeAttempts
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = constants.SubscribeBackoff
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	wsURL := strings.TrimSpace(cfg.WSURL)
	if wsURL == "" {
		wsURL = deriveWSURL(baseURL)
	}

	limit := rate.Inf
	if cfg.PageRate > 0 {
		limit = rate.Limit(cfg.PageRate)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
		baseURL:       baseURL,
		wsURL:         wsURL,
		maxRetries:    cfg.MaxRetries,
		retryBackoff:  cfg.RetryBackoff,
		pageSize:      cfg.PageSize,
		pages:         rate.NewLimiter(limit, 1),
		maxReconnects: cfg.MaxReconnects,
		reconnectWait: cfg.ReconnectBackoff,
		logger:        cfg.Logger,
	}
}

func deriveWSURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	}
	return base + "/ws"
}

// Query runs a SQL statement against the node with retry logic and decodes
// the JSON rows into result.
func (c *Client) Query(ctx context.Context, query string, result interface{}) error {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
			}).Debug("retrying torii query")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		body, err := c.doQuery(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal rows: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doQuery(ctx context.Context, query string) ([]byte, error) {
	u := c.baseURL + "/sql?" + url.Values{"query": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (429)")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}
