// Package notify forwards player actions derived from events to gg.xyz.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:  strings.TrimSpace(apiKey),
		HTTP: &http.Client{
			Timeout: timeout,
		},
	}
}

type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	b := strings.TrimSpace(string(e.Body))
	if b == "" {
		return fmt.Sprintf("gg http %d", e.StatusCode)
	}
	return fmt.Sprintf("gg http %d: %s", e.StatusCode, b)
}

// PostRequest credits actions to a player address.
type PostRequest struct {
	Address string   `json:"address"`
	Actions []string `json:"actions"`
}

// SendActions posts req to the actions endpoint. The response body is not
// interpreted beyond its status.
func (c *Client) SendActions(ctx context.Context, req PostRequest) error {
	if strings.TrimSpace(req.Address) == "" {
		return fmt.Errorf("address is required")
	}
	if len(req.Actions) == 0 {
		return fmt.Errorf("at least one action is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/actions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("accept", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("x-api-key", c.APIKey)
	}

	res, err := c.HTTP.Do(httpReq)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	respBody, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &HTTPError{StatusCode: res.StatusCode, Body: respBody}
	}
	return nil
}
