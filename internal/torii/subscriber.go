package torii

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/constants"
	"github.com/sirupsen/logrus"
)

const (
	channelEvents   = "event_messages"
	channelEntities = "entities"
)

// SubscribeEvents streams tracked events as Torii indexes them. The stream
// opens once the first session is subscribed; failing that session ends it.
// Later sessions reconnect on their own and the stream only ends when ctx is
// done or the node stays unreachable for MaxReconnects consecutive dials.
func (c *Client) SubscribeEvents(ctx context.Context) *Stream {
	return c.subscribe(ctx, channelEvents, eventSelectors())
}

// SubscribeEntities streams tracked model updates.
func (c *Client) SubscribeEntities(ctx context.Context) *Stream {
	return c.subscribe(ctx, channelEntities, modelSelectors())
}

func (c *Client) subscribe(ctx context.Context, channel string, selectors []string) *Stream {
	return NewLiveStream(ctx, func(ctx context.Context, emit Emit, open func()) error {
		log := c.logger.WithField("channel", channel)
		backoff := c.reconnectWait
		failures := 0
		opened := false

		for {
			err := c.listen(ctx, channel, selectors, emit, func() {
				failures = 0
				backoff = c.reconnectWait
				opened = true
				open()
			})
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !opened {
				return &SourceError{Source: "subscribe " + channel, Err: err}
			}

			failures++
			if failures >= c.maxReconnects {
				return &SourceError{Source: "subscribe " + channel, Err: err}
			}

			log.WithError(err).WithFields(logrus.Fields{
				"attempt": failures,
				"backoff": backoff,
			}).Warn("subscription dropped, reconnecting")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > constants.SubscribeMaxBackoff {
				backoff = constants.SubscribeMaxBackoff
			}
		}
	})
}

// listen holds one websocket session until it fails or ctx is done.
func (c *Client) listen(ctx context.Context, channel string, selectors []string, emit Emit, connected func()) error {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when the caller goes away.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteJSON(subscribeRequest{Type: "subscribe", Channel: channel, Models: selectors}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	connected()
	c.logger.WithField("channel", channel).Info("connected to torii subscription")

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var at time.Time
		if f.CreatedAt != "" {
			if at, err = ParseTime(f.CreatedAt); err != nil {
				c.logger.WithError(err).Warn("ignoring frame timestamp")
			}
		}

		for i := range f.Models {
			rec := RawRecord{
				Origin:  OriginLive,
				EventID: f.EventID,
				At:      at,
				Struct:  &f.Models[i],
			}
			if !emit(rec) {
				return ctx.Err()
			}
		}
	}
}
