package cache

import (
	"context"
	"encoding/json"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/constants"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// PubSubManager fans stored records out over Redis Pub/Sub.
type PubSubManager struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewPubSubManager(client *redis.Client, logger *logrus.Logger) *PubSubManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &PubSubManager{client: client, logger: logger}
}

func (p *PubSubManager) Name() string { return "pubsub" }

// EventChannels lists the channels an event of kind is published to.
func EventChannels(kind models.EventKind) []string {
	return []string{
		constants.PubSubChannelEvents,
		constants.PubSubChannelEventPrefix + kind.Short(),
	}
}

func (p *PubSubManager) OnEvent(ctx context.Context, ev *models.StoredEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pipe := p.client.Pipeline()
	for _, channel := range EventChannels(ev.Data.Kind()) {
		pipe.Publish(ctx, channel, data)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (p *PubSubManager) OnModel(ctx context.Context, m *models.StoredModel) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, constants.PubSubChannelModels, data).Err()
}

// SubscribeEvents calls handler for every event published on the given
// channels or patterns until ctx is done.
func (p *PubSubManager) SubscribeEvents(ctx context.Context, handler func(*models.StoredEvent), patterns ...string) error {
	pubsub := p.client.PSubscribe(ctx, patterns...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	p.logger.WithField("patterns", patterns).Info("subscribed to event channels")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.StoredEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				p.logger.WithField("channel", msg.Channel).WithError(err).Warn("dropping undecodable message")
				continue
			}
			handler(&ev)
		}
	}
}
