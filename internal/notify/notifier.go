package notify

import (
	"context"
	"errors"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/sirupsen/logrus"
)

// Action is one message credited to a player.
type Action struct {
	Address models.Address
	Message string
}

// ActionsFor maps an event to the player actions it represents. Most
// events carry none.
func ActionsFor(data models.EventData) []Action {
	switch ev := data.(type) {
	case models.LandNuked:
		return []Action{{ev.Owner, "Land nuked"}}
	case models.AuctionFinished:
		return []Action{{ev.Buyer, "Bought from auction"}}
	case models.LandBought:
		return []Action{
			{ev.Buyer, "Bought from player"},
			{ev.Seller, "Sold land"},
		}
	case models.AddressAuthorized:
		return []Action{{ev.Address, "Joined the Ponzi"}}
	}
	return nil
}

// Notifier is an event sink sending each action of an event separately.
type Notifier struct {
	client *Client
	logger *logrus.Logger
}

func NewNotifier(client *Client, logger *logrus.Logger) *Notifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &Notifier{client: client, logger: logger}
}

func (n *Notifier) Name() string { return "gg" }

// OnEvent tries every action even when an earlier one fails and returns
// the joined failures.
func (n *Notifier) OnEvent(ctx context.Context, ev *models.StoredEvent) error {
	var errs []error
	for _, a := range ActionsFor(ev.Data) {
		n.logger.WithFields(logrus.Fields{
			"address": a.Address,
			"action":  a.Message,
		}).Info("submitting action")
		err := n.client.SendActions(ctx, PostRequest{
			Address: a.Address.String(),
			Actions: []string{a.Message},
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
