package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/cache"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/constants"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Example consumer: prints every event the indexer publishes.
// Channel patterns may be passed as arguments, e.g. "chaindata:events:LandBought".
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file, using system environment variables")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down subscriber")
		cancel()
	}()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rclient := redis.NewClient(&redis.Options{Addr: addr})
	defer rclient.Close()

	patterns := os.Args[1:]
	if len(patterns) == 0 {
		patterns = []string{constants.PubSubChannelEventPrefix + "*"}
	}

	pubsub := cache.NewPubSubManager(rclient, logger)
	err := pubsub.SubscribeEvents(ctx, func(ev *models.StoredEvent) {
		logger.WithFields(logrus.Fields{
			"id":   ev.ID,
			"kind": ev.Data.Kind(),
			"at":   ev.At,
		}).Info("event received")
	}, patterns...)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("subscription failed")
	}
}
