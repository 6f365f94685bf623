package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/cache"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/config"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/constants"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/ingest"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/metrics"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/notify"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/server"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/storage"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/storage/postgres"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/storage/sqlite"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/tasks"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/torii"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	// Get the project root directory (where go.mod is)
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (storage.Store, error) {
	if cfg.DatabaseDriver == "sqlite" {
		s, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := postgres.Open(ctx, postgres.Config{URL: cfg.DatabaseURL, Logger: logger})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// main runs both ingestion loops under a supervisor and serves the
// control API until SIGINT or SIGTERM.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	// load .env BEFORE anything reads os.Getenv
	loadEnv(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open store")
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("failed to create schema")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var (
		eventSinks []storage.EventSink
		modelSinks []storage.ModelSink
		recent     storage.RecentEvents
		progress   server.IngestProgress
	)

	// Redis is optional: recent events, watermarks and pub/sub fan-out
	if cfg.RedisAddr != "" {
		rclient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rclient.Close()
		if err := rclient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Fatal("failed to connect to Redis")
		}
		rcache, err := cache.NewRedisCache(rclient)
		if err != nil {
			logger.WithError(err).Fatal("failed to create redis cache")
		}
		pubsub := cache.NewPubSubManager(rclient, logger)
		recent = rcache
		progress = rcache
		eventSinks = append(eventSinks, rcache, pubsub)
		modelSinks = append(modelSinks, rcache, pubsub)
	}

	// ClickHouse analytics mirror (optional)
	if cfg.ClickHouseAddr != "" {
		ch, err := cache.NewClickHouseStore(ctx, cache.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Logger:   logger,
		})
		if err != nil {
			logger.WithError(err).Warn("clickhouse unavailable, mirror disabled")
		} else {
			defer ch.Close()
			if err := ch.EnsureSchema(ctx); err != nil {
				logger.WithError(err).Fatal("failed to create clickhouse schema")
			}
			eventSinks = append(eventSinks, ch)
			modelSinks = append(modelSinks, ch)
		}
	}

	// gg.xyz action forwarding (optional)
	if cfg.GGAPIURL != "" {
		eventSinks = append(eventSinks, notify.NewNotifier(notify.NewClient(cfg.GGAPIURL, cfg.GGAPIKey, cfg.HTTPTimeout), logger))
	}

	client := torii.NewClient(torii.ClientConfig{
		BaseURL:       cfg.ToriiURL,
		WSURL:         cfg.ToriiWSURL,
		Timeout:       cfg.HTTPTimeout,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
		PageSize:      cfg.CatchUpPageSize,
		PageRate:      cfg.CatchUpRate,
		MaxReconnects: cfg.SubscribeMaxReconnects,
		Logger:        logger,
	})

	pcfg := ingest.ProcessorConfig{Logger: logger, Metrics: m}
	if cfg.QuarantineDecodeFailures {
		pcfg.Quarantine = store
	}

	events := ingest.NewLoop(ingest.LoopConfig{
		Name:      constants.LoopEvents,
		Source:    ingest.EventSource(client),
		Processor: ingest.NewEventProcessor(store, eventSinks, pcfg),
		Cooldown:  cfg.RestartCooldown,
		Logger:    logger,
		Metrics:   m,
	})
	entities := ingest.NewLoop(ingest.LoopConfig{
		Name:      constants.LoopModels,
		Source:    ingest.ModelSource(client),
		Processor: ingest.NewModelProcessor(store, modelSinks, pcfg),
		Cooldown:  cfg.RestartCooldown,
		Logger:    logger,
		Metrics:   m,
	})

	supervisor := tasks.NewSupervisor(ctx,
		tasks.NewTask(events.Name(), events.Run, logger),
		tasks.NewTask(entities.Name(), entities.Run, logger),
	)
	logger.WithField("tasks", supervisor.Start()).Info("ingestion started")

	h := &server.Handlers{
		Store:    store,
		Recent:   recent,
		Progress: progress,
		Tasks:    supervisor,
		Logger:   logger,
	}
	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:     cfg.APIAddr,
			DevMode:  cfg.DevMode,
			APIKey:   cfg.APIKey,
			Metrics:  m,
			Gatherer: reg,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-sigCh
		logger.Info("shutting down")
		supervisor.Stop()
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := supervisor.Wait(waitCtx); err != nil {
			logger.WithError(err).Warn("ingestion tasks did not stop in time")
		}
		waitCancel()
		cancel()
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithField("addr", cfg.APIAddr).Info("api server starting")
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("api server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		logger.WithError(err).Warn("server did not close cleanly")
	}
}
