// Package ingest runs the catch-up plus live ingestion loops.
//
// Each pass reads the watermark W from storage, waits for the live
// subscription to be established, then opens the catch-up query at W, and
// saves every merged record synchronously. The loop cools down and starts a
// new pass whenever the merged stream ends, whether it ran dry or failed.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/constants"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/decoder"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/metrics"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/storage"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/torii"
	"github.com/sirupsen/logrus"
)

// Source opens both upstream channels of one loop.
type Source interface {
	CatchUp(ctx context.Context, since time.Time) *torii.Stream
	Subscribe(ctx context.Context) *torii.Stream
}

// SourceFuncs adapts a pair of functions to Source.
type SourceFuncs struct {
	CatchUpFunc   func(ctx context.Context, since time.Time) *torii.Stream
	SubscribeFunc func(ctx context.Context) *torii.Stream
}

func (s SourceFuncs) CatchUp(ctx context.Context, since time.Time) *torii.Stream {
	return s.CatchUpFunc(ctx, since)
}

func (s SourceFuncs) Subscribe(ctx context.Context) *torii.Stream {
	return s.SubscribeFunc(ctx)
}

// EventSource reads event messages from Torii.
func EventSource(c *torii.Client) Source {
	return SourceFuncs{CatchUpFunc: c.EventsAfter, SubscribeFunc: c.SubscribeEvents}
}

// ModelSource reads entity updates from Torii.
func ModelSource(c *torii.Client) Source {
	return SourceFuncs{CatchUpFunc: c.EntitiesAfter, SubscribeFunc: c.SubscribeEntities}
}

// Loop drives one source into one processor until its context ends.
type Loop struct {
	name      string
	source    Source
	processor Processor
	cooldown  time.Duration
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

// LoopConfig holds configuration for a Loop
type LoopConfig struct {
	Name      string
	Source    Source
	Processor Processor
	Cooldown  time.Duration
	Logger    *logrus.Logger
	Metrics   *metrics.Metrics
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = constants.RestartCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Loop{
		name:      cfg.Name,
		source:    cfg.Source,
		processor: cfg.Processor,
		cooldown:  cfg.Cooldown,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

func (l *Loop) Name() string { return l.name }

// Run performs passes until ctx is cancelled and then returns ctx.Err().
// A failed pass is logged and followed by the same cooldown as an
// exhausted one.
func (l *Loop) Run(ctx context.Context) error {
	for pass := 1; ; pass++ {
		if pass > 1 {
			l.metrics.RecordRestart(l.name)
		}

		err := l.runPass(ctx)
		if ctx.Err() != nil {
			l.logger.WithField("loop", l.name).Info("ingestion loop stopped")
			return ctx.Err()
		}

		entry := l.logger.WithFields(logrus.Fields{"loop": l.name, "pass": pass, "cooldown": l.cooldown})
		var pe *passError
		if errors.As(err, &pe) {
			l.metrics.RecordPassError(l.name, pe.stage)
			entry.WithField("stage", pe.stage).WithError(pe.err).Error("ingestion pass failed")
		} else {
			entry.Info("merged stream ended, restarting after cooldown")
		}

		select {
		case <-ctx.Done():
			l.logger.WithField("loop", l.name).Info("ingestion loop stopped")
			return ctx.Err()
		case <-time.After(l.cooldown):
		}
	}
}

type passError struct {
	stage string
	err   error
}

func (e *passError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *passError) Unwrap() error { return e.err }

func stageOf(err error) string {
	var pe *storage.PersistError
	switch {
	case errors.Is(err, decoder.ErrDecode):
		return "decode"
	case errors.As(err, &pe):
		return "persist"
	}
	return "process"
}

func (l *Loop) runPass(ctx context.Context) error {
	since, err := l.processor.Watermark(ctx)
	if err != nil {
		return &passError{stage: "watermark", err: err}
	}
	l.metrics.SetWatermark(l.name, since)
	l.logger.WithFields(logrus.Fields{"loop": l.name, "since": since}).Info("starting ingestion pass")

	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The live session must exist before the catch-up query runs, or
	// records created between the two would be missed.
	live := l.source.Subscribe(passCtx)
	if err := live.Opened(passCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &passError{stage: "source", err: err}
	}
	catchUp := l.source.CatchUp(passCtx, since)
	merged := Merge(passCtx, catchUp, live)

	for raw := range merged.Records() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		start := time.Now()
		outcome, err := l.processor.Process(passCtx, raw)
		if err != nil {
			return &passError{stage: stageOf(err), err: err}
		}
		if outcome == Saved {
			l.metrics.RecordProcessed(l.name, shortTag(raw.Tag()), string(raw.Origin), time.Since(start))
		}
	}

	if err := merged.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &passError{stage: "source", err: err}
	}
	return nil
}

func shortTag(tag string) string {
	return models.EventKind(tag).Short()
}
