package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/constants"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/decoder"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/metrics"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/storage"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/torii"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Outcome tells what happened to a record that did not fail the pass.
type Outcome int

const (
	Saved Outcome = iota
	Quarantined
	// Replayed records were already stored; sinks are not called again.
	Replayed
)

// Processor turns raw records into stored rows for one loop.
type Processor interface {
	// Watermark is the newest stored occurrence time, the epoch when empty.
	Watermark(ctx context.Context) (time.Time, error)

	// Process decodes and saves raw. Errors are fatal to the current pass.
	Process(ctx context.Context, raw torii.RawRecord) (Outcome, error)
}

// ProcessorConfig holds what both processors share.
type ProcessorConfig struct {
	// Quarantine, when set, receives records that fail to decode; they
	// are then skipped instead of failing the pass.
	Quarantine storage.QuarantineStore
	Logger     *logrus.Logger
	Metrics    *metrics.Metrics
}

type base struct {
	loop       string
	quarantine storage.QuarantineStore
	logger     *logrus.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func newBase(loop string, cfg ProcessorConfig) base {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return base{
		loop:       loop,
		quarantine: cfg.Quarantine,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		now:        time.Now,
	}
}

// identify derives the row id and time of raw. Records without an upstream
// id get a random one, which a replay of the same record will not match.
func (b base) identify(raw torii.RawRecord) (uuid.UUID, time.Time) {
	at := raw.At
	if at.IsZero() {
		at = b.now()
	}
	if raw.EventID == "" {
		b.logger.WithFields(logrus.Fields{
			"loop":   b.loop,
			"tag":    raw.Tag(),
			"origin": raw.Origin,
		}).Warn("record has no upstream id, assigning a random one")
		return uuid.New(), at.UTC()
	}
	return models.DeriveID(raw.Tag(), raw.EventID), at.UTC()
}

// rejected handles a decode failure: quarantined when enabled, fatal
// otherwise.
func (b base) rejected(ctx context.Context, raw torii.RawRecord, decodeErr error) (Outcome, error) {
	if b.quarantine == nil || !errors.Is(decodeErr, decoder.ErrDecode) {
		return Saved, decodeErr
	}

	payload, err := rawPayload(raw)
	if err != nil {
		return Saved, fmt.Errorf("quarantine %s: %w", raw.Tag(), err)
	}
	id := uuid.New()
	if raw.EventID != "" {
		id = models.DeriveID("quarantine/"+raw.Tag(), raw.EventID)
	}
	rec := &storage.QuarantinedRecord{
		ID:      id,
		At:      b.now().UTC(),
		Loop:    b.loop,
		Tag:     raw.Tag(),
		EventID: raw.EventID,
		Payload: payload,
		Reason:  decodeErr.Error(),
	}
	if err := b.quarantine.Quarantine(ctx, rec); err != nil {
		return Saved, err
	}

	b.metrics.RecordQuarantined(b.loop)
	b.logger.WithFields(logrus.Fields{
		"loop":     b.loop,
		"tag":      raw.Tag(),
		"event_id": raw.EventID,
		"error":    decodeErr,
	}).Warn("record quarantined")
	return Quarantined, nil
}

func rawPayload(raw torii.RawRecord) ([]byte, error) {
	switch {
	case raw.JSON != nil:
		return raw.JSON.Data, nil
	case raw.Struct != nil:
		return json.Marshal(raw.Struct)
	}
	return nil, nil
}

func (b base) sinkFailed(sink string, err error, fields logrus.Fields) {
	b.metrics.RecordSinkFailure(sink)
	fields["loop"] = b.loop
	fields["sink"] = sink
	fields["error"] = err
	b.logger.WithFields(fields).Warn("sink delivery failed")
}

// EventProcessor stores events and hands them to the event sinks.
type EventProcessor struct {
	base
	repo  storage.EventRepository
	sinks []storage.EventSink
}

func NewEventProcessor(repo storage.EventRepository, sinks []storage.EventSink, cfg ProcessorConfig) *EventProcessor {
	return &EventProcessor{base: newBase(constants.LoopEvents, cfg), repo: repo, sinks: sinks}
}

func (p *EventProcessor) Watermark(ctx context.Context) (time.Time, error) {
	return p.repo.LatestEventTime(ctx)
}

func (p *EventProcessor) Process(ctx context.Context, raw torii.RawRecord) (Outcome, error) {
	data, err := decoder.DecodeEvent(raw)
	if err != nil {
		return p.rejected(ctx, raw, err)
	}

	id, at := p.identify(raw)
	ev := &models.StoredEvent{ID: id, At: at, Data: data}
	inserted, err := p.repo.SaveEvent(ctx, ev)
	if err != nil {
		return Saved, err
	}
	if !inserted {
		return Replayed, nil
	}

	for _, sink := range p.sinks {
		if err := sink.OnEvent(ctx, ev); err != nil {
			p.sinkFailed(sink.Name(), err, logrus.Fields{"id": ev.ID, "kind": data.Kind().Short()})
		}
	}
	return Saved, nil
}

// ModelProcessor appends model snapshots to history.
type ModelProcessor struct {
	base
	repo  storage.ModelRepository
	sinks []storage.ModelSink
}

func NewModelProcessor(repo storage.ModelRepository, sinks []storage.ModelSink, cfg ProcessorConfig) *ModelProcessor {
	return &ModelProcessor{base: newBase(constants.LoopModels, cfg), repo: repo, sinks: sinks}
}

func (p *ModelProcessor) Watermark(ctx context.Context) (time.Time, error) {
	return p.repo.LatestModelTime(ctx)
}

func (p *ModelProcessor) Process(ctx context.Context, raw torii.RawRecord) (Outcome, error) {
	data, err := decoder.DecodeModel(raw)
	if err != nil {
		return p.rejected(ctx, raw, err)
	}

	id, at := p.identify(raw)
	m := &models.StoredModel{ID: id, At: at, Data: data}
	inserted, err := p.repo.SaveModel(ctx, m)
	if err != nil {
		return Saved, err
	}
	if !inserted {
		return Replayed, nil
	}

	for _, sink := range p.sinks {
		if err := sink.OnModel(ctx, m); err != nil {
			p.sinkFailed(sink.Name(), err, logrus.Fields{"id": m.ID, "kind": data.Kind().Short()})
		}
	}
	return Saved, nil
}
