package torii

import (
	"context"
	"errors"
	"sync"
)

// Emit hands one record to the consumer. It returns false once the
// stream's context is done and the producer must stop.
type Emit func(RawRecord) bool

// ErrNotOpened is reported by Opened when the producer finished without
// ever opening its source.
var ErrNotOpened = errors.New("stream ended before its source was opened")

// Stream is a lazily produced sequence of records. Records is closed when
// the producer finishes; Err is valid after that.
type Stream struct {
	records chan RawRecord
	opened  chan struct{}
	done    chan struct{}
	err     error
}

// NewStream runs produce in its own goroutine. Records are handed over
// unbuffered, so the producer never runs ahead of the consumer by more than
// the record it is currently offering. The stream counts as opened at once.
func NewStream(ctx context.Context, produce func(ctx context.Context, emit Emit) error) *Stream {
	return start(ctx, func(ctx context.Context, emit Emit, open func()) error {
		open()
		return produce(ctx, emit)
	})
}

// NewLiveStream is NewStream for producers that must establish a session
// first. Opened blocks until the producer calls open.
func NewLiveStream(ctx context.Context, produce func(ctx context.Context, emit Emit, open func()) error) *Stream {
	return start(ctx, produce)
}

func start(ctx context.Context, produce func(ctx context.Context, emit Emit, open func()) error) *Stream {
	s := &Stream{
		records: make(chan RawRecord),
		opened:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	var once sync.Once
	open := func() { once.Do(func() { close(s.opened) }) }
	emit := func(r RawRecord) bool {
		open()
		select {
		case s.records <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}
	go func() {
		defer close(s.records)
		s.err = produce(ctx, emit, open)
		close(s.done)
	}()
	return s
}

// FromRecords is a finite stream over recs.
func FromRecords(ctx context.Context, recs ...RawRecord) *Stream {
	return NewStream(ctx, func(ctx context.Context, emit Emit) error {
		for _, r := range recs {
			if !emit(r) {
				return ctx.Err()
			}
		}
		return nil
	})
}

func (s *Stream) Records() <-chan RawRecord { return s.records }

// Err returns the producer's terminal error. Only call it after Records
// has been closed.
func (s *Stream) Err() error { return s.err }

// Opened waits until the source is open. It returns the producer's error,
// or ErrNotOpened, when the producer gave up first.
func (s *Stream) Opened(ctx context.Context) error {
	select {
	case <-s.opened:
		return nil
	case <-s.done:
		select {
		case <-s.opened:
			return nil
		default:
		}
		if s.err != nil {
			return s.err
		}
		return ErrNotOpened
	case <-ctx.Done():
		return ctx.Err()
	}
}
