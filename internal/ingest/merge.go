package ingest

import (
	"context"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/torii"
)

// Merge interleaves streams in arrival order with no ordering across
// inputs. The merged stream ends once every input has ended, or as soon as
// one input fails, in which case Err reports that failure. Inputs left
// running after a failure stop when the caller cancels their context.
func Merge(ctx context.Context, streams ...*torii.Stream) *torii.Stream {
	return torii.NewStream(ctx, func(ctx context.Context, emit torii.Emit) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		recs := make(chan torii.RawRecord)
		done := make(chan error, len(streams))
		for _, s := range streams {
			go func(s *torii.Stream) {
				for r := range s.Records() {
					select {
					case recs <- r:
					case <-ctx.Done():
						done <- ctx.Err()
						return
					}
				}
				done <- s.Err()
			}(s)
		}

		for remaining := len(streams); remaining > 0; {
			select {
			case r := <-recs:
				if !emit(r) {
					return ctx.Err()
				}
			case err := <-done:
				if err != nil {
					return err
				}
				remaining--
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
}
