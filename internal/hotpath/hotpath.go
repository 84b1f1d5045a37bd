// Package hotpath coordinates the source to sink pipeline hot path.
package hotpath

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ibs-source/logship/internal/event"
	"github.com/ibs-source/logship/internal/log"
	"github.com/ibs-source/logship/internal/sink"
)

// Source produces events into a channel until its context is cancelled and
// settles them through Acknowledge. Run must not close out.
type Source interface {
	event.Acker
	Run(ctx context.Context, out chan<- event.Event) error
}

// HotPath orchestrates the source→sink pipeline
type HotPath struct {
	source   Source
	sink     sink.Sink
	capacity int
	log      *log.Logger
}

// New creates a new hot path orchestrator. capacity is the depth of the
// channel between source and sink.
func New(source Source, s sink.Sink, capacity int, logger *log.Logger) *HotPath {
	if capacity < 1 {
		capacity = 1
	}
	return &HotPath{
		source:   source,
		sink:     s,
		capacity: capacity,
		log:      logger,
	}
}

// startLoop starts a loop goroutine and reports non-canceled errors
func (hp *HotPath) startLoop(
	ctx context.Context,
	wg *sync.WaitGroup,
	name string,
	loop func(context.Context) error,
	errCh chan<- error,
) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("%s loop error: %w", name, err)
		}
	}()
}

// Run moves events from the source to the sink until ctx is cancelled or
// either side fails. On cancellation the sink flushes its partial batch and
// drains in-flight requests; events still queued in the channel stay
// unacknowledged and are redelivered by the source.
func (hp *HotPath) Run(ctx context.Context) error {
	hp.log.Info("Starting hot path orchestrator")

	events := make(chan event.Event, hp.capacity)
	sourceCtx, stopSource := context.WithCancel(ctx)
	defer stopSource()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	sourceDone := make(chan struct{})
	sinkDone := make(chan struct{})

	hp.startLoop(ctx, &wg, "sink", func(ctx context.Context) error {
		defer close(sinkDone)
		return hp.sink.Run(ctx, events, hp.source)
	}, errCh)

	hp.startLoop(sourceCtx, &wg, "source", func(ctx context.Context) error {
		defer close(sourceDone)
		defer close(events)
		return hp.source.Run(ctx, events)
	}, errCh)

	var err error
	select {
	case <-ctx.Done():
		hp.log.Info("Shutting down hot path orchestrator")
	case err = <-errCh:
		hp.log.Error("Hot path error: %v", err)
	case <-sourceDone:
		hp.log.Info("Source stopped")
	case <-sinkDone:
		hp.log.Warn("Sink stopped")
	}

	// a sink that stops on its own leaves nobody reading the channel
	stopSource()
	wg.Wait()

	if err == nil {
		select {
		case err = <-errCh:
		default:
		}
	}
	if err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
