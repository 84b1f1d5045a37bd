package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ibs-source/logship/internal/config"
	"github.com/ibs-source/logship/internal/event"
	"github.com/ibs-source/logship/internal/log"
)

// Source feeds stream entries into the pipeline and settles them once their
// batch completes. Delivered and rejected entries are removed from the
// stream; failed entries stay pending and are claimed again later.
type Source struct {
	client              *Client
	claimInterval       time.Duration
	cleanupInterval     time.Duration
	refreshInterval     time.Duration
	consumerIdleTimeout time.Duration
	errorBackoff        time.Duration
	ackTimeout          time.Duration
	dropFailed          bool
	held                *heldSet
	log                 *log.Logger
}

// Ensure Source implements event.Acker
var _ event.Acker = (*Source)(nil)

// NewSource wraps a connected client
func NewSource(client *Client, cfg *config.RedisConfig, errorBackoff time.Duration, logger *log.Logger) *Source {
	ackTimeout := cfg.WriteTimeout
	if ackTimeout <= 0 {
		ackTimeout = 5 * time.Second
	}
	return &Source{
		client:              client,
		claimInterval:       cfg.ClaimInterval,
		cleanupInterval:     cfg.CleanupInterval,
		refreshInterval:     cfg.RefreshInterval,
		consumerIdleTimeout: cfg.ConsumerIdleTimeout,
		errorBackoff:        errorBackoff,
		ackTimeout:          ackTimeout,
		dropFailed:          cfg.DropFailed,
		held:                newHeldSet(),
		log:                 logger,
	}
}

// startLoop starts a loop goroutine and reports non-canceled errors
func (s *Source) startLoop(
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

// Run reads entries into out until ctx is cancelled. Periodic loops
// reclaim idle entries, remove dead consumers and rediscover streams.
// Run never closes out.
func (s *Source) Run(ctx context.Context, out chan<- event.Event) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	s.startLoop(ctx, &wg, "fetch", func(ctx context.Context) error { return s.fetchLoop(ctx, out) }, errCh)
	s.startLoop(ctx, &wg, "claim", func(ctx context.Context) error { return s.claimLoop(ctx, out) }, errCh)
	s.startLoop(ctx, &wg, "cleanup", s.cleanupLoop, errCh)
	s.startLoop(ctx, &wg, "refresh", s.refreshLoop, errCh)

	var err error
	select {
	case <-ctx.Done():
		s.log.Info("Stopping Redis source")
		err = ctx.Err()
	case err = <-errCh:
		s.log.Error("Redis source error: %v", err)
	}
	cancel()
	wg.Wait()
	return err
}

func (s *Source) fetchLoop(ctx context.Context, out chan<- event.Event) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := s.client.ReadBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("Failed to read batch from Redis: %v", err)
			if err := s.sleep(ctx, s.errorBackoff); err != nil {
				return err
			}
			continue
		}
		if len(entries) == 0 {
			continue
		}

		s.log.Debug("Fetched %d entries from Redis", len(entries))
		if err := s.emit(ctx, out, entries); err != nil {
			return err
		}
	}
}

func (s *Source) claimLoop(ctx context.Context, out chan<- event.Event) error {
	return s.every(ctx, s.claimInterval, func() error {
		s.touchHeld(ctx)
		entries, err := s.client.ClaimIdle(ctx, s.held.holds)
		if err != nil {
			s.log.Error("Failed to claim idle entries: %v", err)
			return nil
		}
		if len(entries) > 0 {
			s.log.Info("Claimed %d idle entries", len(entries))
		}
		return s.emit(ctx, out, entries)
	})
}

// touchHeld keeps the entries still in the pipeline from going idle
func (s *Source) touchHeld(ctx context.Context) {
	for stream, ids := range s.held.byStream() {
		if err := s.client.Touch(ctx, stream, ids); err != nil {
			s.log.Warn("Failed to refresh %d in-flight entries in stream %s: %v", len(ids), stream, err)
		}
	}
}

func (s *Source) cleanupLoop(ctx context.Context) error {
	return s.every(ctx, s.cleanupInterval, func() error {
		s.client.CleanupDeadConsumers(ctx, s.consumerIdleTimeout)
		return nil
	})
}

func (s *Source) refreshLoop(ctx context.Context) error {
	return s.every(ctx, s.refreshInterval, func() error {
		n, err := s.client.RefreshStreams(ctx)
		if err != nil {
			s.log.Error("Failed to refresh streams: %v", err)
			return nil
		}
		if n > 0 {
			s.log.Info("Stream refresh discovered %d new streams", n)
		}
		return nil
	})
}

// every runs fn at interval until ctx is done or fn fails. A non-positive
// interval disables the loop.
func (s *Source) every(ctx context.Context, interval time.Duration, fn func() error) error {
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(); err != nil {
				return err
			}
		}
	}
}

func (s *Source) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// emit converts entries and sends them to out, holding each one until its
// batch is acknowledged. Entries not sent before cancellation stay pending
// and are claimed again later.
func (s *Source) emit(ctx context.Context, out chan<- event.Event, entries []Entry) error {
	for _, e := range entries {
		tok := Token{Stream: e.Stream, ID: e.Message.ID}
		s.held.add(tok)
		select {
		case <-ctx.Done():
			s.held.release([]event.Token{tok})
			return ctx.Err()
		case out <- toEvent(e):
		}
	}
	return nil
}

// Acknowledge settles entries of a completed batch
func (s *Source) Acknowledge(tokens []event.Token, status event.Status) {
	s.held.release(tokens)
	if status == event.Failed && !s.dropFailed {
		s.log.WarnWithFields(log.Fields{
			"entries": len(tokens),
		}, "Batch failed, entries stay pending and will be reclaimed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ackTimeout)
	defer cancel()

	for stream, ids := range groupTokens(tokens) {
		if err := s.client.AckAndDelete(ctx, stream, ids); err != nil {
			s.log.Error("Failed to acknowledge %d entries in stream %s: %v", len(ids), stream, err)
			continue
		}
		s.log.Debug("Acknowledged %d %s entries in stream %s", len(ids), status, stream)
	}
}

// Close closes the underlying client
func (s *Source) Close() error {
	return s.client.Close()
}
