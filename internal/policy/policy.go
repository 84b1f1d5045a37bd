// Package policy wraps a transport with bounded concurrency, rate limiting,
// per-attempt timeouts and retry with exponential backoff.
package policy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ibs-source/logship/internal/clock"
	"github.com/ibs-source/logship/internal/encoding"
	"github.com/ibs-source/logship/internal/log"
	"github.com/ibs-source/logship/internal/transport"
)

var (
	// ErrTimeout is returned when a single attempt exceeds Settings.Timeout
	ErrTimeout = errors.New("request timed out")
	// ErrPermanent marks a failure that must not be retried
	ErrPermanent = errors.New("permanent request failure")
	// ErrRetriesExhausted is returned when every allowed attempt failed
	ErrRetriesExhausted = errors.New("request retries exhausted")
)

// Attempt outcomes reported to the Observer
const (
	OutcomeSuccess   = "success"
	OutcomeRetryable = "retryable"
	OutcomePermanent = "permanent"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

// Observer receives one notification per transport attempt
type Observer interface {
	RequestAttempt(outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) RequestAttempt(string, time.Duration) {}

// Service drives requests through a transport.Sender. Acquire/Release
// bound concurrency; Call runs the retry loop for one request.
type Service struct {
	sender   transport.Sender
	settings Settings
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	clock    clock.Clock
	log      *log.Logger
	observer Observer
	jitter   func() float64
}

// New validates settings and builds a Service. A nil observer is allowed.
func New(sender transport.Sender, settings Settings, clk clock.Clock, logger *log.Logger, observer Observer) (*Service, error) {
	if sender == nil {
		return nil, fmt.Errorf("policy requires a sender")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	if observer == nil {
		observer = nopObserver{}
	}

	s := &Service{
		sender:   sender,
		settings: settings,
		sem:      semaphore.NewWeighted(int64(settings.Concurrency)),
		clock:    clk,
		log:      logger,
		observer: observer,
		jitter:   rand.Float64,
	}
	if settings.RateLimitNum > 0 {
		limit := rate.Limit(float64(settings.RateLimitNum) / settings.RateLimitDuration.Seconds())
		s.limiter = rate.NewLimiter(limit, settings.RateLimitNum)
	}
	return s, nil
}

// Settings returns the settings the service was built with
func (s *Service) Settings() Settings {
	return s.settings
}

// Acquire blocks until a concurrency slot is free or ctx is done
func (s *Service) Acquire(ctx context.Context) error {
	return s.sem.Acquire(ctx, 1)
}

// Release returns a slot taken by Acquire
func (s *Service) Release() {
	s.sem.Release(1)
}

// Do acquires a slot, calls req and releases the slot
func (s *Service) Do(ctx context.Context, req *encoding.Request) (*transport.Response, error) {
	if err := s.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.Release()
	return s.Call(ctx, req)
}

// Call sends req until it succeeds, fails permanently, or runs out of
// retries. The caller must hold a slot.
func (s *Service) Call(ctx context.Context, req *encoding.Request) (*transport.Response, error) {
	for attempt := 1; ; attempt++ {
		if err := s.waitRate(ctx); err != nil {
			return nil, err
		}

		resp, err := s.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, errors.Join(ctx.Err(), err)
		}
		if errors.Is(err, ErrPermanent) {
			return nil, err
		}
		if attempt > s.settings.RetryAttempts {
			return nil, errors.Join(fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, attempt), err)
		}

		delay := s.backoff(attempt)
		if after, ok := retryAfter(resp, s.clock.Now()); ok && after > delay {
			delay = min(after, s.settings.MaxBackoff)
		}

		s.log.WarnWithFields(log.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
			"uri":     req.URI,
		}, "Retrying request: %v", err)

		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), err)
		case <-s.clock.After(delay):
		}
	}
}

// attempt performs one bounded send and classifies the result. On a
// retryable status the response is returned alongside the error so that
// Retry-After can be honoured.
func (s *Service) attempt(ctx context.Context, req *encoding.Request) (*transport.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.sender.Send(attemptCtx, req)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			s.observer.RequestAttempt(OutcomeTimeout, elapsed)
			return nil, fmt.Errorf("%w after %v: %w", ErrTimeout, s.settings.Timeout, err)
		}
		s.observer.RequestAttempt(OutcomeError, elapsed)
		return nil, err
	case transport.IsSuccess(resp.StatusCode):
		s.observer.RequestAttempt(OutcomeSuccess, elapsed)
		return resp, nil
	}

	statusErr := transport.NewStatusError(resp)
	if statusErr.Retryable() {
		s.observer.RequestAttempt(OutcomeRetryable, elapsed)
		return resp, statusErr
	}
	s.observer.RequestAttempt(OutcomePermanent, elapsed)
	return nil, fmt.Errorf("%w: %w", ErrPermanent, statusErr)
}

func (s *Service) waitRate(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	now := s.clock.Now()
	r := s.limiter.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("rate limit burst exceeded")
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		r.CancelAt(s.clock.Now())
		return ctx.Err()
	case <-s.clock.After(delay):
		return nil
	}
}

// backoff returns the delay after the given failed attempt (1-based):
// InitialBackoff * Multiplier^(attempt-1), capped at MaxBackoff, jittered.
func (s *Service) backoff(attempt int) time.Duration {
	base := float64(s.settings.InitialBackoff) * math.Pow(s.settings.Multiplier, float64(attempt-1))
	maxDelay := float64(s.settings.MaxBackoff)
	if base > maxDelay {
		base = maxDelay
	}
	if s.settings.Jitter > 0 {
		base += base * s.settings.Jitter * (2*s.jitter() - 1)
	}
	if base < 0 {
		base = 0
	}
	if base > maxDelay {
		base = maxDelay
	}
	return time.Duration(base)
}

// retryAfter reads the Retry-After header of 429 and 503 responses
func retryAfter(resp *transport.Response, now time.Time) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return 0, false
	}
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d, true
		}
	}
	return 0, false
}
