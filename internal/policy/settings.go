package policy

import (
	"fmt"
	"time"
)

// Settings configure a Service. They are immutable once the service is built.
type Settings struct {
	// Concurrency is the maximum number of requests in flight
	Concurrency int
	// Timeout bounds every single attempt
	Timeout time.Duration
	// RetryAttempts is the number of retries after the first attempt
	RetryAttempts int

	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
	// Jitter is the fraction of the delay randomized in both directions (0..1)
	Jitter float64

	// RateLimitNum requests are allowed per RateLimitDuration; 0 disables
	RateLimitNum      int
	RateLimitDuration time.Duration
}

// DefaultSettings returns the request defaults used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		Concurrency:       5,
		Timeout:           60 * time.Second,
		RetryAttempts:     5,
		InitialBackoff:    time.Second,
		Multiplier:        2,
		MaxBackoff:        30 * time.Second,
		Jitter:            0.2,
		RateLimitNum:      0,
		RateLimitDuration: time.Second,
	}
}

// Validate checks the settings for consistency
func (s Settings) Validate() error {
	if s.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", s.Concurrency)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", s.Timeout)
	}
	if s.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative, got %d", s.RetryAttempts)
	}
	if s.InitialBackoff <= 0 {
		return fmt.Errorf("initial backoff must be positive, got %v", s.InitialBackoff)
	}
	if s.Multiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1, got %v", s.Multiplier)
	}
	if s.MaxBackoff < s.InitialBackoff {
		return fmt.Errorf("max backoff (%v) must not be less than initial backoff (%v)", s.MaxBackoff, s.InitialBackoff)
	}
	if s.Jitter < 0 || s.Jitter > 1 {
		return fmt.Errorf("jitter must be between 0 and 1, got %v", s.Jitter)
	}
	if s.RateLimitNum < 0 {
		return fmt.Errorf("rate limit cannot be negative, got %d", s.RateLimitNum)
	}
	if s.RateLimitNum > 0 && s.RateLimitDuration <= 0 {
		return fmt.Errorf("rate limit duration must be positive when a rate limit is set")
	}
	return nil
}
