// Package retry holds the one retry policy used at the persistence boundary.
// Call sites never loop on their own; they hand the operation to Policy.Do.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrRetriesExhausted is returned when every attempt failed with a retryable error.
var ErrRetriesExhausted = errors.New("retry: attempts exhausted")

// Classifier decides whether an error is worth another attempt.
type Classifier func(error) bool

// Option configures Policy.
type Option func(*Policy)

// Policy is an exponential backoff schedule with a fixed attempt cap.
type Policy struct {
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	jitter          float64
	retryable       Classifier
	onRetry         func(attempt int, err error, wait time.Duration)
}

// New builds a policy. Defaults: 4 attempts, 50ms doubling up to 1s, 20% jitter,
// and no error is retryable until WithClassifier says otherwise.
func New(opts ...Option) *Policy {
	p := &Policy{
		maxAttempts:     4,
		initialInterval: 50 * time.Millisecond,
		maxInterval:     time.Second,
		multiplier:      2,
		jitter:          0.2,
		retryable:       func(error) bool { return false },
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxAttempts < 1 {
		p.maxAttempts = 1
	}
	return p
}

func WithMaxAttempts(n int) Option {
	return func(p *Policy) { p.maxAttempts = n }
}

func WithIntervals(initial, max time.Duration) Option {
	return func(p *Policy) {
		p.initialInterval = initial
		p.maxInterval = max
	}
}

func WithMultiplier(m float64) Option {
	return func(p *Policy) { p.multiplier = m }
}

// WithJitter sets the randomization factor (0 disables jitter).
func WithJitter(f float64) Option {
	return func(p *Policy) { p.jitter = f }
}

func WithClassifier(c Classifier) Option {
	return func(p *Policy) {
		if c != nil {
			p.retryable = c
		}
	}
}

// WithNotify registers a callback fired before each wait.
func WithNotify(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(p *Policy) { p.onRetry = fn }
}

// MaxAttempts reports the attempt cap.
func (p *Policy) MaxAttempts() int { return p.maxAttempts }

func (p *Policy) schedule(ctx context.Context) backoff.BackOffContext {
	// WithMaxRetries treats 0 as unlimited
	if p.maxAttempts == 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	eb.MaxInterval = p.maxInterval
	eb.Multiplier = p.multiplier
	eb.RandomizationFactor = p.jitter
	eb.MaxElapsedTime = 0 // bounded by attempts, not wall time
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.maxAttempts-1)), ctx)
}

// Do runs op until it succeeds, returns a non-retryable error, the context ends,
// or the attempt cap is reached. Exhaustion wraps both ErrRetriesExhausted and the last error.
func (p *Policy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := 0
	var lastRetryable error

	wrapped := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !p.retryable(err) {
			return backoff.Permanent(err)
		}
		lastRetryable = err
		return err
	}

	notify := func(err error, wait time.Duration) {
		if p.onRetry != nil {
			p.onRetry(attempts, err, wait)
		}
	}

	err := backoff.RetryNotify(wrapped, p.schedule(ctx), notify)
	if err == nil {
		return nil
	}
	if lastRetryable != nil && errors.Is(err, lastRetryable) && attempts >= p.maxAttempts {
		return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
	}
	return err
}
