// Package retry runs an operation again after transient failures, waiting an
// exponentially growing, jittered delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Config configures retry behavior. Zero fields take the defaults below.
type Config struct {
	// MaxRetries is the number of attempts after the first one (default: 3).
	// Negative values mean no retries.
	MaxRetries int

	// InitialBackoff is the delay before the first retry (default: 100ms).
	InitialBackoff time.Duration

	// MaxBackoff caps any single delay (default: 5s).
	MaxBackoff time.Duration

	// Multiplier grows the delay after each retry (default: 2).
	Multiplier float64

	// Jitter spreads each delay by +/- this fraction, between 0 and 1 (default: 0.1).
	Jitter float64

	// IsRetryable decides whether an error is worth another attempt.
	// Defaults to DefaultIsRetryable.
	IsRetryable func(error) bool
}

// Default values applied to zero Config fields.
const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
	DefaultMultiplier     = 2.0
	DefaultJitter         = 0.1
)

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

// Sentinel errors, matched by *Error via errors.Is.
var (
	// ErrNotRetryable means the operation failed with a permanent error.
	ErrNotRetryable = errors.New("retry: error is not retryable")

	// ErrMaxRetries means every attempt failed.
	ErrMaxRetries = errors.New("retry: max retries exceeded")

	// ErrContextCanceled means the context ended between attempts.
	ErrContextCanceled = errors.New("retry: context canceled")
)

// Error reports why Do gave up.
type Error struct {
	// Cause is the error from the last attempt.
	Cause error
	// Attempts is how many times the operation ran.
	Attempts int
	// Reason is ErrNotRetryable, ErrMaxRetries or ErrContextCanceled.
	Reason error
}

func (e *Error) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempt(s) (%v): %v", e.Attempts, e.Reason, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	return e.Reason == target
}

// Do runs fn until it succeeds, fails permanently, runs out of attempts, or
// ctx ends. A context that is already done before the first attempt yields
// ctx.Err() without calling fn.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	if err := ctx.Err(); err != nil {
		return err
	}

	attempts := 0
	for {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !cfg.IsRetryable(err) {
			return &Error{Cause: err, Attempts: attempts, Reason: ErrNotRetryable}
		}
		if attempts > cfg.MaxRetries {
			return &Error{Cause: err, Attempts: attempts, Reason: ErrMaxRetries}
		}

		select {
		case <-ctx.Done():
			return &Error{Cause: err, Attempts: attempts, Reason: ErrContextCanceled}
		case <-time.After(cfg.backoff(attempts - 1)):
		}
	}
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Attempts extracts the attempt count from an error returned by Do.
// Errors that did not come from a retry loop count as one attempt.
func Attempts(err error) int {
	var re *Error
	if errors.As(err, &re) {
		return re.Attempts
	}
	return 1
}

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.Multiplier <= 0 {
		c.Multiplier = DefaultMultiplier
	}
	if c.Jitter == 0 {
		c.Jitter = DefaultJitter
	}
	c.Jitter = min(max(c.Jitter, 0), 1)
	if c.IsRetryable == nil {
		c.IsRetryable = DefaultIsRetryable
	}
	return c
}

// backoff returns the delay after the given zero-based retry.
func (c Config) backoff(retry int) time.Duration {
	d := float64(c.InitialBackoff) * math.Pow(c.Multiplier, float64(retry))
	d = math.Min(d, float64(c.MaxBackoff))
	if c.Jitter > 0 {
		spread := d * c.Jitter
		d += (rand.Float64()*2 - 1) * spread
	}
	return time.Duration(d)
}

// DefaultIsRetryable retries everything except errors marked Permanent.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var p *permanentError
	return !errors.As(err, &p)
}

// Permanent marks err so that DefaultIsRetryable stops retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
