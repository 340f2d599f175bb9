package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds the parameters for the retry strategy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Logger      zerolog.Logger

	// Sleep is swappable so tests can observe delays without waiting.
	// Nil means time.Sleep.
	Sleep func(time.Duration)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do stops immediately instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryAfterHinter lets an error suggest a server-provided wait, e.g. from an
// HTTP Retry-After header. The hint only ever lengthens the backoff.
type RetryAfterHinter interface {
	RetryAfterHint() (time.Duration, bool)
}

// Do executes fn with exponential back-off retry logic. Attempt delays grow
// by Multiplier each round; errors wrapped with Permanent abort the loop at
// once.
func (r *RetryConfig) Do(operationName string, fn func() error) error {
	sleep := r.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	multiplier := r.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	var lastErr error
	delay := r.BaseDelay

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt < r.MaxAttempts {
			wait := delay
			var hinter RetryAfterHinter
			if errors.As(lastErr, &hinter) {
				if hint, ok := hinter.RetryAfterHint(); ok && hint > wait {
					wait = hint
				}
			}

			r.Logger.Warn().
				Str("operation", operationName).
				Int("attempt", attempt).
				Int("max_attempts", r.MaxAttempts).
				Dur("delay", wait).
				Err(lastErr).
				Msg("retrying")

			sleep(wait)
			delay = time.Duration(float64(delay) * multiplier)
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, r.MaxAttempts, lastErr)
}
