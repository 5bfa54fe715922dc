// Package retry re-runs a whole capture attempt with exponential backoff.
//
// The capture core never retries: init failures are fatal to a session.
// Waiting for an unplugged camera is a caller policy and lives here.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config contains configuration for exponential backoff
type Config struct {
	MaxRetries int           // Maximum number of retries after the first attempt; < 0 retries forever
	Delay      time.Duration // Initial retry delay (default: 1 second)
	MaxDelay   time.Duration // Maximum retry delay cap (default: 30 seconds)
}

// DefaultConfig returns the default backoff configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries: 5,
		Delay:      1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// AttemptFunc runs one attempt. A nil return ends Run successfully.
type AttemptFunc func(ctx context.Context) error

// ErrMaxRetries is returned (wrapping the last attempt error) when the retry
// budget is exhausted
var ErrMaxRetries = errors.New("retry: max retries exceeded")

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; Run returns it immediately.
// Returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Run executes fn, retrying failures with exponential backoff.
//
// Backoff schedule with the default config:
//   - Retry 1: 1s
//   - Retry 2: 2s
//   - Retry 3: 4s
//   - Retry 4: 8s
//   - Retry 5: 16s
//   - After 5 failed retries: ErrMaxRetries
//
// Returns ctx.Err() if the context is cancelled before or between attempts.
func Run(ctx context.Context, fn AttemptFunc, cfg Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	retries := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("retry: context cancelled, giving up")
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			if retries > 0 {
				logger.Info("retry: attempt succeeded", "retries", retries)
			}
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if IsPermanent(err) {
			logger.Error("retry: permanent failure", "error", err)
			return err
		}

		logger.Error("retry: attempt failed", "error", err)

		retries++
		if cfg.MaxRetries >= 0 && retries > cfg.MaxRetries {
			return fmt.Errorf("%w (%d retries): %w", ErrMaxRetries, cfg.MaxRetries, err)
		}

		delay := Backoff(retries, cfg)
		logger.Warn("retry: retrying",
			"attempt", retries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.Info("retry: context cancelled during backoff")
			return ctx.Err()
		}
	}
}

// Backoff returns the delay before retry number attempt (1-based).
//
// Formula: delay = Delay * 2^(attempt-1), capped at MaxDelay.
func Backoff(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Past 2^30 the shift overflows a Duration long before any sane cap
	if attempt > 31 {
		attempt = 31
	}
	delay := cfg.Delay * time.Duration(1<<uint(attempt-1))

	if cfg.MaxDelay > 0 && (delay > cfg.MaxDelay || delay < 0) {
		delay = cfg.MaxDelay
	}
	return delay
}
