// Package retry re-sends vendor requests that failed for transient reasons.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"syscall"
	"time"

	moderr "github.com/lizzyg/llmbridge/errors"
)

// Config holds retry configuration parameters. Zero attempts or delays take
// the defaults; a zero JitterRatio disables jitter.
type Config struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
	JitterRatio float64       `koanf:"jitter_ratio"`
}

// DefaultConfig returns the default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    3 * time.Second,
		JitterRatio: 0.25,
	}
}

// NoRetry performs each call exactly once.
func NoRetry() Config { return Config{MaxAttempts: 1} }

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.JitterRatio < 0 {
		c.JitterRatio = 0
	}
	return c
}

// Backoff returns the wait before retry number n (1-based), without jitter.
func (c Config) Backoff(n int) time.Duration {
	c = c.withDefaults()
	delay := c.BaseDelay
	for i := 1; i < n && delay < c.MaxDelay; i++ {
		delay *= 2
	}
	return min(delay, c.MaxDelay)
}

// Do calls fn until it succeeds, fails with a non-transient error, the
// attempts run out or ctx is done.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg = cfg.withDefaults()
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !IsTransient(err) || attempt >= cfg.MaxAttempts {
			return err
		}
		delay := cfg.Backoff(attempt)
		delay += time.Duration(rand.Float64() * cfg.JitterRatio * float64(delay))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// IsTransient reports whether err is worth retrying: 408, 429, 5xx (Anthropic
// reports overload as 529), a network timeout or a reset connection.
func IsTransient(err error) bool {
	if ae, ok := moderr.AsAPIError(err); ok {
		switch {
		case ae.StatusCode == http.StatusRequestTimeout, ae.StatusCode == http.StatusTooManyRequests:
			return true
		case ae.StatusCode >= 500:
			return true
		}
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
