package flashlib

import (
	"context"
	"math"
	"time"
)

// RetryConfig holds backoff behavior for SendWithRetry. Chunk commands back
// off further than control commands because a failed chunk ack is more likely
// a real device stall than line noise.
type RetryConfig struct {
	// MaxAttempts is the default attempt budget when the caller passes 0.
	MaxAttempts int
	// ControlBackoff is the base delay between control command attempts.
	ControlBackoff time.Duration
	// ChunkBackoff is the base delay between SEND_CHUNK attempts.
	ChunkBackoff time.Duration
	// BackoffFactor is the exponential multiplier applied per attempt.
	BackoffFactor float64
	// MaxBackoff caps the computed delay.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns a RetryConfig with the stock tunables.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    DEF_MAX_ATTEMPTS,
		ControlBackoff: DEF_CONTROL_BACKOFF,
		ChunkBackoff:   DEF_CHUNK_BACKOFF,
		BackoffFactor:  DEF_BACKOFF_FACTOR,
		MaxBackoff:     DEF_MAX_BACKOFF,
	}
}

// Backoff computes the delay before the given 1-based retry attempt.
func (c *RetryConfig) Backoff(cmd Command, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := c.ControlBackoff
	if cmd.chunked() {
		base = c.ChunkBackoff
	}
	factor := c.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	delay := float64(base) * math.Pow(factor, float64(attempt-1))
	if c.MaxBackoff > 0 && delay > float64(c.MaxBackoff) {
		delay = float64(c.MaxBackoff)
	}
	return time.Duration(delay)
}

// Wait blocks until the backoff delay for the given attempt has elapsed or
// the context is canceled.
func (c *RetryConfig) Wait(ctx context.Context, cmd Command, attempt int) error {
	t := time.NewTimer(c.Backoff(cmd, attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
