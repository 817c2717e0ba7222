package traversal

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/messis/internal/common"
	"github.com/ternarybob/messis/internal/models"
	"github.com/ternarybob/messis/internal/postback"
)

// RetryPolicy defines retry behavior with exponential backoff
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// NewRetryPolicy creates a default retry policy
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicyFromConfig builds a policy from the harvest settings.
func RetryPolicyFromConfig(config common.HarvestConfig) *RetryPolicy {
	policy := NewRetryPolicy()
	if config.RetryAttempts > 0 {
		policy.MaxAttempts = config.RetryAttempts
	}
	if config.InitialBackoff > 0 {
		policy.InitialBackoff = config.InitialBackoff
	}
	if config.MaxBackoff > 0 {
		policy.MaxBackoff = config.MaxBackoff
	}
	return policy
}

// ShouldRetry checks if an attempt should be retried based on attempt count
// and error class. Sequencing violations are never retried: retrying them
// would hide the bug.
func (p *RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return IsRetryable(err)
}

// CalculateBackoff calculates the backoff duration with exponential backoff and jitter
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	// Add jitter (±25%)
	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	backoff += jitter

	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}

// Execute wraps a function with a retry loop. The function is retried on
// transient failures only; the last error is returned once attempts are
// exhausted.
func (p *RetryPolicy) Execute(ctx context.Context, logger arbor.ILogger, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !p.ShouldRetry(attempt, lastErr) {
			logger.Debug().
				Int("attempt", attempt+1).
				Err(lastErr).
				Msg("Non-retryable error, failing immediately")
			return lastErr
		}

		if attempt < p.MaxAttempts-1 {
			backoff := p.CalculateBackoff(attempt)
			logger.Debug().
				Int("attempt", attempt+1).
				Err(lastErr).
				Dur("backoff", backoff).
				Msg("Retrying after backoff")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				// Continue to next attempt
			}
		}
	}

	logger.Warn().
		Int("max_attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("All retry attempts exhausted")

	return lastErr
}

// IsRetryable classifies an error as transient (network trouble, server-side
// status, stripped-state response) or permanent (sequencing violation,
// cancellation, client-side status).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Sequencing violations are programming errors, never transient.
	if errors.Is(err, models.ErrMissingToken) || errors.Is(err, models.ErrStaleToken) {
		return false
	}

	// Cancellation propagates, it is not a failure to retry through.
	if errors.Is(err, context.Canceled) {
		return false
	}

	// A response missing its state fields is usually a transient error page.
	if errors.Is(err, models.ErrMalformedResponse) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var httpErr *postback.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return true
}
