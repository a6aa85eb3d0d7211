package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ProviderError wraps provider errors with status metadata.
type ProviderError struct {
	Status    int
	Temporary bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "backend error"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("backend error (status=%d)", e.Status)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UnavailableError reports that a backend could not serve a request after
// retries were exhausted. It fails the stage rather than a single tool.
type UnavailableError struct {
	Backend string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("backend %s unavailable: %v", e.Backend, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		if providerErr.Temporary {
			return true
		}
		if providerErr.Status == 429 || (providerErr.Status >= 500 && providerErr.Status <= 599) {
			return true
		}
	}
	return false
}

// RetryConfig bounds the retry loop around one backend call.
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// CallTimeout bounds each individual attempt; 0 disables.
	CallTimeout time.Duration
}

// DefaultRetryConfig matches the shipped retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  2,
		BaseBackoff: 200 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
		CallTimeout: 120 * time.Second,
	}
}

// Complete calls the backend with bounded retries on transient failures.
// Exhausted retries surface as *UnavailableError.
func Complete(ctx context.Context, b Backend, req Request, cfg RetryConfig) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		callCtx := ctx
		cancel := context.CancelFunc(func() {})
		if cfg.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
		}

		output, err := b.Complete(callCtx, req)
		cancel()
		if err == nil {
			return output, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !IsTransient(err) || attempt == cfg.MaxRetries {
			break
		}
		if err := sleepWithContext(ctx, computeBackoff(cfg.BaseBackoff, cfg.MaxBackoff, attempt)); err != nil {
			return "", err
		}
	}

	return "", &UnavailableError{Backend: b.Name(), Err: lastErr}
}

func computeBackoff(base, max time.Duration, attempt int) time.Duration {
	backoff := base
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= max {
			return max
		}
	}
	if backoff > max {
		return max
	}
	return backoff
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
