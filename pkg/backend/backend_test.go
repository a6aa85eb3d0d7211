package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyBackend fails a fixed number of times before succeeding.
type flakyBackend struct {
	failures int
	err      error
	calls    int
}

func (b *flakyBackend) Name() string     { return "flaky" }
func (b *flakyBackend) Models() []string { return nil }

func (b *flakyBackend) Complete(ctx context.Context, req Request) (string, error) {
	b.calls++
	if b.calls <= b.failures {
		return "", b.err
	}
	return "ok", nil
}

func fastRetry(retries int) RetryConfig {
	return RetryConfig{MaxRetries: retries, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestCompleteRetriesTransient(t *testing.T) {
	b := &flakyBackend{failures: 2, err: &ProviderError{Status: 503}}

	output, err := Complete(context.Background(), b, Request{}, fastRetry(2))
	require.NoError(t, err)
	assert.Equal(t, "ok", output)
	assert.Equal(t, 3, b.calls)
}

func TestCompleteExhaustedRetries(t *testing.T) {
	b := &flakyBackend{failures: 10, err: &ProviderError{Status: 429}}

	_, err := Complete(context.Background(), b, Request{}, fastRetry(2))

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "flaky", unavailable.Backend)
	assert.Equal(t, 3, b.calls)
}

func TestCompleteDoesNotRetryPermanent(t *testing.T) {
	b := &flakyBackend{failures: 10, err: &ProviderError{Status: 401}}

	_, err := Complete(context.Background(), b, Request{}, fastRetry(2))

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 1, b.calls)
}

func TestCompleteHonorsCancellation(t *testing.T) {
	b := &flakyBackend{failures: 10, err: &ProviderError{Status: 503}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Complete(ctx, b, Request{}, fastRetry(5))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"rate limited", &ProviderError{Status: 429}, true},
		{"server error", &ProviderError{Status: 502}, true},
		{"temporary flag", &ProviderError{Temporary: true}, true},
		{"auth failure", &ProviderError{Status: 401}, false},
		{"bad request", &ProviderError{Status: 400}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestComputeBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	max := 500 * time.Millisecond

	assert.Equal(t, 100*time.Millisecond, computeBackoff(base, max, 0))
	assert.Equal(t, 200*time.Millisecond, computeBackoff(base, max, 1))
	assert.Equal(t, 400*time.Millisecond, computeBackoff(base, max, 2))
	assert.Equal(t, max, computeBackoff(base, max, 3))
	assert.Equal(t, max, computeBackoff(base, max, 10))
}

func TestScriptBackendPlaysInOrder(t *testing.T) {
	b := NewScriptBackend("one", "two")

	for _, want := range []string{"one", "two"} {
		output, err := b.Complete(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, want, output)
	}

	output, err := b.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Contains(t, output, "script exhausted")
	assert.Len(t, b.Requests, 3)
}
