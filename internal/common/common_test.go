package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionNumber(t *testing.T) {
	tests := []struct {
		version string
		want    int
		wantOK  bool
	}{
		{"v12", 12, true},
		{"v9", 9, true},
		{"prompt-3b", 3, true},
		{"1.2.10", 10, true},
		{"legacy", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			got, ok := VersionNumber(tt.version)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFatalQueryError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("fetch: %w", &FatalQueryError{Op: "count", Table: "comparisons", Err: cause})

	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "count comparisons")
	assert.False(t, IsFatal(cause))
}

func TestPartialFetchError_Message(t *testing.T) {
	err := &PartialFetchError{Warnings: []PageWarning{
		{Table: "comparisons", Page: 2, Offset: 1000, Limit: 500, Reason: "timeout"},
	}}

	assert.Contains(t, err.Error(), "1 page(s) failed")
	assert.Contains(t, err.Error(), "comparisons page 2 (rows 1000-1499): timeout")
}

func TestWithRetry(t *testing.T) {
	opts := RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("retries retryable errors until success", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &RetryableError{Err: errors.New("busy"), Retryable: true}
			}
			return nil
		}, opts)

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on non-retryable errors", func(t *testing.T) {
		calls := 0
		boom := errors.New("bad request")
		err := WithRetry(context.Background(), func() error {
			calls++
			return boom
		}, opts)

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return ErrStoreRateLimit
		}, opts)

		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.ErrorIs(t, err, ErrStoreRateLimit)
		assert.Equal(t, 3, calls)
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"store rate limit", fmt.Errorf("%w: slow down", ErrStoreRateLimit), true},
		{"deadline", fmt.Errorf("count: %w", context.DeadlineExceeded), true},
		{"marked retryable", &RetryableError{Err: errors.New("busy"), Retryable: true}, true},
		{"marked permanent", &RetryableError{Err: errors.New("gone"), Retryable: false}, false},
		{"canceled", context.Canceled, false},
		{"fatal query", &FatalQueryError{Op: "count", Table: "comparisons", Err: errors.New("boom")}, false},
		{"plain", errors.New("bad request"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestSetupLoggerTo(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	require.NoError(t, SetupLoggerTo(&buf, slog.LevelInfo, "json"))
	slog.Info("hello", "table", "comparisons")
	assert.Contains(t, buf.String(), `"table":"comparisons"`)

	assert.ErrorIs(t, SetupLoggerTo(&buf, slog.LevelInfo, "xml"), ErrInvalidConfig)

	level, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
	_, err = ParseLevel("loud")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
