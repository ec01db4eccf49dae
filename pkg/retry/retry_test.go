package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	errs "buildsite/pkg/errors"
	"buildsite/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt     int
		expected    time.Duration
		description string
	}{
		{0, 0, "No failed attempt yet"},
		{1, 100 * time.Millisecond, "First attempt"},
		{2, 200 * time.Millisecond, "Second attempt"},
		{3, 400 * time.Millisecond, "Third attempt"},
		{4, 800 * time.Millisecond, "Fourth attempt"},
		{5, 1 * time.Second, "Fifth attempt (capped at max)"},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			assert.Equal(t, test.expected, backoff.NextDelay(test.attempt))
		})
	}
}

func TestExponentialBackoffUncapped(t *testing.T) {
	backoff := DefaultExponentialBackoff()

	assert.Equal(t, 1*time.Second, backoff.NextDelay(1))
	assert.Equal(t, 2*time.Second, backoff.NextDelay(2))
	assert.Equal(t, 64*time.Second, backoff.NextDelay(7))
}

func TestExponentialBackoffWithJitter(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	for i := 0; i < 20; i++ {
		delay := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, delay, 140*time.Millisecond)
		assert.LessOrEqual(t, delay, 260*time.Millisecond)
	}
}

func TestConstantBackoff(t *testing.T) {
	backoff := &ConstantBackoff{Delay: 50 * time.Millisecond}

	assert.Equal(t, time.Duration(0), backoff.NextDelay(0))
	assert.Equal(t, 50*time.Millisecond, backoff.NextDelay(1))
	assert.Equal(t, 50*time.Millisecond, backoff.NextDelay(10))
}

func TestWait(t *testing.T) {
	t.Run("completes after delay", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, Wait(context.Background(), 20*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("returns cause when cancelled", func(t *testing.T) {
		cause := errors.New("shutting down")
		ctx, cancel := context.WithCancelCause(context.Background())
		cancel(cause)

		err := Wait(ctx, time.Hour)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("zero delay on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, Wait(ctx, 0), context.Canceled)
	})
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
		ok       bool
	}{
		{"seconds", "5", 5 * time.Second, true},
		{"padded", " 2 ", 2 * time.Second, true},
		{"zero", "0", 0, true},
		{"missing", "", 0, false},
		{"http date", "Wed, 21 Oct 2015 07:28:00 GMT", 0, false},
		{"negative", "-3", 0, false},
		{"overflows duration", "9300000000", 0, false},
		{"overflows int", "99999999999999999999", 0, false},
		{"largest duration", "9223372036", 9223372036 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.value != "" {
				header.Set("Retry-After", tt.value)
			}
			delay, ok := RetryAfter(header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, delay)
		})
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	op := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}

	var delays []time.Duration
	cfg := &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			delays = append(delays, delay)
		},
		Logger: logger.NewTestLogger(),
	}

	require.NoError(t, Do(context.Background(), op, cfg))
	assert.Equal(t, 3, attempts)
	assert.Len(t, delays, 2)
}

func TestDoMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	persistent := errors.New("persistent error")
	op := func(ctx context.Context) error {
		attempts++
		return persistent
	}

	log := logger.NewTestLogger()
	cfg := &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Logger:      log,
	}

	err := Do(context.Background(), op, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistent)
	assert.Equal(t, 3, attempts)
	assert.Len(t, log.GetMessagesByLevel("WARN"), 2)
	assert.True(t, log.HasMessage("max retry attempts exceeded"))
}

func TestDoNonRetryableError(t *testing.T) {
	attempts := 0
	parseErr := errs.NewParseFailure(200, errors.New("unexpected end of JSON input"))
	op := func(ctx context.Context) error {
		attempts++
		return parseErr
	}

	err := Do(context.Background(), op, &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
	})

	assert.Same(t, parseErr, err)
	assert.Equal(t, 1, attempts)
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	op := func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("temporary error")
	}

	err := Do(ctx, op, &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Hour},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDefaultRetryIf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), true},
		{"context cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"timeout", errs.NewTimeout("http://backend", nil), true},
		{"network", errs.NewNetworkUnreachable("http://backend", nil), true},
		{"retryable status", errs.NewHTTPStatus(503, ""), true},
		{"terminal status", errs.NewHTTPStatus(404, ""), false},
		{"parse failure", errs.NewParseFailure(200, errors.New("bad")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DefaultRetryIf(tt.err))
		})
	}
}
