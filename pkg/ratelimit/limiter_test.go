package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildsite/pkg/logger"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestKeyedLimiterBurst(t *testing.T) {
	kl := NewKeyedLimiter(60, 2)
	kl.now = fixedClock(time.Unix(1000, 0))

	assert.True(t, kl.Allow("a"))
	assert.True(t, kl.Allow("a"))
	assert.False(t, kl.Allow("a"), "burst exhausted")
	assert.True(t, kl.Allow("b"), "keys are independent")
}

func TestKeyedLimiterRefill(t *testing.T) {
	start := time.Unix(1000, 0)
	kl := NewKeyedLimiter(60, 1)
	kl.now = fixedClock(start)

	require.True(t, kl.Allow("ip"))
	require.False(t, kl.Allow("ip"))
	assert.Equal(t, time.Second, kl.RetryAfter("ip"))

	kl.now = fixedClock(start.Add(time.Second))
	assert.Equal(t, time.Duration(0), kl.RetryAfter("ip"))
	assert.True(t, kl.Allow("ip"))
}

func TestKeyedLimiterDisabled(t *testing.T) {
	kl := NewKeyedLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, kl.Allow("ip"))
	}
	assert.Equal(t, time.Duration(0), kl.RetryAfter("ip"))
}

func TestKeyedLimiterSweepAndReset(t *testing.T) {
	start := time.Unix(1000, 0)
	kl := NewKeyedLimiter(10, 1)
	kl.now = fixedClock(start)
	kl.Allow("old")

	kl.now = fixedClock(start.Add(DefaultIdleTimeout))
	kl.Allow("fresh")
	assert.Equal(t, 2, kl.Len())

	assert.Equal(t, 1, kl.Sweep(start.Add(DefaultIdleTimeout+time.Second)))
	assert.Equal(t, 1, kl.Len())

	kl.Reset()
	assert.Equal(t, 0, kl.Len())
}

func TestKeyedLimiterWait(t *testing.T) {
	kl := NewKeyedLimiter(1, 1)
	require.NoError(t, kl.Wait(context.Background(), "ip"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, kl.Wait(ctx, "ip"))
}

func TestKeyedLimiterRunStopsOnCancel(t *testing.T) {
	kl := NewKeyedLimiter(10, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		kl.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMiddleware(t *testing.T) {
	e := echo.New()
	kl := NewKeyedLimiter(1, 1)
	log := logger.NewTestLogger()

	handler := Middleware(kl, "contact", RealIP, log)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		require.NoError(t, handler(e.NewContext(req, rec)))
		return rec
	}

	assert.Equal(t, http.StatusNoContent, serve().Code)

	rec := serve()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many requests, please try again later"}`, rec.Body.String())
	assert.True(t, log.HasMessage("rate limit reached, rejecting request"))
}
