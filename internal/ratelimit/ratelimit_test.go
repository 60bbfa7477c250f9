package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsar/internal/platform/logger"
	"dsar/internal/platform/middleware"
	"dsar/pkg/platform/circuit"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestMemoryStoreSlidingWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryStore().WithClock(clock.now)
	ctx := context.Background()

	for i := range 3 {
		res, err := store.Allow(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
		clock.t = clock.t.Add(10 * time.Second)
	}

	res, err := store.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 30, res.RetryAfter, "first request leaves the window at +60s")

	other, err := store.Allow(ctx, "other", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are counted separately")

	clock.t = clock.t.Add(31 * time.Second)
	res, err = store.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	store.Reset("k")
	res, err = store.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)
}

type failingStore struct{ calls int }

func (f *failingStore) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func serve(h http.Handler, operator string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	if operator != "" {
		req = req.WithContext(context.WithValue(req.Context(), middleware.ContextKeyClaims, &middleware.JWTClaims{Operator: operator}))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
}

func TestMiddleware(t *testing.T) {
	limit := Limit{Requests: 2, Window: time.Hour}

	t.Run("limits per operator", func(t *testing.T) {
		m := New(NewMemoryStore(), WithLogger(logger.Discard()))
		h := m.Limit("runs", limit)(okHandler())

		assert.Equal(t, http.StatusAccepted, serve(h, "alice").Code)
		rec := serve(h, "alice")
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

		rec = serve(h, "alice")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")

		assert.Equal(t, http.StatusAccepted, serve(h, "bob").Code)
		assert.Equal(t, http.StatusAccepted, serve(h, "").Code, "unauthenticated callers are keyed by address")
	})

	t.Run("disabled", func(t *testing.T) {
		m := New(NewMemoryStore(), WithDisabled(true))
		h := m.Limit("runs", Limit{Requests: 1, Window: time.Hour})(okHandler())
		for range 3 {
			assert.Equal(t, http.StatusAccepted, serve(h, "alice").Code)
		}
	})

	t.Run("zero limit is off", func(t *testing.T) {
		h := New(NewMemoryStore()).Limit("runs", Limit{})(okHandler())
		assert.Equal(t, http.StatusAccepted, serve(h, "alice").Code)
	})

	t.Run("store failure fails open", func(t *testing.T) {
		m := New(&failingStore{}, WithLogger(logger.Discard()))
		h := m.Limit("runs", limit)(okHandler())
		rec := serve(h, "alice")
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("open breaker uses the fallback", func(t *testing.T) {
		primary := &failingStore{}
		breaker := circuit.New("test", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))
		m := New(primary,
			WithFallback(NewMemoryStore()),
			WithBreaker(breaker),
			WithLogger(logger.Discard()),
		)
		h := m.Limit("runs", limit)(okHandler())

		rec := serve(h, "alice")
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "degraded", rec.Header().Get("X-RateLimit-Status"))
		assert.True(t, breaker.IsOpen())

		serve(h, "alice")
		assert.Equal(t, 1, primary.calls, "primary is skipped while the circuit is open")
		assert.Equal(t, http.StatusTooManyRequests, serve(h, "alice").Code)
	})
}

func TestKey(t *testing.T) {
	assert.Equal(t, "dsar:ratelimit:runs:operator:alice", Key("runs", "operator:alice"))
}
