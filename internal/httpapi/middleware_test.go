package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCORSMiddleware(t *testing.T) {
	mw := corsMiddleware([]string{"http://localhost:3000"})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("allowed origin gets headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	l := newRateLimiter(3)
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("10.0.0.1"), "request %d within budget", i)
	}
	assert.False(t, l.allow("10.0.0.1"), "fourth request exceeds the budget")

	// Other clients have their own budget.
	assert.True(t, l.allow("10.0.0.2"))

	// The window slides: a minute later the budget is back.
	clock = clock.Add(61 * time.Second)
	assert.True(t, l.allow("10.0.0.1"))
}

func TestRateLimiter_BudgetSharedAcrossConnections(t *testing.T) {
	l := newRateLimiter(2)
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	handler := l.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Each request arrives on a fresh connection with a new ephemeral port;
	// the host still shares one budget.
	codes := make([]int, 0, 3)
	for _, port := range []string{"50001", "50002", "50003"} {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "10.0.0.1:" + port
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_PrunesIdleClients(t *testing.T) {
	l := newRateLimiter(10)
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	for _, id := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		assert.True(t, l.allow(id))
	}
	assert.Len(t, l.requests, 3)

	clock = clock.Add(2 * time.Minute)
	assert.True(t, l.allow("10.0.0.9"))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.requests, 1, "idle clients must be evicted")
	assert.Contains(t, l.requests, "10.0.0.9")
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.RemoteAddr = "10.0.0.1:51234"
	assert.Equal(t, "10.0.0.1", clientKey(req))

	withSession := httptest.NewRequest(http.MethodGet, "/api/cart?session_id=sess-1", nil)
	withSession.RemoteAddr = "10.0.0.1:51234"
	assert.Equal(t, "sess-1", clientKey(withSession), "session id wins over the address")
}

func TestRateLimiter_DisabledWhenZero(t *testing.T) {
	l := newRateLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.allow("10.0.0.1:1234"))
	}
}
