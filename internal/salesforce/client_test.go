package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTokenServer(t *testing.T, calls *int64, instanceURL string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/services/oauth2/token", r.URL.Path)
		atomic.AddInt64(calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh-token",
			"instance_url": instanceURL,
			"expires_in":   1800,
		})
	}))
}

func TestEnsureToken_NotConfigured(t *testing.T) {
	c := NewClient(Config{LoginURL: "http://localhost:1"}, zap.NewNop())

	_, _, err := c.ensureToken(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestEnsureToken_PasswordGrant(t *testing.T) {
	var calls int64
	srv := newTokenServer(t, &calls, "https://org.example.com")
	defer srv.Close()

	c := NewClient(Config{
		LoginURL: srv.URL,
		BaseURL:  "https://configured.example.com",
		Username: "svc@example.com",
		Password: "secret",
	}, zap.NewNop())

	token, baseURL, err := c.ensureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	// The token response's routing URL wins over the configured base.
	assert.Equal(t, "https://org.example.com", baseURL)
	assert.EqualValues(t, 1, calls)
}

func TestEnsureToken_RefreshMargin(t *testing.T) {
	var calls int64
	srv := newTokenServer(t, &calls, "")
	defer srv.Close()

	expiry := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewClient(Config{
		LoginURL: srv.URL,
		BaseURL:  "https://org.example.com",
		Username: "svc@example.com",
		Password: "secret",
	}, zap.NewNop())
	c.token = &accessToken{value: "held-token", baseURL: "https://org.example.com", expires: expiry}

	// 61s before expiry: still inside the safe window, no refresh.
	c.now = func() time.Time { return expiry.Add(-61 * time.Second) }
	token, _, err := c.ensureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "held-token", token)
	assert.EqualValues(t, 0, calls)

	// 59s before expiry: inside the margin, blocking refresh first.
	c.now = func() time.Time { return expiry.Add(-59 * time.Second) }
	token, _, err = c.ensureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.EqualValues(t, 1, calls)

	// Immediate second request reuses the fresh token, no double refresh.
	token, _, err = c.ensureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.EqualValues(t, 1, calls)
}

func TestEnsureToken_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{
		LoginURL: srv.URL,
		Username: "svc@example.com",
		Password: "wrong",
	}, zap.NewNop())

	_, _, err := c.ensureToken(context.Background())
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestFetchBinary_DefaultContentType(t *testing.T) {
	org := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		w.Header()["Content-Type"] = nil // suppress Go's sniffing header
		_, _ = w.Write([]byte{0x1, 0x2})
	}))
	defer org.Close()

	c := newTestClient(org.URL)
	data, contentType, err := c.FetchBinary(context.Background(), "/some/binary")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1, 0x2}, data)
	assert.Equal(t, "application/octet-stream", contentType)
}

// newTestClient returns a client with a pre-held long-lived token so tests
// exercise request paths without a token endpoint.
func newTestClient(orgURL string) *Client {
	c := NewClient(Config{
		SiteURL:    "https://shop.example.com",
		APIVersion: "v60.0",
	}, zap.NewNop())
	c.token = &accessToken{value: "t", baseURL: orgURL, expires: time.Now().Add(time.Hour)}
	return c
}
