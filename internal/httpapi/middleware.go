package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// corsMiddleware allows the configured widget origins. The widget is served
// from a different origin than the gateway in every deployment.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter is a per-client sliding-window limiter. Window state lives in
// process; multiple gateway instances each enforce their own budget.
type rateLimiter struct {
	mu        sync.Mutex
	perMinute int
	requests  map[string][]time.Time
	lastPrune time.Time
	now       func() time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		perMinute: perMinute,
		requests:  make(map[string][]time.Time),
		now:       time.Now,
	}
}

func (l *rateLimiter) allow(clientID string) bool {
	if l.perMinute <= 0 {
		return true
	}
	now := l.now()
	cutoff := now.Add(-time.Minute)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) >= time.Minute {
		l.prune(cutoff)
		l.lastPrune = now
	}

	recent := l.requests[clientID][:0]
	for _, t := range l.requests[clientID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= l.perMinute {
		l.requests[clientID] = recent
		return false
	}
	l.requests[clientID] = append(recent, now)
	return true
}

// prune drops clients whose whole window has aged out, so the map does not
// grow with every client ever seen. Called under l.mu.
func (l *rateLimiter) prune(cutoff time.Time) {
	for id, times := range l.requests {
		idle := true
		for _, t := range times {
			if t.After(cutoff) {
				idle = false
				break
			}
		}
		if idle {
			delete(l.requests, id)
		}
	}
}

// clientKey identifies the caller for rate limiting: the widget session id
// when the request carries one, else the remote IP. The ephemeral port is
// stripped so every connection from one host shares a budget.
func clientKey(r *http.Request) string {
	if sid := r.URL.Query().Get("session_id"); sid != "" {
		return sid
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientKey(r)) {
			respondError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
