package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"SaveBox/internal/api/handlers"
)

// MsgRateLimited is returned to clients that exceed their request budget.
const MsgRateLimited = "요청이 너무 많습니다. 잠시 후 다시 시도해 주세요."

// RateLimiter is an in-memory per-client token bucket limiter.
// Each client may burst up to the full budget and refills evenly over the window.
type RateLimiter struct {
	clients    map[string]*clientLimit
	now        func() time.Time
	limit      rate.Limit
	burst      int
	idleTTL    time.Duration
	trustProxy bool
	mu         sync.Mutex
}

type clientLimit struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing requests per window for each client.
// When trustProxy is set the client is identified by X-Forwarded-For / X-Real-IP,
// which is only safe behind a reverse proxy that overwrites those headers.
func NewRateLimiter(requests int, window time.Duration, trustProxy bool) *RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		clients:    make(map[string]*clientLimit),
		limit:      rate.Every(window / time.Duration(requests)),
		burst:      requests,
		idleTTL:    window,
		trustProxy: trustProxy,
		now:        time.Now,
	}
}

// Middleware returns a rate limiting middleware
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := rl.clientIP(r)

		if !rl.allow(clientID) {
			slog.Debug("[RATE-LIMIT] request rejected",
				"client", clientID,
				"path", r.URL.Path,
			)
			w.Header().Set("Retry-After", "60")
			handlers.WriteError(w, http.StatusTooManyRequests, MsgRateLimited)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow reports whether clientID may make a request now.
func (rl *RateLimiter) allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, exists := rl.clients[clientID]
	if !exists {
		client = &clientLimit{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[clientID] = client
	}
	client.lastSeen = now

	return client.limiter.AllowN(now, 1)
}

// StartCleanup drops idle clients every interval until ctx is cancelled.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = rl.idleTTL
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := rl.cleanup(); removed > 0 {
					slog.Debug("[RATE-LIMIT] idle clients removed", "count", removed)
				}
			}
		}
	}()
}

// cleanup removes clients idle for longer than idleTTL. A client idle that
// long has refilled its bucket, so forgetting it changes nothing.
func (rl *RateLimiter) cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTTL)
	removed := 0
	for clientID, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, clientID)
			removed++
		}
	}
	return removed
}

// clientIP extracts the client IP from the request
func (rl *RateLimiter) clientIP(r *http.Request) string {
	if rl.trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
