package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// rateLimiter is a per-IP fixed-window limiter in front of every endpoint.
// It is a transport-level guard against floods; the protocol's per-subject
// check-in rate window is enforced separately in the ledger.
type rateLimiter struct {
	mu      sync.Mutex
	callers map[string]*caller
	rate    int
	window  time.Duration
}

// caller tracks request counts within the current window for a single IP.
type caller struct {
	count       int
	windowStart time.Time
}

// newRateLimiter creates a limiter allowing rate requests per window. A
// background goroutine drops stale entries once per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		callers: make(map[string]*caller),
		rate:    rate,
		window:  window,
	}
	go func() {
		for {
			time.Sleep(window)
			rl.cleanup()
		}
	}()
	return rl
}

// allow returns true if the IP has not exceeded its rate limit.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	c, exists := rl.callers[ip]
	if !exists || now.Sub(c.windowStart) > rl.window {
		rl.callers[ip] = &caller{count: 1, windowStart: now}
		return true
	}
	c.count++
	return c.count <= rl.rate
}

// cleanup removes entries whose window has expired.
func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for ip, c := range rl.callers {
		if now.Sub(c.windowStart) > rl.window {
			delete(rl.callers, ip)
		}
	}
}

// getIP extracts the client IP from a request, respecting X-Forwarded-For
// for proxied deployments.
func getIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
