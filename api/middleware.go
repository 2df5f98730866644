package api

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (a *API) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware applies a per-client token bucket keyed by remote
// address.
func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		a.rateLimitersMu.Lock()
		entry, ok := a.rateLimiters[ip]
		if !ok {
			entry = &rateLimiterEntry{
				limiter: rate.NewLimiter(
					rate.Limit(a.config.API.RateLimit.RequestsPerSecond),
					a.config.API.RateLimit.Burst,
				),
			}
			a.rateLimiters[ip] = entry
		}
		entry.lastSeen = time.Now()
		allowed := entry.limiter.Allow()
		a.rateLimitersMu.Unlock()

		if !allowed {
			a.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cleanupRateLimiters drops per-client limiters idle for over ten minutes.
func (a *API) cleanupRateLimiters() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			a.rateLimitersMu.Lock()
			for ip, entry := range a.rateLimiters {
				if entry.lastSeen.Before(cutoff) {
					delete(a.rateLimiters, ip)
				}
			}
			a.rateLimitersMu.Unlock()
		}
	}
}
