package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 10 * time.Minute
	limiterIdleTTL       = 30 * time.Minute
)

type keyedLimiter[K comparable] struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	limiters map[K]*limiterEntry
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// newKeyedLimiter creates a limiter set whose idle entries are swept until
// ctx is done.
func newKeyedLimiter[K comparable](ctx context.Context, rps float64, burst int) *keyedLimiter[K] {
	k := &keyedLimiter[K]{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[K]*limiterEntry),
	}

	go func() {
		ticker := time.NewTicker(limiterSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				k.sweep(time.Now().Add(-limiterIdleTTL))
			case <-ctx.Done():
				return
			}
		}
	}()

	return k
}

func (k *keyedLimiter[K]) allow(key K) bool {
	k.mu.Lock()
	e, ok := k.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(k.rps, k.burst)}
		k.limiters[key] = e
	}
	e.lastAccess = time.Now()
	k.mu.Unlock()

	return e.limiter.Allow()
}

func (k *keyedLimiter[K]) sweep(cutoff time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, e := range k.limiters {
		if e.lastAccess.Before(cutoff) {
			delete(k.limiters, key)
		}
	}
}

func tooManyRequests(w http.ResponseWriter) {
	writeProblem(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// RateLimitByIP applies per-client rate limiting ahead of authentication.
// Uses r.RemoteAddr, which chi's RealIP middleware rewrites.
func RateLimitByIP(ctx context.Context, requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	limiters := newKeyedLimiter[string](ctx, requestsPerSecond, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.allow(r.RemoteAddr) {
				tooManyRequests(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit applies per-tenant rate limiting. Exports and verifications scan
// whole ranges, so one tenant must not starve the others.
func RateLimit(ctx context.Context, requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	limiters := newKeyedLimiter[uuid.UUID](ctx, requestsPerSecond, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := TenantIDFromContext(r.Context())
			if !ok {
				// No tenant in context; skip rate limiting.
				next.ServeHTTP(w, r)
				return
			}

			if !limiters.allow(tenantID) {
				tooManyRequests(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
