package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/genialityco/gen-live-web-sub000/internal/platform/metrics"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/middleware/metadata"
	"github.com/genialityco/gen-live-web-sub000/pkg/requestcontext"
)

const limiterIdleTTL = 3 * time.Minute

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

// ByDevice charges the device cookie, falling back to the client IP.
func ByDevice(r *http.Request) string {
	if device := requestcontext.DeviceID(r.Context()); !device.IsNil() {
		return "device:" + device.String()
	}
	return "ip:" + metadata.ClientIPFromRequest(r)
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	key     KeyFunc
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type RateLimiterOption func(*RateLimiter)

func WithRateLimitKey(key KeyFunc) RateLimiterOption {
	return func(l *RateLimiter) {
		if key != nil {
			l.key = key
		}
	}
}

func WithRateLimitMetrics(m *metrics.Metrics) RateLimiterOption {
	return func(l *RateLimiter) {
		l.metrics = m
	}
}

func WithRateLimitLogger(logger *slog.Logger) RateLimiterOption {
	return func(l *RateLimiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRateLimiter allows perMinute requests per key with the given burst.
func NewRateLimiter(perMinute, burst int, opts ...RateLimiterOption) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &RateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		key:     ByDevice,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = l.now()
	return e.limiter
}

// Sweep drops buckets idle for longer than the idle TTL.
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-limiterIdleTTL)
	removed := 0
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps idle buckets every minute until ctx is cancelled.
func (l *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Middleware rejects requests over the limit with 429 and a Retry-After hint.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reservation := l.limiter(l.key(r)).ReserveN(l.now(), 1)
		if !reservation.OK() {
			l.reject(w, r, time.Minute)
			return
		}
		if delay := reservation.DelayFrom(l.now()); delay > 0 {
			reservation.CancelAt(l.now())
			l.reject(w, r, delay)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) reject(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	ctx := r.Context()
	l.metrics.IncrementRateLimited(routePattern(r))
	l.logger.WarnContext(ctx, "rate limit exceeded",
		"path", r.URL.Path,
		"request_id", GetRequestID(ctx),
	)
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"too_many_requests","error_description":"too many attempts, try again shortly"}`))
}
