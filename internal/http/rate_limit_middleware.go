package httpx

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const rateLimiterSweepInterval = 5 * time.Minute

// RateLimiter decides whether a request identified by key may proceed.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	remaining int
	resetAt   time.Time
}

// memoryRateLimiter keeps one token bucket per key, refilled at limit/window.
type memoryRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	window   time.Duration
	lastSeen time.Time
}

// NewMemoryRateLimiter returns a process-local limiter.
func NewMemoryRateLimiter() RateLimiter {
	rl := newMemoryRateLimiter(time.Now)
	go rl.sweepLoop()
	return rl
}

func newMemoryRateLimiter(now func() time.Time) *memoryRateLimiter {
	return &memoryRateLimiter{
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
		now:     now,
	}
}

func (rl *memoryRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit), window: window}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}
	missing := float64(limit) - tokens
	reset := now
	if missing > 0 {
		reset = now.Add(time.Duration(missing * float64(window/time.Duration(limit))))
	}
	return rateDecision{allowed: allowed, remaining: remaining, resetAt: reset}
}

func (rl *memoryRateLimiter) sweepLoop() {
	ticker := time.NewTicker(rateLimiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(rl.now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops buckets idle for longer than their window; they would be full again.
func (rl *memoryRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > b.window {
			delete(rl.buckets, key)
		}
	}
}

func (rl *memoryRateLimiter) Close() {
	rl.once.Do(func() {
		close(rl.stopCh)
	})
}

func (r *Router) withRateLimit(route string, limit int, window time.Duration, keyFn func(*http.Request) string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		key := keyFn(req)
		if key == "" {
			key = r.rateLimitKeyIP(req)
		}
		decision := r.limiter.Allow(route+"|"+key, limit, window)
		applyRateHeaders(w, limit, decision)
		if !decision.allowed {
			r.metrics.RateLimitHit(route, rateMetricKey(key))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

func (r *Router) rateLimitKeyUser(req *http.Request) string {
	if info, ok := authInfoFromContext(req.Context()); ok && info.UserID > 0 {
		return "user:" + strconv.FormatInt(info.UserID, 10)
	}
	return ""
}

func (r *Router) rateLimitKeyIP(req *http.Request) string {
	host := clientIP(req, r.trustProxy)
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

func rateMetricKey(key string) string {
	if key == "" {
		return "unknown"
	}
	if idx := strings.IndexRune(key, ':'); idx > 0 {
		return key[:idx]
	}
	return key
}

func applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := decision.remaining
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.resetAt.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.resetAt.Unix(), 10))
	}
}

// clientIP returns the peer address. X-Forwarded-For is only honoured when
// trustProxy is set, i.e. the API runs behind a proxy that overwrites it.
func clientIP(req *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
			parts := strings.Split(forwarded, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}
