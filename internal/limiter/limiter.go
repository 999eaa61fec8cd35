package limiter

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/itstheanurag/judge/internal/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomicTime
}

// RateLimiter applies a global token bucket and one bucket per client IP in
// front of the HTTP handlers. Execution capacity is enforced separately by
// the admission controller.
type RateLimiter struct {
	globalLimiter *rate.Limiter
	perIPLimiters *xsync.MapOf[string, *ipLimiter]
	ipRate        rate.Limit
	ipBurst       int
	metrics       *metrics.Registry
}

func NewRateLimiter(globalRPS float64, perIPRPS float64, perIPBurst int, m *metrics.Registry) *RateLimiter {
	return &RateLimiter{
		globalLimiter: rate.NewLimiter(rate.Limit(globalRPS), max(int(globalRPS)*2, 1)),
		perIPLimiters: xsync.NewMapOf[string, *ipLimiter](),
		ipRate:        rate.Limit(perIPRPS),
		ipBurst:       perIPBurst,
		metrics:       m,
	}
}

func (rl *RateLimiter) getIPLimiter(ip string) *rate.Limiter {
	l, _ := rl.perIPLimiters.LoadOrCompute(ip, func() *ipLimiter {
		return &ipLimiter{limiter: rate.NewLimiter(rl.ipRate, rl.ipBurst)}
	})
	l.lastSeen.Store(time.Now())
	return l.limiter
}

func (rl *RateLimiter) Allow(ip string) bool {
	if !rl.globalLimiter.Allow() {
		rl.metrics.RateLimitHits.Inc()
		return false
	}

	if !rl.getIPLimiter(ip).Allow() {
		rl.metrics.RateLimitHits.Inc()
		return false
	}

	return true
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(ClientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Too many requests","kind":"throttled"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP prefers the first X-Forwarded-For hop and falls back to the peer
// address without its port.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Evict drops limiters not used for idleFor and returns how many were dropped.
func (rl *RateLimiter) Evict(idleFor time.Duration) int {
	cutoff := time.Now().Add(-idleFor)
	evicted := 0
	rl.perIPLimiters.Range(func(ip string, l *ipLimiter) bool {
		if l.lastSeen.Load().Before(cutoff) {
			rl.perIPLimiters.Delete(ip)
			evicted++
		}
		return true
	})
	return evicted
}

func (rl *RateLimiter) Tracked() int {
	return rl.perIPLimiters.Size()
}

// StartCleanup evicts idle limiters every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Evict(interval)
			case <-ctx.Done():
				return
			}
		}
	}()
}
