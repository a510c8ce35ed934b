package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"appointment-scheduler/internal/metrics"
	"appointment-scheduler/internal/rpc"
)

const (
	sweepSchedule = "@every 1m"
	idleAfter     = 3 * time.Minute
)

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter keeps one token bucket per client address. Idle buckets are
// swept on a cron schedule once Start is called.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	r       rate.Limit
	burst   int
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
	cron    *cron.Cron
}

type RateLimitOption func(*RateLimiter)

func WithRateMetrics(m *metrics.Metrics) RateLimitOption {
	return func(rl *RateLimiter) { rl.metrics = m }
}

func WithRateLogger(lg *slog.Logger) RateLimitOption {
	return func(rl *RateLimiter) { rl.logger = lg }
}

func withRateClock(now func() time.Time) RateLimitOption {
	return func(rl *RateLimiter) { rl.now = now }
}

func NewRateLimiter(rps float64, burst int, opts ...RateLimitOption) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*client),
		r:       rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Start schedules the idle sweep.
func (rl *RateLimiter) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(sweepSchedule, rl.Sweep); err != nil {
		return err
	}
	rl.cron = c
	c.Start()
	return nil
}

// Stop halts the sweep and waits for a running one to finish.
func (rl *RateLimiter) Stop() {
	if rl.cron != nil {
		<-rl.cron.Stop().Done()
	}
}

// Sweep drops buckets not used for a few minutes.
func (rl *RateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	n := 0
	for key, c := range rl.clients {
		if now.Sub(c.seen) > idleAfter {
			delete(rl.clients, key)
			n++
		}
	}
	if n > 0 {
		rl.logger.Debug("rate limiter sweep", "dropped", n, "remaining", len(rl.clients))
	}
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	if c, ok := rl.clients[key]; ok {
		c.seen = now
		return c.lim
	}
	l := rate.NewLimiter(rl.r, rl.burst)
	rl.clients[key] = &client{lim: l, seen: now}
	return l
}

// Allow spends one token from key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.get(key).AllowN(rl.now(), 1)
}

// methods that should be rate limited
var limited = map[string]bool{
	rpc.FullMethod("Register"): true,
	rpc.FullMethod("Login"):    true,
}

func RateLimit(rl *RateLimiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !limited[info.FullMethod] {
			return next(ctx, req)
		}
		ip := "unknown"
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			ip = host(p.Addr.String())
		}
		if !rl.Allow(ip) {
			rl.metrics.IncRateLimited(info.FullMethod)
			return nil, status.Error(codes.ResourceExhausted, "too many requests")
		}
		return next(ctx, req)
	}
}

// Limit applies rl to an HTTP route, keyed by client address.
func (rl *RateLimiter) Limit(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(host(r.RemoteAddr)) {
				rl.metrics.IncRateLimited(name)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// host strips the port so reconnects share a bucket.
func host(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}
