package api

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/dgallion1/docoutline/internal/metrics"
)

// AuthMiddleware validates the bearer API key.
func AuthMiddleware(apiKey string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				jsonError(w, "unauthorized", "missing authorization", http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(auth, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				log.Warn("invalid api key", "remote", r.RemoteAddr)
				jsonError(w, "unauthorized", "invalid api key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs incoming requests and counts them by route and status.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: 200}
			next.ServeHTTP(sw, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Limiter bookkeeping bounds. Buckets idle for longer than limiterIdleTTL
// are swept at most once per limiterIdleTTL; maxTrackedClients caps the map
// between sweeps by evicting the least recently seen client.
const (
	limiterIdleTTL    = 10 * time.Minute
	maxTrackedClients = 10000
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter hands out one token bucket per client address.
type IPRateLimiter struct {
	ips       map[string]*clientLimiter
	mu        sync.Mutex
	rateLimit rate.Limit
	burstRate int

	idleTTL   time.Duration
	maxIPs    int
	lastSweep time.Time
	now       func() time.Time
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:       make(map[string]*clientLimiter),
		rateLimit: r,
		burstRate: b,
		idleTTL:   limiterIdleTTL,
		maxIPs:    maxTrackedClients,
		now:       time.Now,
	}
}

func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	if now.Sub(i.lastSweep) >= i.idleTTL {
		i.sweep(now)
	}

	c, exists := i.ips[ip]
	if !exists {
		if len(i.ips) >= i.maxIPs {
			i.evictOldest()
		}
		c = &clientLimiter{limiter: rate.NewLimiter(i.rateLimit, i.burstRate)}
		i.ips[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Len reports how many clients currently hold a bucket.
func (i *IPRateLimiter) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.ips)
}

func (i *IPRateLimiter) sweep(now time.Time) {
	for ip, c := range i.ips {
		if now.Sub(c.lastSeen) >= i.idleTTL {
			delete(i.ips, ip)
		}
	}
	i.lastSweep = now
}

func (i *IPRateLimiter) evictOldest() {
	var (
		oldest string
		at     time.Time
		found  bool
	)
	for ip, c := range i.ips {
		if !found || c.lastSeen.Before(at) {
			oldest, at, found = ip, c.lastSeen, true
		}
	}
	delete(i.ips, oldest)
}

// RateLimit rejects requests from clients that exhausted their bucket.
func RateLimit(limiter *IPRateLimiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !limiter.GetLimiter(ip).Allow() {
				log.Warn("rate limit exceeded", "ip", ip)
				w.Header().Set("Retry-After", "1")
				jsonError(w, "rate_limited", "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
