package server

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/54b3r/docrag/internal/logging"
)

// Per-client defaults. Ingest embeds every chunk of every ref, so its budget
// is much smaller than ask's.
const (
	defaultRateLimit       = 10
	defaultRateBurst       = 20
	defaultIngestRateLimit = 0.2
	defaultIngestRateBurst = 2
)

// clientIdleTTL is how long a client bucket survives without traffic.
const clientIdleTTL = 5 * time.Minute

// kindRateLimited is the error kind of a 429 response.
const kindRateLimited = "rate_limited"

// clientBucket is one client's token bucket on one route.
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// routeLimiter enforces a per-client token bucket on a single route. Each
// route keeps its own buckets, so heavy ingest traffic never drains the ask
// budget of the same client.
type routeLimiter struct {
	route    string
	rps      rate.Limit
	burst    int
	rejected prometheus.Counter

	mu      sync.Mutex
	clients map[string]*clientBucket
}

// newRouteLimiter builds the limiter for route. rejected is incremented on
// every 429.
func newRouteLimiter(route string, rps float64, burst int, rejected prometheus.Counter) *routeLimiter {
	return &routeLimiter{
		route:    route,
		rps:      rate.Limit(rps),
		burst:    burst,
		rejected: rejected,
		clients:  make(map[string]*clientBucket),
	}
}

// reserve takes one token for ip at now. When the bucket is empty it returns
// false and the wait until a token is available.
func (rl *routeLimiter) reserve(ip string, now time.Time) (bool, time.Duration) {
	rl.mu.Lock()
	b, ok := rl.clients[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[ip] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// evict drops buckets idle since before now-clientIdleTTL and reports how
// many remain.
func (rl *routeLimiter) evict(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-clientIdleTTL)
	for ip, b := range rl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
	return len(rl.clients)
}

// middleware rejects over-budget requests with 429, a Retry-After header and
// an {error, kind} body.
func (rl *routeLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ok, wait := rl.reserve(ip, time.Now())
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		retry := retryAfterSeconds(wait)
		rl.rejected.Inc()
		logging.FromContext(r.Context()).Warn("server: rate limit exceeded",
			slog.String("route", rl.route),
			slog.String("ip", ip),
			slog.Int("retry_after_s", retry),
		)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeJSON(w, r, http.StatusTooManyRequests, errorResponse{
			Error: fmt.Sprintf("too many %s requests, retry in %ds", rl.route, retry),
			Kind:  kindRateLimited,
		})
	})
}

// retryAfterSeconds rounds wait up to whole seconds, at least 1.
func retryAfterSeconds(wait time.Duration) int {
	s := int(math.Ceil(wait.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// evictIdle runs evict on every limiter each interval until stop is closed.
func evictIdle(interval time.Duration, stop <-chan struct{}, limiters ...*routeLimiter) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			for _, rl := range limiters {
				rl.evict(now)
			}
		}
	}
}

// clientIP is the request's remote host without the port. X-Forwarded-For
// is not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
