package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type loginEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginThrottle is a per-IP token bucket in front of the login endpoint. It
// complements the fixed-window limiter with a tight burst allowance.
type LoginThrottle struct {
	mu      sync.Mutex
	ips     map[string]*loginEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
}

// NewLoginThrottle creates a login throttle
func NewLoginThrottle(rps float64, burst int) *LoginThrottle {
	return &LoginThrottle{
		ips:     make(map[string]*loginEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 10 * time.Minute,
	}
}

// Allow takes one token for ip
func (t *LoginThrottle) Allow(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.ips[ip]
	if !ok {
		e = &loginEntry{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.ips[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// Run evicts idle IPs until ctx is done
func (t *LoginThrottle) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.idleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			t.sweep(now)
		}
	}
}

func (t *LoginThrottle) sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ip, e := range t.ips {
		if now.Sub(e.lastSeen) > t.idleTTL {
			delete(t.ips, ip)
		}
	}
}

// Middleware rejects requests from IPs that have drained their bucket
func (t *LoginThrottle) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !t.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", "1")
				respondError(w, http.StatusTooManyRequests, "too many login attempts")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
