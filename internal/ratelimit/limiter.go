// Copyright 2026 The ClaimDesk Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/claimdesk/claimdesk/internal/observability/logger"
	"github.com/claimdesk/claimdesk/internal/observability/metrics"
)

// Decision is the outcome of one rate-limit check
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	Reset      time.Duration
	RetryAfter time.Duration
	// Degraded is set when the counter store failed and the request was let
	// through without being counted.
	Degraded bool
}

// Limiter is a fixed-window limiter keyed by tenant slug and client IP.
type Limiter struct {
	counter     Counter
	window      time.Duration
	max         int64
	instruments *metrics.Instruments
}

// NewLimiter creates a limiter allowing defaultMax requests per window.
func NewLimiter(counter Counter, window time.Duration, defaultMax int64, instruments *metrics.Instruments) *Limiter {
	return &Limiter{
		counter:     counter,
		window:      window,
		max:         defaultMax,
		instruments: instruments,
	}
}

// Window returns the window length
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Key returns the counter key for a tenant slug and client IP.
func Key(tenantSlug, ip string) string {
	return "rl:" + tenantSlug + ":" + ip
}

// Allow counts one request for (tenantSlug, ip) against budget, or against
// the default when budget <= 0. Counter errors fail open.
func (l *Limiter) Allow(ctx context.Context, tenantSlug, ip string, budget int64) Decision {
	if budget <= 0 {
		budget = l.max
	}
	key := Key(tenantSlug, ip)

	count, ttl, err := l.counter.Increment(ctx, key, l.window)
	if err != nil {
		slog.WarnContext(ctx, "rate limit store unavailable, allowing request",
			logger.Component("ratelimit"),
			logger.RateLimitKey(key),
			logger.Error(err),
		)
		l.instruments.FailOpen(ctx)
		return Decision{Allowed: true, Limit: budget, Remaining: budget, Reset: l.window, Degraded: true}
	}

	if ttl <= 0 || ttl > l.window {
		ttl = l.window
	}
	d := Decision{
		Allowed:   count <= budget,
		Limit:     budget,
		Remaining: budget - count,
		Reset:     ttl,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d
}

// PerWindow scales a per-minute budget to the limiter window.
func (l *Limiter) PerWindow(perMinute int64) int64 {
	if perMinute <= 0 {
		return 0
	}
	n := int64(math.Ceil(float64(perMinute) * l.window.Seconds() / 60))
	if n < 1 {
		n = 1
	}
	return n
}

// WriteHeaders sets the rate-limit response headers for d.
func (d Decision) WriteHeaders(h http.Header) {
	h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(seconds(d.Reset), 10))
	if !d.Allowed {
		h.Set("Retry-After", strconv.FormatInt(seconds(d.RetryAfter), 10))
	}
}

// RetryAfterSeconds is the whole-second retry hint, at least 1 when limited.
func (d Decision) RetryAfterSeconds() int64 {
	return seconds(d.RetryAfter)
}

func seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
