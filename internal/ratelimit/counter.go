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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is an atomic fixed-window counter store.
type Counter interface {
	// Increment adds one to key and returns the new count with the time left
	// in the window. The window expiry is set by the increment that creates
	// the key and is never extended by later increments.
	Increment(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// incrScript runs INCR, first-hit PEXPIRE and PTTL as one atomic step.
var incrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisCounter stores windows in Redis so every replica shares them.
type RedisCounter struct {
	client redis.Scripter
}

// NewRedisCounter creates a Redis-backed counter
func NewRedisCounter(client redis.Scripter) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	vals, err := incrScript.Run(ctx, c.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	if len(vals) != 2 {
		return 0, 0, errors.New("unexpected rate limit script reply")
	}
	return vals[0], time.Duration(vals[1]) * time.Millisecond, nil
}

type window struct {
	count   int64
	expires time.Time
}

// MemoryCounter keeps windows in process. It is used when no Redis address
// is configured and in tests.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
	// sweepAt bounds the map: expired windows are dropped once it grows past it.
	sweepAt int
}

// NewMemoryCounter creates an in-process counter
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		windows: make(map[string]*window),
		now:     time.Now,
		sweepAt: 10000,
	}
}

func (c *MemoryCounter) Increment(_ context.Context, key string, d time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.expires) {
		if len(c.windows) >= c.sweepAt {
			c.sweep(now)
		}
		w = &window{expires: now.Add(d)}
		c.windows[key] = w
	}
	w.count++
	return w.count, w.expires.Sub(now), nil
}

func (c *MemoryCounter) sweep(now time.Time) {
	for k, w := range c.windows {
		if !now.Before(w.expires) {
			delete(c.windows, k)
		}
	}
}
