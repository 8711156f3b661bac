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

package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/claimdesk/claimdesk/internal/id"
	"github.com/claimdesk/claimdesk/internal/observability/logger"
	"github.com/claimdesk/claimdesk/internal/observability/metrics"
)

// ErrRecorderClosed is returned by Record after Close.
var ErrRecorderClosed = errors.New("audit recorder closed")

// Options configures a Recorder
type Options struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

// Recorder appends audit entries off the request path. Entries are queued
// on a bounded channel and written by a fixed pool of workers. A write
// failure never reaches the client.
type Recorder struct {
	repo        Repository
	queue       chan *Entry
	timeout     time.Duration
	instruments *metrics.Instruments

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewRecorder starts opts.Workers writers
func NewRecorder(repo Repository, opts Options, instruments *metrics.Instruments) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		repo:        repo,
		queue:       make(chan *Entry, opts.QueueSize),
		timeout:     opts.WriteTimeout,
		instruments: instruments,
	}
	for i := 0; i < opts.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Record enqueues e. It never blocks: a full queue drops the entry.
func (r *Recorder) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = id.NewUUIDv7()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = StatusSuccess
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRecorderClosed
	}

	select {
	case r.queue <- e:
		return nil
	default:
		r.instruments.AuditDropped(ctx)
		slog.ErrorContext(ctx, "audit queue full, entry dropped",
			logger.Component("audit"),
			logger.TenantID(e.TenantID),
			slog.String("action", string(e.Action)),
			slog.String("resource_type", e.ResourceType),
		)
		return nil
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for e := range r.queue {
		r.write(e)
	}
}

func (r *Recorder) write(e *Entry) {
	// the request context is gone by now
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.repo.Append(ctx, e); err != nil {
		r.instruments.AuditWriteFailed(ctx)
		slog.ErrorContext(ctx, "failed to write audit entry",
			logger.Component("audit"),
			logger.TenantID(e.TenantID),
			slog.String("action", string(e.Action)),
			slog.String("resource_type", e.ResourceType),
			slog.String("resource_id", e.ResourceID),
			logger.Error(err),
		)
	}
}

// Close stops accepting entries and waits for the queue to drain or ctx to
// expire, whichever is first.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
