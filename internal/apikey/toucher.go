package apikey

import (
	"context"
	"log/slog"
	"time"

	"github.com/claimdesk/claimdesk/internal/observability/logger"
	"github.com/claimdesk/claimdesk/internal/observability/metrics"
)

type touch struct {
	keyID string
	at    time.Time
}

// Toucher records last_used_at off the request path. Touches are dropped
// when the queue is full.
type Toucher struct {
	repo        Repository
	queue       chan touch
	timeout     time.Duration
	instruments *metrics.Instruments
}

// NewToucher creates a toucher with a queue of size entries
func NewToucher(repo Repository, size int, instruments *metrics.Instruments) *Toucher {
	if size <= 0 {
		size = 256
	}
	return &Toucher{
		repo:        repo,
		queue:       make(chan touch, size),
		timeout:     2 * time.Second,
		instruments: instruments,
	}
}

// Touch enqueues a last-used update without blocking
func (t *Toucher) Touch(ctx context.Context, keyID string) {
	select {
	case t.queue <- touch{keyID: keyID, at: time.Now().UTC()}:
	default:
		t.instruments.TouchDropped(ctx)
		slog.DebugContext(ctx, "api key touch dropped", logger.APIKeyID(keyID))
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (t *Toucher) Run(ctx context.Context) error {
	for {
		select {
		case tc := <-t.queue:
			t.write(tc)
		case <-ctx.Done():
			for {
				select {
				case tc := <-t.queue:
					t.write(tc)
				default:
					return nil
				}
			}
		}
	}
}

func (t *Toucher) write(tc touch) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.repo.TouchLastUsed(ctx, tc.keyID, tc.at); err != nil {
		slog.WarnContext(ctx, "failed to record api key use",
			logger.APIKeyID(tc.keyID), logger.Error(err))
	}
}
