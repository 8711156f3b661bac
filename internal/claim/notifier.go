package claim

import (
	"context"
	"log/slog"

	"github.com/claimdesk/claimdesk/internal/observability/logger"
)

// Notifier is told about claim lifecycle events. Delivery is best effort.
type Notifier interface {
	ClaimCreated(ctx context.Context, c *Claim)
	ClaimAssigned(ctx context.Context, c *Claim)
	ClaimResolved(ctx context.Context, c *Claim)
}

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier. A nil logger uses slog.Default.
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{logger: l.With(logger.Component("claim_notifier"))}
}

func (n *LogNotifier) ClaimCreated(ctx context.Context, c *Claim) {
	n.notify(ctx, "claim_created", c)
}

func (n *LogNotifier) ClaimAssigned(ctx context.Context, c *Claim) {
	n.notify(ctx, "claim_assigned", c)
}

func (n *LogNotifier) ClaimResolved(ctx context.Context, c *Claim) {
	n.notify(ctx, "claim_resolved", c)
}

func (n *LogNotifier) notify(ctx context.Context, event string, c *Claim) {
	attrs := []any{
		slog.String("event", event),
		logger.TenantID(c.TenantID),
		slog.String("claim_code", c.Code),
		slog.String("recipient", c.CustomerEmail),
	}
	if c.AssigneeID != nil {
		attrs = append(attrs, slog.String("assignee_id", *c.AssigneeID))
	}
	n.logger.InfoContext(ctx, "claim notification", attrs...)
}
