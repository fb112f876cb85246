package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/chatflow/pkg/domain"
)

// LoggingHooks logs every transition of a run at Info level.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.InfoContext(ctx, "node_enter", "node_id", e.NodeID, "kind", e.NodeKind)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			logger.InfoContext(ctx, "node_leave", "node_id", e.NodeID)
		},
		OnHalt: func(ctx context.Context, e *domain.HaltEvent) {
			if e.Reason == "" {
				logger.InfoContext(ctx, "run_completed", "node_id", e.NodeID)
				return
			}
			logger.WarnContext(ctx, "run_halted", "node_id", e.NodeID, "reason", e.Reason)
		},
	}
}
