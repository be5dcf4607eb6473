package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// KeyCleaner prunes processed idempotency keys past retention.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewRetentionCleanupHandler returns the handler for TaskRetentionCleanup.
func NewRetentionCleanupHandler(cleaner KeyCleaner, logger *slog.Logger, defaultRetention time.Duration) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RetentionCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := defaultJobMetrics.Track(TaskRetentionCleanup)
		retention := payload.Retention
		if retention <= 0 {
			retention = defaultRetention
		}
		if err := cleaner.Cleanup(ctx, retention); err != nil {
			logger.Error("retention cleanup failed", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("retention cleanup finished", slog.Duration("retention", retention))
		return tracker.End(nil)
	}
}
