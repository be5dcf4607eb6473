package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

// ProjectionVerifier replays the stock ledger against the batch projection.
type ProjectionVerifier interface {
	VerifyAllProjections(ctx context.Context) error
}

// NewIntegrityCheckHandler returns the handler for TaskIntegrityCheck.
// A mismatch is returned so Asynq retries and surfaces the failure; the
// projection stays untouched until an operator rebuilds it.
func NewIntegrityCheckHandler(verifier ProjectionVerifier, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IntegrityCheckPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := defaultJobMetrics.Track(TaskIntegrityCheck)
		if err := verifier.VerifyAllProjections(ctx); err != nil {
			logger.Error("ledger integrity check failed", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("ledger integrity check passed")
		return tracker.End(nil)
	}
}
