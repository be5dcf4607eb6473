package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-his/meridian-his/internal/stock"
)

// ExpiryReporter lists batches nearing expiry.
type ExpiryReporter interface {
	ExpiringWithin(ctx context.Context, days int) ([]stock.ExpiryWarning, error)
	BelowReorderPoint(ctx context.Context) ([]stock.ReorderWarning, error)
}

// NewExpiryScanHandler returns the handler for TaskExpiryScan. The scan
// logs every batch inside the horizon and every item under its reorder
// point so the warnings land in the operational log stream.
func NewExpiryScanHandler(reporter ExpiryReporter, logger *slog.Logger, defaultWindowDays int) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ExpiryScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := defaultJobMetrics.Track(TaskExpiryScan)
		days := payload.WindowDays
		if days <= 0 {
			days = defaultWindowDays
		}
		warnings, err := reporter.ExpiringWithin(ctx, days)
		if err != nil {
			return tracker.End(err)
		}
		for _, warning := range warnings {
			logger.Warn("batch nearing expiry",
				slog.Int64("warehouse_id", warning.Batch.WarehouseID),
				slog.Int64("item_id", warning.Batch.ItemID),
				slog.Int64("batch_id", warning.Batch.ID),
				slog.String("lot", warning.Batch.LotCode),
				slog.Int("days_remaining", warning.DaysRemaining),
				slog.String("quantity", warning.Batch.Quantity.String()),
			)
		}
		reorders, err := reporter.BelowReorderPoint(ctx)
		if err != nil {
			return tracker.End(err)
		}
		for _, warning := range reorders {
			logger.Warn("item below reorder point",
				slog.Int64("warehouse_id", warning.WarehouseID),
				slog.Int64("item_id", warning.ItemID),
				slog.String("on_hand", warning.OnHand.String()),
				slog.String("reorder_point", warning.ReorderPoint.String()),
			)
		}
		logger.Info("expiry scan finished",
			slog.Int("window_days", days),
			slog.Int("expiring", len(warnings)),
			slog.Int("below_reorder", len(reorders)),
		)
		return tracker.End(nil)
	}
}
