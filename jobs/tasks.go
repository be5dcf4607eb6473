package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-his/meridian-his/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskExpiryScan triggers the nightly near-expiry batch scan.
	TaskExpiryScan = "stock:expiry_scan"
	// TaskIntegrityCheck replays the ledger against the batch projection.
	TaskIntegrityCheck = "stock:integrity_check"
	// TaskRetentionCleanup prunes aged idempotency keys.
	TaskRetentionCleanup = "retention:cleanup"
)

// ExpiryScanPayload carries the scan horizon.
type ExpiryScanPayload struct {
	WindowDays   int       `json:"window_days"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewExpiryScanTask constructs an Asynq task for the expiry scan.
func NewExpiryScanTask(windowDays int, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ExpiryScanPayload{WindowDays: windowDays, ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpiryScan, body, asynq.Queue(QueueDefault)), nil
}

// IntegrityCheckPayload carries scheduling metadata.
type IntegrityCheckPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewIntegrityCheckTask constructs an Asynq task for the projection audit.
func NewIntegrityCheckTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(IntegrityCheckPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityCheck, body, asynq.Queue(QueueDefault)), nil
}

// RetentionCleanupPayload carries the retention window.
type RetentionCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewRetentionCleanupTask constructs an Asynq task for key cleanup.
func NewRetentionCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(RetentionCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRetentionCleanup, body, asynq.Queue(QueueDefault)), nil
}
