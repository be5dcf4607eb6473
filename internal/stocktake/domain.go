package stocktake

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PeriodStatus is the reconciliation state machine. COMPLETED is terminal:
// a completed period can never be reopened or recounted.
type PeriodStatus string

const (
	StatusOpen          PeriodStatus = "OPEN"
	StatusCountRecorded PeriodStatus = "COUNT_RECORDED"
	StatusCompleted     PeriodStatus = "COMPLETED"
)

// Period freezes a counting window for one warehouse.
type Period struct {
	ID          int64
	WarehouseID int64
	From        time.Time
	To          time.Time
	Status      PeriodStatus
	CreatedBy   int64
	CompletedBy int64
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Count is one recorded physical quantity. BatchID zero means the count
// covers the whole item across batches. Re-recording the same key
// overwrites: only the last count before completion matters.
type Count struct {
	PeriodID   int64
	ItemID     int64
	BatchID    int64
	Physical   decimal.Decimal
	RecordedBy int64
	RecordedAt time.Time
}

// Adjustment reports one compensating ledger delta produced by Complete.
type Adjustment struct {
	ItemID  int64
	BatchID int64
	Delta   decimal.Decimal
}

var (
	// ErrPeriodNotFound indicates a missing period.
	ErrPeriodNotFound = errors.New("stocktake: period not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("stocktake: invalid input")
)
