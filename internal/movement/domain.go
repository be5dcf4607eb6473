package movement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-his/meridian-his/internal/stock"
)

// DocumentStatus is the coordinator's state machine. Approval and commit
// happen atomically in one transaction, so a successful Approve moves a
// document straight from DRAFT to COMMITTED; there is no persisted
// intermediate status.
type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "DRAFT"
	StatusCommitted DocumentStatus = "COMMITTED"
	StatusCancelled DocumentStatus = "CANCELLED"
)

// DocumentKind groups documents by direction.
type DocumentKind string

const (
	DocReceipt  DocumentKind = "RECEIPT"
	DocIssue    DocumentKind = "ISSUE"
	DocTransfer DocumentKind = "TRANSFER"
	DocReversal DocumentKind = "REVERSAL"
)

// Document is a movement header. Only committed documents have produced
// ledger entries; cancelling after commit requires a reversal document,
// never deletion.
type Document struct {
	ID              int64
	Number          string
	Kind            DocumentKind
	Movement        stock.MovementKind
	WarehouseID     int64
	DestWarehouseID int64
	Status          DocumentStatus
	ReversalOfID    int64
	Note            string
	CreatedBy       int64
	CommittedBy     int64
	CreatedAt       time.Time
	CommittedAt     time.Time
}

// Line is one movement document line. Quantity is expressed in Unit and
// converted to base units at approve time; the ledger only ever sees base
// units.
type Line struct {
	ID         int64
	DocumentID int64
	Seq        int
	ItemID     int64
	LotCode    string
	Expiry     time.Time
	UnitCost   decimal.Decimal
	Quantity   decimal.Decimal
	Unit       stock.Unit
	// BatchID pins an issue line to a specific batch instead of FEFO.
	BatchID int64
	// Correction allows re-receiving a known lot at a different unit cost.
	Correction bool
	// AuthorizationRef is the dispensing authorization for controlled items.
	AuthorizationRef string
	Note             string
}

var (
	// ErrNotFound indicates a missing document.
	ErrNotFound = errors.New("movement: document not found")
	// ErrInvalidState occurs when an action violates the document workflow.
	ErrInvalidState = errors.New("movement: invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("movement: invalid input")
)
