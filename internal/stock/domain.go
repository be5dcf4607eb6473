package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind enumerates every quantity-affecting event the ledger accepts.
type MovementKind string

const (
	KindSupplierReceipt    MovementKind = "SUPPLIER_RECEIPT"
	KindOtherReceipt       MovementKind = "OTHER_RECEIPT"
	KindTransferIn         MovementKind = "TRANSFER_IN"
	KindTransferOut        MovementKind = "TRANSFER_OUT"
	KindDeptReturnReceipt  MovementKind = "DEPT_RETURN_RECEIPT"
	KindDispenseOutpatient MovementKind = "DISPENSE_OUTPATIENT"
	KindDispenseInpatient  MovementKind = "DISPENSE_INPATIENT"
	KindDeptIssue          MovementKind = "DEPT_ISSUE"
	KindSupplierReturn     MovementKind = "SUPPLIER_RETURN"
	KindDestruction        MovementKind = "DESTRUCTION"
	KindStockTakeAdjust    MovementKind = "STOCK_TAKE_ADJUSTMENT"
	KindPharmacySale       MovementKind = "PHARMACY_SALE"
	// KindPackageSplit marks the quantity-neutral entry pair produced by
	// splitting a package into base units. The pair must sum to zero.
	KindPackageSplit MovementKind = "PACKAGE_SPLIT"
)

// Inbound reports whether the kind increases stock.
func (k MovementKind) Inbound() bool {
	switch k {
	case KindSupplierReceipt, KindOtherReceipt, KindTransferIn, KindDeptReturnReceipt:
		return true
	}
	return false
}

// Outbound reports whether the kind decreases stock.
func (k MovementKind) Outbound() bool {
	switch k {
	case KindDispenseOutpatient, KindDispenseInpatient, KindDeptIssue,
		KindSupplierReturn, KindDestruction, KindTransferOut, KindPharmacySale:
		return true
	}
	return false
}

// Valid reports whether the kind belongs to the closed enumeration.
func (k MovementKind) Valid() bool {
	return k.Inbound() || k.Outbound() || k == KindStockTakeAdjust || k == KindPackageSplit
}

// Batch is a projection row: the current on-hand quantity for one lot of
// one item at one warehouse. Created once at first receipt, never deleted,
// only exhausted. Quantity is in base units and never negative after commit.
type Batch struct {
	ID          int64
	WarehouseID int64
	ItemID      int64
	LotCode     string
	Expiry      time.Time
	UnitCost    decimal.Decimal
	Quantity    decimal.Decimal
	ReceivedAt  time.Time
	SourceDocID int64
	UpdatedAt   time.Time
}

// Exhausted reports whether the batch has been fully consumed.
func (b Batch) Exhausted() bool {
	return b.Quantity.LessThanOrEqual(decimal.Zero)
}

// LedgerEntry is one immutable record of a quantity delta against a
// (warehouse, item, batch) tuple. Entries are never mutated or deleted;
// corrections are new offsetting entries.
type LedgerEntry struct {
	ID          int64
	OccurredAt  time.Time
	WarehouseID int64
	ItemID      int64
	BatchID     int64
	Delta       decimal.Decimal
	Kind        MovementKind
	DocumentID  int64
	LineSeq     int
	ActorID     int64
	Note        string
}

// IdemKey identifies the idempotency scope of an entry.
func (e LedgerEntry) IdemKey() EntryKey {
	return EntryKey{DocumentID: e.DocumentID, LineSeq: e.LineSeq, Kind: e.Kind}
}

// EntryKey is the ledger idempotency key: one effect per document line
// per movement kind.
type EntryKey struct {
	DocumentID int64
	LineSeq    int
	Kind       MovementKind
}

// BatchDraw is one slice of an allocation plan.
type BatchDraw struct {
	BatchID  int64
	LotCode  string
	Expiry   time.Time
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

// CardEntry is a ledger entry with its running balance, for stock cards.
type CardEntry struct {
	EntryID    int64
	OccurredAt time.Time
	BatchID    int64
	LotCode    string
	Kind       MovementKind
	Delta      decimal.Decimal
	Balance    decimal.Decimal
	DocumentID int64
	ActorID    int64
	Note       string
}

// ExpiryWarning flags a batch approaching or past its expiry date.
type ExpiryWarning struct {
	Batch         Batch
	DaysRemaining int
}

// ReorderWarning flags an item whose on-hand total fell under its reorder point.
type ReorderWarning struct {
	WarehouseID  int64
	ItemID       int64
	OnHand       decimal.Decimal
	ReorderPoint decimal.Decimal
}
