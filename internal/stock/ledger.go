package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TxRepository exposes the ledger and projection operations available
// inside one store transaction. The coordinator and the reconciler both
// commit through this surface so quantity truth stays in one place.
type TxRepository interface {
	// BatchesForUpdate locks and returns every batch for the key, ordered
	// by ascending expiry then receipt date.
	BatchesForUpdate(ctx context.Context, warehouseID, itemID int64) ([]Batch, error)
	BatchForUpdate(ctx context.Context, batchID int64) (Batch, error)
	// FindBatchForUpdate locates a lot at a warehouse; ErrBatchNotFound when unseen.
	FindBatchForUpdate(ctx context.Context, warehouseID, itemID int64, lotCode string) (Batch, error)
	InsertBatch(ctx context.Context, batch Batch) (int64, error)
	AddBatchQuantity(ctx context.Context, batchID int64, delta decimal.Decimal) (decimal.Decimal, error)
	InsertEntries(ctx context.Context, entries []LedgerEntry) error
	EntryKeyExists(ctx context.Context, key EntryKey) (bool, error)
}

// Ledger applies movement entries atomically against a TxRepository.
// Every mutation path in the system funnels through Apply.
type Ledger struct {
	now func() time.Time
}

// NewLedger constructs the ledger writer.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// WithClock overrides the timestamp source, for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Apply appends entries and synchronously updates the batch projection
// rows inside the caller's transaction. All-or-nothing: the transaction
// owner rolls back on error. A delta that would drive a batch negative
// is rejected before any write, and an entry whose idempotency key was
// already applied fails with IntegrityViolation.
func (l *Ledger) Apply(ctx context.Context, tx TxRepository, entries []LedgerEntry) ([]LedgerEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	now := l.now().UTC()
	applied := make([]LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Kind.Valid() {
			return nil, NewError(KindIntegrityViolation, e.WarehouseID, e.ItemID, e.BatchID,
				"unknown movement kind "+string(e.Kind))
		}
		if e.Delta.IsZero() {
			return nil, NewError(KindIntegrityViolation, e.WarehouseID, e.ItemID, e.BatchID, "zero delta entry")
		}
		exists, err := tx.EntryKeyExists(ctx, e.IdemKey())
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, NewError(KindIntegrityViolation, e.WarehouseID, e.ItemID, e.BatchID, "duplicate ledger entry key")
		}
		newQty, err := tx.AddBatchQuantity(ctx, e.BatchID, e.Delta)
		if err != nil {
			return nil, err
		}
		if newQty.LessThan(decimal.Zero) {
			return nil, NewError(KindInsufficientStock, e.WarehouseID, e.ItemID, e.BatchID,
				"delta "+e.Delta.String()+" would drive batch negative")
		}
		if e.OccurredAt.IsZero() {
			e.OccurredAt = now
		}
		applied = append(applied, e)
	}
	if err := tx.InsertEntries(ctx, applied); err != nil {
		return nil, err
	}
	return applied, nil
}

// SplitEntries builds the quantity-neutral entry pair for a package split.
// Splitting changes unit-of-issue bookkeeping only; any apparent change in
// total base units is a defect, enforced here.
func SplitEntries(batch Batch, baseQty decimal.Decimal, documentID int64, actorID int64, note string) ([]LedgerEntry, error) {
	if baseQty.LessThanOrEqual(decimal.Zero) {
		return nil, NewError(KindIntegrityViolation, batch.WarehouseID, batch.ItemID, batch.ID, "split quantity must be positive")
	}
	out := LedgerEntry{
		WarehouseID: batch.WarehouseID,
		ItemID:      batch.ItemID,
		BatchID:     batch.ID,
		Delta:       baseQty.Neg(),
		Kind:        KindPackageSplit,
		DocumentID:  documentID,
		LineSeq:     0,
		ActorID:     actorID,
		Note:        note,
	}
	in := out
	in.LineSeq = 1
	in.Delta = baseQty
	if !out.Delta.Add(in.Delta).IsZero() {
		return nil, NewError(KindIntegrityViolation, batch.WarehouseID, batch.ItemID, batch.ID, "package split is not quantity-neutral")
	}
	return []LedgerEntry{out, in}, nil
}
