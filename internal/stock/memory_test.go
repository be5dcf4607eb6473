package stock

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// memoryStore backs the stock service with an in-memory projection and
// ledger. WithTx snapshots state and restores it on error so rollback
// semantics match the real store.
type memoryStore struct {
	batches     map[int64]*Batch
	entries     []LedgerEntry
	reorder     map[int64]decimal.Decimal
	nextBatchID int64
	nextEntryID int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		batches: make(map[int64]*Batch),
		reorder: make(map[int64]decimal.Decimal),
	}
}

func (s *memoryStore) addBatch(b Batch) int64 {
	s.nextBatchID++
	b.ID = s.nextBatchID
	s.batches[b.ID] = &b
	return b.ID
}

func (s *memoryStore) snapshot() *memoryStore {
	clone := &memoryStore{
		batches:     make(map[int64]*Batch, len(s.batches)),
		entries:     append([]LedgerEntry(nil), s.entries...),
		reorder:     s.reorder,
		nextBatchID: s.nextBatchID,
		nextEntryID: s.nextEntryID,
	}
	for id, b := range s.batches {
		copied := *b
		clone.batches[id] = &copied
	}
	return clone
}

func (s *memoryStore) restore(from *memoryStore) {
	s.batches = from.batches
	s.entries = from.entries
	s.nextBatchID = from.nextBatchID
	s.nextEntryID = from.nextEntryID
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	saved := s.snapshot()
	if err := fn(ctx, &memoryTx{store: s}); err != nil {
		s.restore(saved)
		return err
	}
	return nil
}

type memoryTx struct {
	store *memoryStore
}

func sortFEFO(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		if !batches[i].Expiry.Equal(batches[j].Expiry) {
			return batches[i].Expiry.Before(batches[j].Expiry)
		}
		if !batches[i].ReceivedAt.Equal(batches[j].ReceivedAt) {
			return batches[i].ReceivedAt.Before(batches[j].ReceivedAt)
		}
		return batches[i].ID < batches[j].ID
	})
}

func (tx *memoryTx) BatchesForUpdate(ctx context.Context, warehouseID, itemID int64) ([]Batch, error) {
	var out []Batch
	for _, b := range tx.store.batches {
		if b.WarehouseID == warehouseID && b.ItemID == itemID {
			out = append(out, *b)
		}
	}
	sortFEFO(out)
	return out, nil
}

func (tx *memoryTx) BatchForUpdate(ctx context.Context, batchID int64) (Batch, error) {
	if b, ok := tx.store.batches[batchID]; ok {
		return *b, nil
	}
	return Batch{}, ErrBatchNotFound
}

func (tx *memoryTx) FindBatchForUpdate(ctx context.Context, warehouseID, itemID int64, lotCode string) (Batch, error) {
	for _, b := range tx.store.batches {
		if b.WarehouseID == warehouseID && b.ItemID == itemID && b.LotCode == lotCode {
			return *b, nil
		}
	}
	return Batch{}, ErrBatchNotFound
}

func (tx *memoryTx) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	return tx.store.addBatch(batch), nil
}

func (tx *memoryTx) AddBatchQuantity(ctx context.Context, batchID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	b, ok := tx.store.batches[batchID]
	if !ok {
		return decimal.Zero, ErrBatchNotFound
	}
	b.Quantity = b.Quantity.Add(delta)
	return b.Quantity, nil
}

func (tx *memoryTx) InsertEntries(ctx context.Context, entries []LedgerEntry) error {
	for _, e := range entries {
		tx.store.nextEntryID++
		e.ID = tx.store.nextEntryID
		tx.store.entries = append(tx.store.entries, e)
	}
	return nil
}

func (tx *memoryTx) EntryKeyExists(ctx context.Context, key EntryKey) (bool, error) {
	for _, e := range tx.store.entries {
		if e.IdemKey() == key {
			return true, nil
		}
	}
	return false, nil
}

// Read side.

func (s *memoryStore) QuantityOnHand(ctx context.Context, warehouseID, itemID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, b := range s.batches {
		if b.WarehouseID == warehouseID && b.ItemID == itemID {
			total = total.Add(b.Quantity)
		}
	}
	return total, nil
}

func (s *memoryStore) BatchesFor(ctx context.Context, warehouseID, itemID int64) ([]Batch, error) {
	var out []Batch
	for _, b := range s.batches {
		if b.WarehouseID == warehouseID && b.ItemID == itemID && b.Quantity.GreaterThan(decimal.Zero) {
			out = append(out, *b)
		}
	}
	sortFEFO(out)
	return out, nil
}

func (s *memoryStore) ExpiringWithin(ctx context.Context, days int) ([]ExpiryWarning, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, days)
	var out []ExpiryWarning
	for _, b := range s.batches {
		if b.Quantity.GreaterThan(decimal.Zero) && !b.Expiry.After(cutoff) {
			out = append(out, ExpiryWarning{Batch: *b, DaysRemaining: int(time.Until(b.Expiry).Hours() / 24)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Batch.Expiry.Before(out[j].Batch.Expiry) })
	return out, nil
}

func (s *memoryStore) BelowReorderPoint(ctx context.Context) ([]ReorderWarning, error) {
	type key struct{ wh, item int64 }
	onHand := make(map[key]decimal.Decimal)
	for _, b := range s.batches {
		k := key{b.WarehouseID, b.ItemID}
		onHand[k] = onHand[k].Add(b.Quantity)
	}
	var out []ReorderWarning
	for k, total := range onHand {
		point, ok := s.reorder[k.item]
		if ok && point.GreaterThan(decimal.Zero) && total.LessThan(point) {
			out = append(out, ReorderWarning{WarehouseID: k.wh, ItemID: k.item, OnHand: total, ReorderPoint: point})
		}
	}
	return out, nil
}

func (s *memoryStore) StockCard(ctx context.Context, warehouseID, itemID int64, from, to time.Time, limit int) ([]CardEntry, error) {
	// Balance accumulates over the full history; from/to only select rows.
	balance := decimal.Zero
	var out []CardEntry
	for _, e := range s.entries {
		if e.WarehouseID != warehouseID || e.ItemID != itemID {
			continue
		}
		balance = balance.Add(e.Delta)
		if !from.IsZero() && e.OccurredAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.OccurredAt.After(to) {
			continue
		}
		out = append(out, CardEntry{
			EntryID:    e.ID,
			OccurredAt: e.OccurredAt,
			BatchID:    e.BatchID,
			Kind:       e.Kind,
			Delta:      e.Delta,
			Balance:    balance,
			DocumentID: e.DocumentID,
			ActorID:    e.ActorID,
			Note:       e.Note,
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) ReplayBalance(ctx context.Context, warehouseID, itemID, batchID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range s.entries {
		if e.WarehouseID != warehouseID || e.ItemID != itemID {
			continue
		}
		if batchID != 0 && e.BatchID != batchID {
			continue
		}
		total = total.Add(e.Delta)
	}
	return total, nil
}

func (s *memoryStore) ActiveKeys(ctx context.Context) ([][2]int64, error) {
	seen := make(map[[2]int64]bool)
	var out [][2]int64
	for _, b := range s.batches {
		k := [2]int64{b.WarehouseID, b.ItemID}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *memoryStore) RebuildProjection(ctx context.Context, warehouseID, itemID int64) error {
	for _, b := range s.batches {
		if b.WarehouseID != warehouseID || b.ItemID != itemID {
			continue
		}
		total := decimal.Zero
		for _, e := range s.entries {
			if e.BatchID == b.ID {
				total = total.Add(e.Delta)
			}
		}
		b.Quantity = total
	}
	return nil
}
