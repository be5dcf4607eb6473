package stock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAutoSelectBatchesPlansWithoutMutating(t *testing.T) {
	store := newMemoryStore()
	store.addBatch(Batch{WarehouseID: 1, ItemID: 2, LotCode: "EARLY", Expiry: day("2026-10-01"), Quantity: dec("10")})
	store.addBatch(Batch{WarehouseID: 1, ItemID: 2, LotCode: "LATE", Expiry: day("2027-04-01"), Quantity: dec("10")})
	svc := NewService(store, NewLedger(), nil)
	ctx := context.Background()

	plan, err := svc.AutoSelectBatches(ctx, 1, 2, dec("15"))
	require.NoError(t, err)
	require.Len(t, plan, 2)
	require.Equal(t, "EARLY", plan[0].LotCode)

	qty, _ := store.QuantityOnHand(ctx, 1, 2)
	require.True(t, qty.Equal(dec("20")), "planning must not consume stock")
}

func TestAutoSelectBatchesShortageCarriesKey(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, NewLedger(), nil)

	_, err := svc.AutoSelectBatches(context.Background(), 3, 9, dec("1"))
	require.ErrorIs(t, err, ErrInsufficientStock)

	var se *Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, int64(3), se.WarehouseID)
	require.Equal(t, int64(9), se.ItemID)
}

func TestSplitPackageKeepsTotalUnchanged(t *testing.T) {
	store := newMemoryStore()
	batchID := store.addBatch(Batch{WarehouseID: 1, ItemID: 2, LotCode: "L1", Expiry: day("2027-01-01"), Quantity: dec("100")})
	svc := NewService(store, NewLedger(), nil)
	ctx := context.Background()

	err := svc.SplitPackage(ctx, SplitInput{
		BatchID:    batchID,
		Packages:   dec("2"),
		Conversion: Conversion{PackSize: dec("10")},
		DocumentID: 500,
		ActorID:    7,
	})
	require.NoError(t, err)

	qty, _ := store.QuantityOnHand(ctx, 1, 2)
	require.True(t, qty.Equal(dec("100")), "split must be quantity-neutral, got %s", qty)
	require.Len(t, store.entries, 2)

	replayed, _ := store.ReplayBalance(ctx, 1, 2, 0)
	require.True(t, replayed.IsZero())
}

func TestSplitPackageRejectsOverdraw(t *testing.T) {
	store := newMemoryStore()
	batchID := store.addBatch(Batch{WarehouseID: 1, ItemID: 2, LotCode: "L1", Expiry: day("2027-01-01"), Quantity: dec("5")})
	svc := NewService(store, NewLedger(), nil)

	err := svc.SplitPackage(context.Background(), SplitInput{
		BatchID:    batchID,
		Packages:   dec("1"),
		Conversion: Conversion{PackSize: dec("10")},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestVerifyProjectionDetectsDrift(t *testing.T) {
	store := newMemoryStore()
	batchID := store.addBatch(Batch{WarehouseID: 1, ItemID: 2, LotCode: "L1", Expiry: day("2027-01-01"), Quantity: dec("0")})
	ledger := NewLedger()
	svc := NewService(store, ledger, nil)
	ctx := context.Background()

	err := store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := ledger.Apply(ctx, tx, []LedgerEntry{
			{WarehouseID: 1, ItemID: 2, BatchID: batchID, Delta: dec("40"), Kind: KindSupplierReceipt, DocumentID: 1, LineSeq: 0},
			{WarehouseID: 1, ItemID: 2, BatchID: batchID, Delta: dec("-15"), Kind: KindDeptIssue, DocumentID: 2, LineSeq: 0},
		})
		return err
	})
	require.NoError(t, err)

	require.NoError(t, svc.VerifyProjection(ctx, 1, 2))
	require.NoError(t, svc.VerifyAllProjections(ctx))

	// corrupt the projection behind the ledger's back
	store.batches[batchID].Quantity = dec("99")
	err = svc.VerifyProjection(ctx, 1, 2)
	require.ErrorIs(t, err, ErrIntegrityViolation)
	require.Error(t, svc.VerifyAllProjections(ctx))

	// rebuild restores ledger truth
	require.NoError(t, svc.RebuildProjection(ctx, 1, 2))
	require.NoError(t, svc.VerifyProjection(ctx, 1, 2))
	qty, _ := store.QuantityOnHand(ctx, 1, 2)
	require.True(t, qty.Equal(dec("25")), "got %s", qty)
}

func TestStockCardRunningBalance(t *testing.T) {
	store := newMemoryStore()
	batchID := store.addBatch(Batch{WarehouseID: 1, ItemID: 2, LotCode: "L1", Expiry: day("2027-01-01"), Quantity: dec("0")})
	ledger := NewLedger()
	svc := NewService(store, ledger, nil)
	ctx := context.Background()

	err := store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := ledger.Apply(ctx, tx, []LedgerEntry{
			{WarehouseID: 1, ItemID: 2, BatchID: batchID, Delta: dec("40"), Kind: KindSupplierReceipt, DocumentID: 1, LineSeq: 0},
			{WarehouseID: 1, ItemID: 2, BatchID: batchID, Delta: dec("-10"), Kind: KindDispenseInpatient, DocumentID: 2, LineSeq: 0},
			{WarehouseID: 1, ItemID: 2, BatchID: batchID, Delta: dec("-5"), Kind: KindDispenseOutpatient, DocumentID: 3, LineSeq: 0},
		})
		return err
	})
	require.NoError(t, err)

	card, err := svc.StockCard(ctx, 1, 2, day("2000-01-01"), day("2100-01-01"), 0)
	require.NoError(t, err)
	require.Len(t, card, 3)
	require.True(t, card[0].Balance.Equal(dec("40")))
	require.True(t, card[1].Balance.Equal(dec("30")))
	require.True(t, card[2].Balance.Equal(dec("25")))
}

func TestStockCardWindowKeepsHistoricBalance(t *testing.T) {
	store := newMemoryStore()
	batchID := store.addBatch(Batch{WarehouseID: 1, ItemID: 2, LotCode: "L1", Expiry: day("2027-01-01"), Quantity: dec("0")})
	ledger := NewLedger()
	svc := NewService(store, ledger, nil)
	ctx := context.Background()

	err := store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := ledger.Apply(ctx, tx, []LedgerEntry{
			{WarehouseID: 1, ItemID: 2, BatchID: batchID, Delta: dec("40"), Kind: KindSupplierReceipt, DocumentID: 1, LineSeq: 0, OccurredAt: day("2026-01-15")},
			{WarehouseID: 1, ItemID: 2, BatchID: batchID, Delta: dec("-10"), Kind: KindDispenseInpatient, DocumentID: 2, LineSeq: 0, OccurredAt: day("2026-03-10")},
		})
		return err
	})
	require.NoError(t, err)

	// A from date that excludes the receipt must not reset the balance to
	// the window-local sum.
	card, err := svc.StockCard(ctx, 1, 2, day("2026-02-01"), day("2026-12-31"), 0)
	require.NoError(t, err)
	require.Len(t, card, 1)
	require.True(t, card[0].Delta.Equal(dec("-10")))
	require.True(t, card[0].Balance.Equal(dec("30")))
}
