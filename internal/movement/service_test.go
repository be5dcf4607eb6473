package movement

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-his/meridian-his/internal/catalog"
	"github.com/meridian-his/meridian-his/internal/stock"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type fakeCatalog struct {
	items      map[int64]catalog.Item
	warehouses map[int64]catalog.Warehouse
}

func (f *fakeCatalog) GetItem(ctx context.Context, id int64) (catalog.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return catalog.Item{}, catalog.ErrItemNotFound
	}
	return item, nil
}

func (f *fakeCatalog) GetWarehouse(ctx context.Context, id int64) (catalog.Warehouse, error) {
	wh, ok := f.warehouses[id]
	if !ok {
		return catalog.Warehouse{}, catalog.ErrWarehouseNotFound
	}
	return wh, nil
}

// stockStore is the in-memory batch projection and ledger backing the
// movement repo fake.
type stockStore struct {
	batches   map[int64]*stock.Batch
	entries   []stock.LedgerEntry
	nextBatch int64
	nextEntry int64
}

func newStockStore() *stockStore {
	return &stockStore{batches: make(map[int64]*stock.Batch)}
}

func (s *stockStore) addBatch(b stock.Batch) int64 {
	s.nextBatch++
	b.ID = s.nextBatch
	s.batches[b.ID] = &b
	return b.ID
}

func (s *stockStore) snapshot() *stockStore {
	clone := &stockStore{
		batches:   make(map[int64]*stock.Batch, len(s.batches)),
		entries:   append([]stock.LedgerEntry(nil), s.entries...),
		nextBatch: s.nextBatch,
		nextEntry: s.nextEntry,
	}
	for id, b := range s.batches {
		copied := *b
		clone.batches[id] = &copied
	}
	return clone
}

func (s *stockStore) restore(from *stockStore) {
	s.batches = from.batches
	s.entries = from.entries
	s.nextBatch = from.nextBatch
	s.nextEntry = from.nextEntry
}

func (s *stockStore) EntriesByDocument(ctx context.Context, documentID int64) ([]stock.LedgerEntry, error) {
	var out []stock.LedgerEntry
	for _, e := range s.entries {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

type stockTx struct {
	store *stockStore
}

func (tx *stockTx) BatchesForUpdate(ctx context.Context, warehouseID, itemID int64) ([]stock.Batch, error) {
	var out []stock.Batch
	for _, b := range tx.store.batches {
		if b.WarehouseID == warehouseID && b.ItemID == itemID {
			out = append(out, *b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Expiry.Equal(out[j].Expiry) {
			return out[i].Expiry.Before(out[j].Expiry)
		}
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.Before(out[j].ReceivedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (tx *stockTx) BatchForUpdate(ctx context.Context, batchID int64) (stock.Batch, error) {
	if b, ok := tx.store.batches[batchID]; ok {
		return *b, nil
	}
	return stock.Batch{}, stock.ErrBatchNotFound
}

func (tx *stockTx) FindBatchForUpdate(ctx context.Context, warehouseID, itemID int64, lotCode string) (stock.Batch, error) {
	for _, b := range tx.store.batches {
		if b.WarehouseID == warehouseID && b.ItemID == itemID && b.LotCode == lotCode {
			return *b, nil
		}
	}
	return stock.Batch{}, stock.ErrBatchNotFound
}

func (tx *stockTx) InsertBatch(ctx context.Context, batch stock.Batch) (int64, error) {
	return tx.store.addBatch(batch), nil
}

func (tx *stockTx) AddBatchQuantity(ctx context.Context, batchID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	b, ok := tx.store.batches[batchID]
	if !ok {
		return decimal.Zero, stock.ErrBatchNotFound
	}
	b.Quantity = b.Quantity.Add(delta)
	return b.Quantity, nil
}

func (tx *stockTx) InsertEntries(ctx context.Context, entries []stock.LedgerEntry) error {
	for _, e := range entries {
		tx.store.nextEntry++
		e.ID = tx.store.nextEntry
		tx.store.entries = append(tx.store.entries, e)
	}
	return nil
}

func (tx *stockTx) EntryKeyExists(ctx context.Context, key stock.EntryKey) (bool, error) {
	for _, e := range tx.store.entries {
		if e.IdemKey() == key {
			return true, nil
		}
	}
	return false, nil
}

// memoryRepo implements RepositoryPort with snapshot rollback and an
// adjustable number of injected serialization conflicts.
type memoryRepo struct {
	stock     *stockStore
	docs      map[int64]*Document
	lines     map[int64][]Line
	nextDoc   int64
	nextLine  int64
	conflicts int
}

func newMemoryRepo(store *stockStore) *memoryRepo {
	return &memoryRepo{
		stock: store,
		docs:  make(map[int64]*Document),
		lines: make(map[int64][]Line),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.conflicts > 0 {
		r.conflicts--
		return stock.NewError(stock.KindConflict, 0, 0, 0, "serialization failure")
	}
	savedStock := r.stock.snapshot()
	savedDocs := make(map[int64]*Document, len(r.docs))
	for id, d := range r.docs {
		copied := *d
		savedDocs[id] = &copied
	}
	savedLines := make(map[int64][]Line, len(r.lines))
	for id, ls := range r.lines {
		savedLines[id] = append([]Line(nil), ls...)
	}
	savedDoc, savedLine := r.nextDoc, r.nextLine
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.stock.restore(savedStock)
		r.docs = savedDocs
		r.lines = savedLines
		r.nextDoc, r.nextLine = savedDoc, savedLine
		return err
	}
	return nil
}

func (r *memoryRepo) GetDocument(ctx context.Context, id int64) (Document, []Line, error) {
	doc, ok := r.docs[id]
	if !ok {
		return Document{}, nil, ErrNotFound
	}
	return *doc, append([]Line(nil), r.lines[id]...), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	tx.repo.nextDoc++
	doc.ID = tx.repo.nextDoc
	doc.CreatedAt = time.Now().UTC()
	tx.repo.docs[doc.ID] = &doc
	return doc.ID, nil
}

func (tx *memoryTx) InsertLines(ctx context.Context, documentID int64, lines []Line) error {
	stored := make([]Line, 0, len(lines))
	for _, line := range lines {
		tx.repo.nextLine++
		line.ID = tx.repo.nextLine
		line.DocumentID = documentID
		stored = append(stored, line)
	}
	tx.repo.lines[documentID] = stored
	return nil
}

func (tx *memoryTx) DocumentForUpdate(ctx context.Context, id int64) (Document, []Line, error) {
	return tx.repo.GetDocument(ctx, id)
}

func (tx *memoryTx) SetStatus(ctx context.Context, id int64, status DocumentStatus, actorID int64, at time.Time) error {
	doc, ok := tx.repo.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = status
	if status == StatusCommitted {
		doc.CommittedBy = actorID
		doc.CommittedAt = at
	}
	return nil
}

func (tx *memoryTx) Stock() stock.TxRepository {
	return &stockTx{store: tx.repo.stock}
}

type fakeMetrics struct {
	commits map[string]int
	retries int
}

func (m *fakeMetrics) MovementCommitted(kind string) {
	if m.commits == nil {
		m.commits = make(map[string]int)
	}
	m.commits[kind]++
}

func (m *fakeMetrics) ConflictRetry() { m.retries++ }

type fakeReports struct {
	bumps int
}

func (r *fakeReports) Bump(ctx context.Context) error {
	r.bumps++
	return nil
}

type testEnv struct {
	svc     *Service
	repo    *memoryRepo
	stock   *stockStore
	metrics *fakeMetrics
	reports *fakeReports
}

func newTestEnv() *testEnv {
	cat := &fakeCatalog{
		items: map[int64]catalog.Item{
			10: {ID: 10, Code: "AMOX", BaseUnit: "tablet", PackSize: dec("10")},
			11: {ID: 11, Code: "MORPH", BaseUnit: "ampoule", PackSize: dec("5"), Controlled: catalog.ControlledNarcotic},
		},
		warehouses: map[int64]catalog.Warehouse{
			1: {ID: 1, Code: "MAIN", Kind: catalog.WarehouseMain},
			2: {ID: 2, Code: "ICU", Kind: catalog.WarehouseDepartment},
		},
	}
	store := newStockStore()
	repo := newMemoryRepo(store)
	metrics := &fakeMetrics{}
	reports := &fakeReports{}
	svc := NewService(repo, cat, store, stock.NewLedger(), nil, nil, metrics, reports, ServiceConfig{MaxRetries: 3})
	return &testEnv{svc: svc, repo: repo, stock: store, metrics: metrics, reports: reports}
}

func TestReceiptCommitCreatesBatch(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	doc, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{
		Kind:        stock.KindSupplierReceipt,
		WarehouseID: 1,
		ActorID:     7,
		Lines: []ReceiptLineInput{{
			ItemID: 10, LotCode: "L1", Expiry: day("2027-06-01"),
			UnitCost: dec("1000"), Quantity: dec("5"), Unit: stock.UnitPackage,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, doc.Status)

	committed, err := env.svc.Approve(ctx, doc.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusCommitted, committed.Status)
	require.Equal(t, int64(7), committed.CommittedBy)

	require.Len(t, env.stock.batches, 1)
	for _, b := range env.stock.batches {
		require.Equal(t, "L1", b.LotCode)
		require.True(t, b.Quantity.Equal(dec("50")), "5 packages of 10, got %s", b.Quantity)
	}
	require.Len(t, env.stock.entries, 1)
	require.Equal(t, stock.KindSupplierReceipt, env.stock.entries[0].Kind)
	require.Equal(t, int64(7), env.stock.entries[0].ActorID)
	require.Equal(t, 1, env.metrics.commits["SUPPLIER_RECEIPT"])
}

func TestReceiptCostMismatchNeedsCorrectionFlag(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.stock.addBatch(stock.Batch{
		WarehouseID: 1, ItemID: 10, LotCode: "L1",
		Expiry: day("2027-06-01"), UnitCost: dec("1000"), Quantity: dec("50"),
	})

	line := ReceiptLineInput{
		ItemID: 10, LotCode: "L1", Expiry: day("2027-06-01"),
		UnitCost: dec("1200"), Quantity: dec("10"),
	}
	doc, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{
		Kind: stock.KindSupplierReceipt, WarehouseID: 1, Lines: []ReceiptLineInput{line},
	})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, doc.ID, 7)
	require.ErrorIs(t, err, stock.ErrInconsistentBatchCost)
	require.Empty(t, env.stock.entries, "failed commit must leave no entries")

	line.Correction = true
	doc, err = env.svc.CreateReceipt(ctx, CreateReceiptInput{
		Kind: stock.KindSupplierReceipt, WarehouseID: 1, Lines: []ReceiptLineInput{line},
	})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, doc.ID, 7)
	require.NoError(t, err)
}

func TestIssueControlledRequiresAuthorization(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.stock.addBatch(stock.Batch{
		WarehouseID: 1, ItemID: 11, LotCode: "M1",
		Expiry: day("2027-01-01"), Quantity: dec("20"),
	})

	doc, err := env.svc.CreateIssue(ctx, CreateIssueInput{
		Kind: stock.KindDispenseInpatient, WarehouseID: 1,
		Lines: []IssueLineInput{{ItemID: 11, Quantity: dec("2")}},
	})
	require.NoError(t, err)

	_, err = env.svc.Approve(ctx, doc.ID, 7)
	require.ErrorIs(t, err, stock.ErrAuthorizationRequired)
	got, _, _ := env.repo.GetDocument(ctx, doc.ID)
	require.Equal(t, StatusDraft, got.Status)

	doc, err = env.svc.CreateIssue(ctx, CreateIssueInput{
		Kind: stock.KindDispenseInpatient, WarehouseID: 1,
		Lines: []IssueLineInput{{ItemID: 11, Quantity: dec("2"), AuthorizationRef: "RX-4711"}},
	})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, doc.ID, 7)
	require.NoError(t, err)
}

func TestIssueDrawsByExpiryAcrossBatches(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	early := env.stock.addBatch(stock.Batch{
		WarehouseID: 1, ItemID: 10, LotCode: "EARLY", Expiry: day("2026-10-01"), Quantity: dec("10"),
	})
	late := env.stock.addBatch(stock.Batch{
		WarehouseID: 1, ItemID: 10, LotCode: "LATE", Expiry: day("2027-04-01"), Quantity: dec("10"),
	})

	doc, err := env.svc.CreateIssue(ctx, CreateIssueInput{
		Kind: stock.KindDeptIssue, WarehouseID: 1,
		Lines: []IssueLineInput{{ItemID: 10, Quantity: dec("16")}},
	})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, doc.ID, 7)
	require.NoError(t, err)

	require.True(t, env.stock.batches[early].Quantity.IsZero())
	require.True(t, env.stock.batches[late].Quantity.Equal(dec("4")))
	require.Len(t, env.stock.entries, 2)
	require.Equal(t, early, env.stock.entries[0].BatchID)
	require.True(t, env.stock.entries[0].Delta.Equal(dec("-10")))
	require.Equal(t, late, env.stock.entries[1].BatchID)
	require.True(t, env.stock.entries[1].Delta.Equal(dec("-6")))
}

func TestIssuePinnedBatchSkipsPlanning(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.stock.addBatch(stock.Batch{
		WarehouseID: 1, ItemID: 10, LotCode: "EARLY", Expiry: day("2026-10-01"), Quantity: dec("10"),
	})
	late := env.stock.addBatch(stock.Batch{
		WarehouseID: 1, ItemID: 10, LotCode: "LATE", Expiry: day("2027-04-01"), Quantity: dec("10"),
	})

	doc, err := env.svc.CreateIssue(ctx, CreateIssueInput{
		Kind: stock.KindDeptIssue, WarehouseID: 1,
		Lines: []IssueLineInput{{ItemID: 10, Quantity: dec("4"), BatchID: late}},
	})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, doc.ID, 7)
	require.NoError(t, err)

	require.Len(t, env.stock.entries, 1)
	require.Equal(t, late, env.stock.entries[0].BatchID)
	require.True(t, env.stock.batches[late].Quantity.Equal(dec("6")))
}

func TestIssueShortageRollsBackWholeDocument(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	b := env.stock.addBatch(stock.Batch{
		WarehouseID: 1, ItemID: 10, LotCode: "L1", Expiry: day("2027-01-01"), Quantity: dec("10"),
	})

	doc, err := env.svc.CreateIssue(ctx, CreateIssueInput{
		Kind: stock.KindDeptIssue, WarehouseID: 1,
		Lines: []IssueLineInput{
			{ItemID: 10, Quantity: dec("8")},
			{ItemID: 10, Quantity: dec("8")},
		},
	})
	require.NoError(t, err)

	_, err = env.svc.Approve(ctx, doc.ID, 7)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
	require.True(t, env.stock.batches[b].Quantity.Equal(dec("10")), "partial draws must roll back")
	require.Empty(t, env.stock.entries)
	got, _, _ := env.repo.GetDocument(ctx, doc.ID)
	require.Equal(t, StatusDraft, got.Status)
}

func TestTransferMirrorsLotAtDestination(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	src := env.stock.addBatch(stock.Batch{
		WarehouseID: 1, ItemID: 10, LotCode: "L1",
		Expiry: day("2027-03-01"), UnitCost: dec("750"), Quantity: dec("30"),
	})

	doc, err := env.svc.CreateTransfer(ctx, CreateTransferInput{
		SrcWarehouseID: 1, DstWarehouseID: 2,
		Lines: []TransferLineInput{{ItemID: 10, Quantity: dec("12")}},
	})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, doc.ID, 7)
	require.NoError(t, err)

	require.True(t, env.stock.batches[src].Quantity.Equal(dec("18")))
	require.Len(t, env.stock.entries, 2)
	require.Equal(t, stock.KindTransferOut, env.stock.entries[0].Kind)
	require.Equal(t, stock.KindTransferIn, env.stock.entries[1].Kind)

	dest := env.stock.entries[1].BatchID
	require.NotEqual(t, src, dest)
	require.Equal(t, "L1", env.stock.batches[dest].LotCode)
	require.Equal(t, int64(2), env.stock.batches[dest].WarehouseID)
	require.True(t, env.stock.batches[dest].UnitCost.Equal(dec("750")))
	require.True(t, env.stock.batches[dest].Expiry.Equal(day("2027-03-01")))
	require.True(t, env.stock.batches[dest].Quantity.Equal(dec("12")))
}

func TestApproveTwiceReturnsCommittedDocument(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.stock.addBatch(stock.Batch{
		WarehouseID: 1, ItemID: 10, LotCode: "L1", Expiry: day("2027-01-01"), Quantity: dec("10"),
	})

	doc, err := env.svc.CreateIssue(ctx, CreateIssueInput{
		Kind: stock.KindDeptIssue, WarehouseID: 1,
		Lines: []IssueLineInput{{ItemID: 10, Quantity: dec("4")}},
	})
	require.NoError(t, err)

	first, err := env.svc.Approve(ctx, doc.ID, 7)
	require.NoError(t, err)
	second, err := env.svc.Approve(ctx, doc.ID, 7)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, StatusCommitted, second.Status)
	require.Len(t, env.stock.entries, 1, "second approve must not re-apply entries")
	require.Equal(t, 1, env.metrics.commits["DEPT_ISSUE"])
}

func TestApproveRetriesOnConflict(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.stock.addBatch(stock.Batch{
		WarehouseID: 1, ItemID: 10, LotCode: "L1", Expiry: day("2027-01-01"), Quantity: dec("10"),
	})
	doc, err := env.svc.CreateIssue(ctx, CreateIssueInput{
		Kind: stock.KindDeptIssue, WarehouseID: 1,
		Lines: []IssueLineInput{{ItemID: 10, Quantity: dec("4")}},
	})
	require.NoError(t, err)

	env.repo.conflicts = 2
	committed, err := env.svc.Approve(ctx, doc.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusCommitted, committed.Status)
	require.Equal(t, 2, env.metrics.retries)
}

func TestApproveSurfacesConflictAfterRetriesExhausted(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.stock.addBatch(stock.Batch{
		WarehouseID: 1, ItemID: 10, LotCode: "L1", Expiry: day("2027-01-01"), Quantity: dec("10"),
	})
	doc, err := env.svc.CreateIssue(ctx, CreateIssueInput{
		Kind: stock.KindDeptIssue, WarehouseID: 1,
		Lines: []IssueLineInput{{ItemID: 10, Quantity: dec("4")}},
	})
	require.NoError(t, err)

	env.repo.conflicts = 3
	_, err = env.svc.Approve(ctx, doc.ID, 7)
	require.ErrorIs(t, err, stock.ErrConflict)
	require.Equal(t, 3, env.metrics.retries)
	got, _, _ := env.repo.GetDocument(ctx, doc.ID)
	require.Equal(t, StatusDraft, got.Status)
}

func TestCancelWorkflow(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.stock.addBatch(stock.Batch{
		WarehouseID: 1, ItemID: 10, LotCode: "L1", Expiry: day("2027-01-01"), Quantity: dec("10"),
	})

	draft, err := env.svc.CreateIssue(ctx, CreateIssueInput{
		Kind: stock.KindDeptIssue, WarehouseID: 1,
		Lines: []IssueLineInput{{ItemID: 10, Quantity: dec("4")}},
	})
	require.NoError(t, err)

	cancelled, err := env.svc.Cancel(ctx, draft.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	// cancelling twice is a no-op
	again, err := env.svc.Cancel(ctx, draft.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, again.Status)

	// cancelled documents cannot be approved
	_, err = env.svc.Approve(ctx, draft.ID, 7)
	require.ErrorIs(t, err, ErrInvalidState)

	committed, err := env.svc.CreateIssue(ctx, CreateIssueInput{
		Kind: stock.KindDeptIssue, WarehouseID: 1,
		Lines: []IssueLineInput{{ItemID: 10, Quantity: dec("4")}},
	})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, committed.ID, 7)
	require.NoError(t, err)

	_, err = env.svc.Cancel(ctx, committed.ID, 7)
	require.ErrorIs(t, err, stock.ErrAlreadyCommitted)
}

func TestReversalNegatesOriginalEntries(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	receipt, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{
		Kind: stock.KindSupplierReceipt, WarehouseID: 1,
		Lines: []ReceiptLineInput{{
			ItemID: 10, LotCode: "L1", Expiry: day("2027-06-01"),
			UnitCost: dec("1000"), Quantity: dec("30"),
		}},
	})
	require.NoError(t, err)
	receipt, err = env.svc.Approve(ctx, receipt.ID, 7)
	require.NoError(t, err)

	// reversing a draft is rejected
	draft, err := env.svc.CreateIssue(ctx, CreateIssueInput{
		Kind: stock.KindDeptIssue, WarehouseID: 1,
		Lines: []IssueLineInput{{ItemID: 10, Quantity: dec("1")}},
	})
	require.NoError(t, err)
	_, err = env.svc.CreateReversal(ctx, draft.ID, 7, "")
	require.ErrorIs(t, err, ErrInvalidState)

	reversal, err := env.svc.CreateReversal(ctx, receipt.ID, 7, "wrong delivery")
	require.NoError(t, err)
	require.Equal(t, DocReversal, reversal.Kind)
	require.Equal(t, receipt.ID, reversal.ReversalOfID)

	_, err = env.svc.Approve(ctx, reversal.ID, 7)
	require.NoError(t, err)

	original, _ := env.stock.EntriesByDocument(ctx, receipt.ID)
	require.Len(t, original, 1, "original history stays untouched")
	negated, _ := env.stock.EntriesByDocument(ctx, reversal.ID)
	require.Len(t, negated, 1)
	require.True(t, negated[0].Delta.Equal(dec("-30")))

	for _, b := range env.stock.batches {
		require.True(t, b.Quantity.IsZero(), "reversal must zero the batch, got %s", b.Quantity)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{Kind: stock.KindDeptIssue, WarehouseID: 1})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.CreateIssue(ctx, CreateIssueInput{Kind: stock.KindSupplierReceipt, WarehouseID: 1})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.CreateTransfer(ctx, CreateTransferInput{SrcWarehouseID: 1, DstWarehouseID: 1})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.CreateReceipt(ctx, CreateReceiptInput{
		Kind: stock.KindSupplierReceipt, WarehouseID: 99,
		Lines: []ReceiptLineInput{{ItemID: 10, LotCode: "L1", Expiry: day("2027-01-01"), Quantity: dec("1")}},
	})
	require.ErrorIs(t, err, catalog.ErrWarehouseNotFound)
}

func TestApproveInvalidatesReportCache(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	doc, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{
		Kind:        stock.KindSupplierReceipt,
		WarehouseID: 1,
		ActorID:     7,
		Lines: []ReceiptLineInput{{
			ItemID: 10, LotCode: "L1", Expiry: day("2027-06-01"),
			UnitCost: dec("1000"), Quantity: dec("2"), Unit: stock.UnitPackage,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, 0, env.reports.bumps, "drafting must not invalidate reports")

	_, err = env.svc.Approve(ctx, doc.ID, 7)
	require.NoError(t, err)
	require.Equal(t, 1, env.reports.bumps)

	issue, err := env.svc.CreateIssue(ctx, CreateIssueInput{
		Kind:        stock.KindDeptIssue,
		WarehouseID: 1,
		ActorID:     7,
		Lines:       []IssueLineInput{{ItemID: 10, Quantity: dec("999")}},
	})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, issue.ID, 7)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
	require.Equal(t, 1, env.reports.bumps, "failed commit must not invalidate reports")
}
