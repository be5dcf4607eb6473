package movement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-his/meridian-his/internal/catalog"
	"github.com/meridian-his/meridian-his/internal/shared"
	"github.com/meridian-his/meridian-his/internal/stock"
)

// RepositoryPort abstracts document persistence for the coordinator.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDocument(ctx context.Context, id int64) (Document, []Line, error)
}

// TxRepository exposes transactional document operations plus the stock
// ledger surface sharing the same transaction.
type TxRepository interface {
	InsertDocument(ctx context.Context, doc Document) (int64, error)
	InsertLines(ctx context.Context, documentID int64, lines []Line) error
	DocumentForUpdate(ctx context.Context, id int64) (Document, []Line, error)
	SetStatus(ctx context.Context, id int64, status DocumentStatus, actorID int64, at time.Time) error
	Stock() stock.TxRepository
}

// CatalogPort exposes the master data the coordinator needs.
type CatalogPort interface {
	GetItem(ctx context.Context, id int64) (catalog.Item, error)
	GetWarehouse(ctx context.Context, id int64) (catalog.Warehouse, error)
}

// StockReaderPort reads committed ledger state outside transactions.
type StockReaderPort interface {
	EntriesByDocument(ctx context.Context, documentID int64) ([]stock.LedgerEntry, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics counts coordinator outcomes.
type Metrics interface {
	MovementCommitted(kind string)
	ConflictRetry()
}

// ReportsPort invalidates cached stock reports after quantities change.
type ReportsPort interface {
	Bump(ctx context.Context) error
}

// Service is the movement transaction coordinator: it turns business
// documents into atomic ledger commits, with bounded replanning when
// concurrent movements collide on the same stock rows.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	stockReader StockReaderPort
	ledger      *stock.Ledger
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     Metrics
	reports     ReportsPort
	maxRetries  int
	now         func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// MaxRetries bounds Conflict replanning before the error surfaces.
	MaxRetries int
}

// NewService builds the coordinator.
func NewService(repo RepositoryPort, cat CatalogPort, reader StockReaderPort, ledger *stock.Ledger, audit AuditPort, idem *shared.IdempotencyStore, metrics Metrics, reports ReportsPort, cfg ServiceConfig) *Service {
	if ledger == nil {
		ledger = stock.NewLedger()
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Service{
		repo:        repo,
		catalog:     cat,
		stockReader: reader,
		ledger:      ledger,
		audit:       audit,
		idempotency: idem,
		metrics:     metrics,
		reports:     reports,
		maxRetries:  retries,
		now:         time.Now,
	}
}

// ReceiptLineInput describes one received lot.
type ReceiptLineInput struct {
	ItemID     int64
	LotCode    string
	Expiry     time.Time
	UnitCost   decimal.Decimal
	Quantity   decimal.Decimal
	Unit       stock.Unit
	Correction bool
	Note       string
}

// CreateReceiptInput describes an inbound document.
type CreateReceiptInput struct {
	Kind        stock.MovementKind
	WarehouseID int64
	Number      string
	Note        string
	ActorID     int64
	Lines       []ReceiptLineInput
}

// CreateReceipt persists a draft inbound document.
func (s *Service) CreateReceipt(ctx context.Context, input CreateReceiptInput) (Document, error) {
	if !input.Kind.Inbound() {
		return Document{}, fmt.Errorf("%w: %s is not an inbound kind", ErrValidation, input.Kind)
	}
	if len(input.Lines) == 0 {
		return Document{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	if _, err := s.catalog.GetWarehouse(ctx, input.WarehouseID); err != nil {
		return Document{}, err
	}
	lines := make([]Line, 0, len(input.Lines))
	for i, in := range input.Lines {
		if in.ItemID == 0 || in.Quantity.LessThanOrEqual(decimal.Zero) {
			return Document{}, fmt.Errorf("%w: line %d requires item and positive quantity", ErrValidation, i)
		}
		if in.LotCode == "" || in.Expiry.IsZero() {
			return Document{}, fmt.Errorf("%w: line %d requires lot code and expiry", ErrValidation, i)
		}
		if in.UnitCost.IsNegative() {
			return Document{}, fmt.Errorf("%w: line %d unit cost must be >= 0", ErrValidation, i)
		}
		lines = append(lines, Line{
			Seq: i, ItemID: in.ItemID, LotCode: in.LotCode, Expiry: in.Expiry,
			UnitCost: in.UnitCost, Quantity: in.Quantity, Unit: in.Unit,
			Correction: in.Correction, Note: in.Note,
		})
	}
	doc := Document{
		Number:      defaultNumber(input.Number, "RCV"),
		Kind:        DocReceipt,
		Movement:    input.Kind,
		WarehouseID: input.WarehouseID,
		Status:      StatusDraft,
		Note:        input.Note,
		CreatedBy:   input.ActorID,
	}
	return s.createDraft(ctx, doc, lines)
}

// IssueLineInput describes one outbound line.
type IssueLineInput struct {
	ItemID           int64
	Quantity         decimal.Decimal
	Unit             stock.Unit
	BatchID          int64
	AuthorizationRef string
	Note             string
}

// CreateIssueInput describes an outbound document.
type CreateIssueInput struct {
	Kind        stock.MovementKind
	WarehouseID int64
	Number      string
	Note        string
	ActorID     int64
	Lines       []IssueLineInput
}

// CreateIssue persists a draft outbound document. Batch selection happens
// at approve time under the commit transaction.
func (s *Service) CreateIssue(ctx context.Context, input CreateIssueInput) (Document, error) {
	if !input.Kind.Outbound() || input.Kind == stock.KindTransferOut {
		return Document{}, fmt.Errorf("%w: %s is not an issue kind", ErrValidation, input.Kind)
	}
	if len(input.Lines) == 0 {
		return Document{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	if _, err := s.catalog.GetWarehouse(ctx, input.WarehouseID); err != nil {
		return Document{}, err
	}
	lines := make([]Line, 0, len(input.Lines))
	for i, in := range input.Lines {
		if in.ItemID == 0 || in.Quantity.LessThanOrEqual(decimal.Zero) {
			return Document{}, fmt.Errorf("%w: line %d requires item and positive quantity", ErrValidation, i)
		}
		lines = append(lines, Line{
			Seq: i, ItemID: in.ItemID, Quantity: in.Quantity, Unit: in.Unit,
			BatchID: in.BatchID, AuthorizationRef: in.AuthorizationRef, Note: in.Note,
		})
	}
	doc := Document{
		Number:      defaultNumber(input.Number, "ISS"),
		Kind:        DocIssue,
		Movement:    input.Kind,
		WarehouseID: input.WarehouseID,
		Status:      StatusDraft,
		Note:        input.Note,
		CreatedBy:   input.ActorID,
	}
	return s.createDraft(ctx, doc, lines)
}

// TransferLineInput describes one transferred line.
type TransferLineInput struct {
	ItemID   int64
	Quantity decimal.Decimal
	Unit     stock.Unit
	BatchID  int64
	Note     string
}

// CreateTransferInput describes a warehouse-to-warehouse movement.
type CreateTransferInput struct {
	SrcWarehouseID int64
	DstWarehouseID int64
	Number         string
	Note           string
	ActorID        int64
	Lines          []TransferLineInput
}

// CreateTransfer persists a draft transfer document.
func (s *Service) CreateTransfer(ctx context.Context, input CreateTransferInput) (Document, error) {
	if input.SrcWarehouseID == input.DstWarehouseID {
		return Document{}, fmt.Errorf("%w: source and destination must differ", ErrValidation)
	}
	if len(input.Lines) == 0 {
		return Document{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	if _, err := s.catalog.GetWarehouse(ctx, input.SrcWarehouseID); err != nil {
		return Document{}, err
	}
	if _, err := s.catalog.GetWarehouse(ctx, input.DstWarehouseID); err != nil {
		return Document{}, err
	}
	lines := make([]Line, 0, len(input.Lines))
	for i, in := range input.Lines {
		if in.ItemID == 0 || in.Quantity.LessThanOrEqual(decimal.Zero) {
			return Document{}, fmt.Errorf("%w: line %d requires item and positive quantity", ErrValidation, i)
		}
		lines = append(lines, Line{Seq: i, ItemID: in.ItemID, Quantity: in.Quantity, Unit: in.Unit, BatchID: in.BatchID, Note: in.Note})
	}
	doc := Document{
		Number:          defaultNumber(input.Number, "TRF"),
		Kind:            DocTransfer,
		Movement:        stock.KindTransferOut,
		WarehouseID:     input.SrcWarehouseID,
		DestWarehouseID: input.DstWarehouseID,
		Status:          StatusDraft,
		Note:            input.Note,
		CreatedBy:       input.ActorID,
	}
	return s.createDraft(ctx, doc, lines)
}

func (s *Service) createDraft(ctx context.Context, doc Document, lines []Line) (Document, error) {
	for _, line := range lines {
		if _, err := s.catalog.GetItem(ctx, line.ItemID); err != nil {
			return Document{}, err
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertDocument(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = id
		return tx.InsertLines(ctx, id, lines)
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, doc.CreatedBy, "movement:create", doc.ID, map[string]any{
		"number": doc.Number, "kind": string(doc.Kind), "movement": string(doc.Movement),
	})
	return doc, nil
}

// Approve plans the concrete ledger entries for a draft document and
// commits them atomically with the projection update. Replanning happens
// from fresh locked state on Conflict, a bounded number of times. Approving
// an already committed document returns it unchanged.
func (s *Service) Approve(ctx context.Context, documentID int64, actorID int64) (Document, error) {
	doc, _, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	switch doc.Status {
	case StatusCommitted:
		return doc, nil
	case StatusCancelled:
		return Document{}, fmt.Errorf("%w: document %s is cancelled", ErrInvalidState, doc.Number)
	}

	idemKey := fmt.Sprintf("DOC:%d:APPROVE", documentID)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "movement"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				// Another submission won the race; report its outcome.
				committed, _, gerr := s.repo.GetDocument(ctx, documentID)
				if gerr == nil && committed.Status == StatusCommitted {
					return committed, nil
				}
			}
			return Document{}, err
		}
		insertedKey = true
	}

	var committed Document
	err = s.commitWithRetry(ctx, documentID, actorID, &committed)
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return Document{}, err
	}
	if s.metrics != nil {
		s.metrics.MovementCommitted(string(committed.Movement))
	}
	if s.reports != nil {
		// Commit is durable at this point; a failed bump ages out via TTL.
		_ = s.reports.Bump(ctx)
	}
	s.recordAudit(ctx, actorID, "movement:commit", committed.ID, map[string]any{
		"number": committed.Number, "movement": string(committed.Movement),
	})
	return committed, nil
}

func (s *Service) commitWithRetry(ctx context.Context, documentID, actorID int64, out *Document) error {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return s.commit(ctx, tx, documentID, actorID, out)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, stock.ErrConflict) {
			lastErr = err
			if s.metrics != nil {
				s.metrics.ConflictRetry()
			}
			continue
		}
		return err
	}
	return lastErr
}

// commit runs entirely inside one store transaction: it re-reads the
// document and the candidate batches under row locks, replans, applies
// ledger entries and flips the status. Any error rolls the whole unit back.
func (s *Service) commit(ctx context.Context, tx TxRepository, documentID, actorID int64, out *Document) error {
	doc, lines, err := tx.DocumentForUpdate(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status == StatusCommitted {
		*out = doc
		return nil
	}
	if doc.Status == StatusCancelled {
		return fmt.Errorf("%w: document %s is cancelled", ErrInvalidState, doc.Number)
	}

	var entries []stock.LedgerEntry
	switch doc.Kind {
	case DocReceipt:
		entries, err = s.planReceipt(ctx, tx, doc, lines)
	case DocIssue:
		entries, err = s.planIssue(ctx, tx, doc, lines)
	case DocTransfer:
		entries, err = s.planTransfer(ctx, tx, doc, lines)
	case DocReversal:
		entries, err = s.planReversal(ctx, doc)
	default:
		err = fmt.Errorf("%w: unknown document kind %q", ErrValidation, doc.Kind)
	}
	if err != nil {
		return err
	}
	for i := range entries {
		entries[i].ActorID = actorID
	}
	if _, err := s.ledger.Apply(ctx, tx.Stock(), entries); err != nil {
		return err
	}
	now := s.now().UTC()
	if err := tx.SetStatus(ctx, doc.ID, StatusCommitted, actorID, now); err != nil {
		return err
	}
	doc.Status = StatusCommitted
	doc.CommittedBy = actorID
	doc.CommittedAt = now
	*out = doc
	return nil
}

func (s *Service) planReceipt(ctx context.Context, tx TxRepository, doc Document, lines []Line) ([]stock.LedgerEntry, error) {
	stx := tx.Stock()
	seq := 0
	entries := make([]stock.LedgerEntry, 0, len(lines))
	for _, line := range lines {
		item, err := s.catalog.GetItem(ctx, line.ItemID)
		if err != nil {
			return nil, err
		}
		base, err := stock.ToBaseUnits(item.ID, item.Conversion(), line.Quantity, line.Unit)
		if err != nil {
			return nil, err
		}
		batch, err := stx.FindBatchForUpdate(ctx, doc.WarehouseID, line.ItemID, line.LotCode)
		var batchID int64
		switch {
		case err == nil:
			// Cost basis is tracked per lot: re-receiving a lot at another
			// cost needs an explicit correction flag.
			if !batch.UnitCost.Equal(line.UnitCost) && !line.Correction {
				return nil, stock.NewError(stock.KindInconsistentBatchCost, doc.WarehouseID, line.ItemID, batch.ID,
					fmt.Sprintf("lot %s received at %s, batch cost is %s", line.LotCode, line.UnitCost, batch.UnitCost))
			}
			batchID = batch.ID
		case errors.Is(err, stock.ErrBatchNotFound):
			batchID, err = stx.InsertBatch(ctx, stock.Batch{
				WarehouseID: doc.WarehouseID,
				ItemID:      line.ItemID,
				LotCode:     line.LotCode,
				Expiry:      line.Expiry,
				UnitCost:    line.UnitCost,
				Quantity:    decimal.Zero,
				ReceivedAt:  s.now().UTC(),
				SourceDocID: doc.ID,
			})
			if err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
		entries = append(entries, stock.LedgerEntry{
			WarehouseID: doc.WarehouseID,
			ItemID:      line.ItemID,
			BatchID:     batchID,
			Delta:       base,
			Kind:        doc.Movement,
			DocumentID:  doc.ID,
			LineSeq:     seq,
			Note:        line.Note,
		})
		seq++
	}
	return entries, nil
}

func (s *Service) planIssue(ctx context.Context, tx TxRepository, doc Document, lines []Line) ([]stock.LedgerEntry, error) {
	stx := tx.Stock()
	seq := 0
	var entries []stock.LedgerEntry
	// Locked snapshots per item; draws within this document are tracked
	// locally so later lines see earlier consumption.
	snapshots := map[int64][]stock.Batch{}
	for _, line := range lines {
		item, err := s.catalog.GetItem(ctx, line.ItemID)
		if err != nil {
			return nil, err
		}
		if item.Controlled.Controlled() && line.AuthorizationRef == "" {
			return nil, stock.NewError(stock.KindAuthorizationRequired, doc.WarehouseID, item.ID, 0,
				"controlled item requires dispensing authorization")
		}
		base, err := stock.ToBaseUnits(item.ID, item.Conversion(), line.Quantity, line.Unit)
		if err != nil {
			return nil, err
		}
		draws, err := s.drawFor(ctx, stx, snapshots, doc.WarehouseID, line, base)
		if err != nil {
			return nil, err
		}
		for _, draw := range draws {
			entries = append(entries, stock.LedgerEntry{
				WarehouseID: doc.WarehouseID,
				ItemID:      line.ItemID,
				BatchID:     draw.BatchID,
				Delta:       draw.Quantity.Neg(),
				Kind:        doc.Movement,
				DocumentID:  doc.ID,
				LineSeq:     seq,
				Note:        line.Note,
			})
			seq++
		}
	}
	return entries, nil
}

func (s *Service) planTransfer(ctx context.Context, tx TxRepository, doc Document, lines []Line) ([]stock.LedgerEntry, error) {
	if _, err := s.catalog.GetWarehouse(ctx, doc.WarehouseID); err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetWarehouse(ctx, doc.DestWarehouseID); err != nil {
		return nil, err
	}
	stx := tx.Stock()
	seq := 0
	var entries []stock.LedgerEntry
	snapshots := map[int64][]stock.Batch{}
	for _, line := range lines {
		item, err := s.catalog.GetItem(ctx, line.ItemID)
		if err != nil {
			return nil, err
		}
		base, err := stock.ToBaseUnits(item.ID, item.Conversion(), line.Quantity, line.Unit)
		if err != nil {
			return nil, err
		}
		draws, err := s.drawFor(ctx, stx, snapshots, doc.WarehouseID, line, base)
		if err != nil {
			return nil, err
		}
		for _, draw := range draws {
			entries = append(entries, stock.LedgerEntry{
				WarehouseID: doc.WarehouseID,
				ItemID:      line.ItemID,
				BatchID:     draw.BatchID,
				Delta:       draw.Quantity.Neg(),
				Kind:        stock.KindTransferOut,
				DocumentID:  doc.ID,
				LineSeq:     seq,
				Note:        line.Note,
			})
			seq++
			// Mirror the lot at the destination, preserving expiry and cost.
			dest, err := stx.FindBatchForUpdate(ctx, doc.DestWarehouseID, line.ItemID, draw.LotCode)
			var destID int64
			switch {
			case err == nil:
				destID = dest.ID
			case errors.Is(err, stock.ErrBatchNotFound):
				destID, err = stx.InsertBatch(ctx, stock.Batch{
					WarehouseID: doc.DestWarehouseID,
					ItemID:      line.ItemID,
					LotCode:     draw.LotCode,
					Expiry:      draw.Expiry,
					UnitCost:    draw.UnitCost,
					Quantity:    decimal.Zero,
					ReceivedAt:  s.now().UTC(),
					SourceDocID: doc.ID,
				})
				if err != nil {
					return nil, err
				}
			default:
				return nil, err
			}
			entries = append(entries, stock.LedgerEntry{
				WarehouseID: doc.DestWarehouseID,
				ItemID:      line.ItemID,
				BatchID:     destID,
				Delta:       draw.Quantity,
				Kind:        stock.KindTransferIn,
				DocumentID:  doc.ID,
				LineSeq:     seq,
				Note:        line.Note,
			})
			seq++
		}
	}
	return entries, nil
}

// drawFor resolves one outbound line to batch draws against the locked
// snapshot, honoring an explicit batch pin when present.
func (s *Service) drawFor(ctx context.Context, stx stock.TxRepository, snapshots map[int64][]stock.Batch, warehouseID int64, line Line, base decimal.Decimal) ([]stock.BatchDraw, error) {
	batches, ok := snapshots[line.ItemID]
	if !ok {
		var err error
		batches, err = stx.BatchesForUpdate(ctx, warehouseID, line.ItemID)
		if err != nil {
			return nil, err
		}
	}
	var draws []stock.BatchDraw
	if line.BatchID != 0 {
		idx := -1
		for i, b := range batches {
			if b.ID == line.BatchID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, stock.ErrBatchNotFound
		}
		if batches[idx].Quantity.LessThan(base) {
			return nil, stock.NewError(stock.KindInsufficientStock, warehouseID, line.ItemID, line.BatchID,
				"pinned batch has "+batches[idx].Quantity.String()+", requested "+base.String())
		}
		b := batches[idx]
		draws = []stock.BatchDraw{{BatchID: b.ID, LotCode: b.LotCode, Expiry: b.Expiry, Quantity: base, UnitCost: b.UnitCost}}
	} else {
		plan, err := stock.PlanFEFO(batches, base)
		if err != nil {
			var se *stock.Error
			if errors.As(err, &se) && se.WarehouseID == 0 {
				se.WarehouseID, se.ItemID = warehouseID, line.ItemID
			}
			return nil, err
		}
		draws = plan
	}
	// Deduct locally so later lines of this document replan correctly.
	for _, draw := range draws {
		for i := range batches {
			if batches[i].ID == draw.BatchID {
				batches[i].Quantity = batches[i].Quantity.Sub(draw.Quantity)
			}
		}
	}
	snapshots[line.ItemID] = batches
	return draws, nil
}

// planReversal negates the original document's committed entries under a
// fresh document id. The original history is untouched.
func (s *Service) planReversal(ctx context.Context, doc Document) ([]stock.LedgerEntry, error) {
	if doc.ReversalOfID == 0 {
		return nil, fmt.Errorf("%w: reversal document missing original reference", ErrValidation)
	}
	original, err := s.stockReader.EntriesByDocument(ctx, doc.ReversalOfID)
	if err != nil {
		return nil, err
	}
	if len(original) == 0 {
		return nil, fmt.Errorf("%w: original document %d has no ledger entries", ErrValidation, doc.ReversalOfID)
	}
	entries := make([]stock.LedgerEntry, 0, len(original))
	for i, e := range original {
		entries = append(entries, stock.LedgerEntry{
			WarehouseID: e.WarehouseID,
			ItemID:      e.ItemID,
			BatchID:     e.BatchID,
			Delta:       e.Delta.Neg(),
			Kind:        e.Kind,
			DocumentID:  doc.ID,
			LineSeq:     i,
			Note:        fmt.Sprintf("reversal of document %d", doc.ReversalOfID),
		})
	}
	return entries, nil
}

// Cancel discards a draft document. Committed documents cannot be
// cancelled; callers must create a reversal instead. Cancelling twice is
// a no-op.
func (s *Service) Cancel(ctx context.Context, documentID int64, actorID int64) (Document, error) {
	var cancelled Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, _, err := tx.DocumentForUpdate(ctx, documentID)
		if err != nil {
			return err
		}
		switch doc.Status {
		case StatusCommitted:
			return stock.NewError(stock.KindAlreadyCommitted, doc.WarehouseID, 0, 0,
				fmt.Sprintf("document %s already committed; create a reversal", doc.Number))
		case StatusCancelled:
			cancelled = doc
			return nil
		}
		if err := tx.SetStatus(ctx, doc.ID, StatusCancelled, actorID, s.now().UTC()); err != nil {
			return err
		}
		doc.Status = StatusCancelled
		cancelled = doc
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, actorID, "movement:cancel", cancelled.ID, map[string]any{"number": cancelled.Number})
	return cancelled, nil
}

// CreateReversal opens a draft document that, once approved, negates every
// ledger entry the original produced.
func (s *Service) CreateReversal(ctx context.Context, documentID int64, actorID int64, note string) (Document, error) {
	original, _, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if original.Status != StatusCommitted {
		return Document{}, fmt.Errorf("%w: only committed documents can be reversed", ErrInvalidState)
	}
	doc := Document{
		Number:          defaultNumber("", "REV"),
		Kind:            DocReversal,
		Movement:        original.Movement,
		WarehouseID:     original.WarehouseID,
		DestWarehouseID: original.DestWarehouseID,
		Status:          StatusDraft,
		ReversalOfID:    original.ID,
		Note:            note,
		CreatedBy:       actorID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertDocument(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = id
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, actorID, "movement:reverse", doc.ID, map[string]any{
		"number": doc.Number, "original": original.Number,
	})
	return doc, nil
}

// GetDocument loads a document with its lines.
func (s *Service) GetDocument(ctx context.Context, documentID int64) (Document, []Line, error) {
	return s.repo.GetDocument(ctx, documentID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "movement_doc",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}

func defaultNumber(number, prefix string) string {
	if number != "" {
		return number
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}
