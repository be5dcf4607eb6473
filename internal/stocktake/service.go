package stocktake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-his/meridian-his/internal/catalog"
	"github.com/meridian-his/meridian-his/internal/shared"
	"github.com/meridian-his/meridian-his/internal/stock"
)

// RepositoryPort abstracts period persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPeriod(ctx context.Context, id int64) (Period, error)
	ListCounts(ctx context.Context, periodID int64) ([]Count, error)
}

// TxRepository exposes transactional period operations plus the ledger
// surface in the same unit of work.
type TxRepository interface {
	InsertPeriod(ctx context.Context, p Period) (int64, error)
	PeriodForUpdate(ctx context.Context, id int64) (Period, error)
	UpsertCount(ctx context.Context, c Count) error
	CountsForUpdate(ctx context.Context, periodID int64) ([]Count, error)
	SetStatus(ctx context.Context, id int64, status PeriodStatus, actorID int64, at time.Time) error
	Stock() stock.TxRepository
}

// CatalogPort exposes warehouse lookups.
type CatalogPort interface {
	GetWarehouse(ctx context.Context, id int64) (catalog.Warehouse, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportsPort invalidates cached stock reports after adjustments land.
type ReportsPort interface {
	Bump(ctx context.Context) error
}

// Service reconciles physical stock counts against the projected balance
// and emits compensating adjustment entries through the ledger.
type Service struct {
	repo       RepositoryPort
	catalog    CatalogPort
	ledger     *stock.Ledger
	audit      AuditPort
	reports    ReportsPort
	maxRetries int
	now        func() time.Time
}

// NewService builds the reconciler.
func NewService(repo RepositoryPort, cat CatalogPort, ledger *stock.Ledger, audit AuditPort, reports ReportsPort, maxRetries int) *Service {
	if ledger == nil {
		ledger = stock.NewLedger()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{repo: repo, catalog: cat, ledger: ledger, audit: audit, reports: reports, maxRetries: maxRetries, now: time.Now}
}

// Create opens a counting period for a warehouse.
func (s *Service) Create(ctx context.Context, warehouseID int64, from, to time.Time, actorID int64) (Period, error) {
	if warehouseID == 0 {
		return Period{}, fmt.Errorf("%w: warehouse required", ErrValidation)
	}
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return Period{}, fmt.Errorf("%w: period range invalid", ErrValidation)
	}
	if _, err := s.catalog.GetWarehouse(ctx, warehouseID); err != nil {
		return Period{}, err
	}
	p := Period{WarehouseID: warehouseID, From: from, To: to, Status: StatusOpen, CreatedBy: actorID}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPeriod(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.recordAudit(ctx, actorID, "stocktake:create", p.ID, map[string]any{"warehouse_id": warehouseID})
	return p, nil
}

// CountInput is one physical count to record.
type CountInput struct {
	ItemID   int64
	BatchID  int64
	Physical decimal.Decimal
}

// RecordCounts stores physical counts for an open period. Re-recording a
// (item, batch) key overwrites the prior value.
func (s *Service) RecordCounts(ctx context.Context, periodID int64, counts []CountInput, actorID int64) (Period, error) {
	if len(counts) == 0 {
		return Period{}, fmt.Errorf("%w: at least one count required", ErrValidation)
	}
	var updated Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.PeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if p.Status == StatusCompleted {
			return stock.NewError(stock.KindAlreadyCompleted, p.WarehouseID, 0, 0,
				fmt.Sprintf("period %d is completed", p.ID))
		}
		now := s.now().UTC()
		for _, c := range counts {
			if c.ItemID == 0 {
				return fmt.Errorf("%w: count requires item", ErrValidation)
			}
			if c.Physical.IsNegative() {
				return fmt.Errorf("%w: physical count must be >= 0", ErrValidation)
			}
			if err := tx.UpsertCount(ctx, Count{
				PeriodID: p.ID, ItemID: c.ItemID, BatchID: c.BatchID,
				Physical: c.Physical, RecordedBy: actorID, RecordedAt: now,
			}); err != nil {
				return err
			}
		}
		if p.Status == StatusOpen {
			if err := tx.SetStatus(ctx, p.ID, StatusCountRecorded, actorID, now); err != nil {
				return err
			}
			p.Status = StatusCountRecorded
		}
		updated = p
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	return updated, nil
}

// Complete compares every counted key with the projected balance and
// writes compensating STOCK_TAKE_ADJUSTMENT entries, then transitions the
// period to its terminal state. Items never counted are left untouched.
func (s *Service) Complete(ctx context.Context, periodID int64, actorID int64) (Period, []Adjustment, error) {
	var (
		completed   Period
		adjustments []Adjustment
		lastErr     error
	)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		adjustments = nil
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			p, err := tx.PeriodForUpdate(ctx, periodID)
			if err != nil {
				return err
			}
			if p.Status == StatusCompleted {
				return stock.NewError(stock.KindAlreadyCompleted, p.WarehouseID, 0, 0,
					fmt.Sprintf("period %d is completed", p.ID))
			}
			counts, err := tx.CountsForUpdate(ctx, p.ID)
			if err != nil {
				return err
			}
			entries, adj, err := s.reconcile(ctx, tx.Stock(), p, counts, actorID)
			if err != nil {
				return err
			}
			if _, err := s.ledger.Apply(ctx, tx.Stock(), entries); err != nil {
				return err
			}
			now := s.now().UTC()
			if err := tx.SetStatus(ctx, p.ID, StatusCompleted, actorID, now); err != nil {
				return err
			}
			p.Status = StatusCompleted
			p.CompletedBy = actorID
			p.CompletedAt = now
			completed = p
			adjustments = adj
			return nil
		})
		if err == nil {
			if s.reports != nil && len(adjustments) > 0 {
				_ = s.reports.Bump(ctx)
			}
			s.recordAudit(ctx, actorID, "stocktake:complete", completed.ID, map[string]any{
				"adjustments": len(adjustments),
			})
			return completed, adjustments, nil
		}
		if errors.Is(err, stock.ErrConflict) {
			lastErr = err
			continue
		}
		return Period{}, nil, err
	}
	return Period{}, nil, lastErr
}

// reconcile turns counts into adjustment entries. Batch-level counts
// adjust their batch directly. Item-level counts allocate shortfalls FEFO
// and attach surplus to the longest-dated batch; a surplus with no live
// batch gets an uncosted adjustment lot for pharmacist review.
// Batch-level deltas land first and item-level counts compute against the
// corrected quantities, so a period mixing both count kinds for one item
// settles on the item's physical total.
func (s *Service) reconcile(ctx context.Context, stx stock.TxRepository, p Period, counts []Count, actorID int64) ([]stock.LedgerEntry, []Adjustment, error) {
	seq := 0
	var entries []stock.LedgerEntry
	var adjustments []Adjustment
	appendEntry := func(itemID, batchID int64, delta decimal.Decimal) {
		entries = append(entries, stock.LedgerEntry{
			WarehouseID: p.WarehouseID,
			ItemID:      itemID,
			BatchID:     batchID,
			Delta:       delta,
			Kind:        stock.KindStockTakeAdjust,
			DocumentID:  p.ID,
			LineSeq:     seq,
			ActorID:     actorID,
			Note:        fmt.Sprintf("stock take period %d", p.ID),
		})
		adjustments = append(adjustments, Adjustment{ItemID: itemID, BatchID: batchID, Delta: delta})
		seq++
	}

	batchDeltas := map[int64]decimal.Decimal{}
	for _, c := range counts {
		if c.BatchID == 0 {
			continue
		}
		batch, err := stx.BatchForUpdate(ctx, c.BatchID)
		if err != nil {
			return nil, nil, err
		}
		delta := c.Physical.Sub(batch.Quantity)
		if !delta.IsZero() {
			appendEntry(c.ItemID, c.BatchID, delta)
			batchDeltas[c.BatchID] = batchDeltas[c.BatchID].Add(delta)
		}
	}

	for _, c := range counts {
		if c.BatchID != 0 {
			continue
		}
		batches, err := stx.BatchesForUpdate(ctx, p.WarehouseID, c.ItemID)
		if err != nil {
			return nil, nil, err
		}
		for i := range batches {
			if d, ok := batchDeltas[batches[i].ID]; ok {
				batches[i].Quantity = batches[i].Quantity.Add(d)
			}
		}
		projected := stock.Available(batches)
		delta := c.Physical.Sub(projected)
		switch {
		case delta.IsZero():
		case delta.IsNegative():
			plan, err := stock.PlanFEFO(batches, delta.Neg())
			if err != nil {
				return nil, nil, err
			}
			for _, draw := range plan {
				appendEntry(c.ItemID, draw.BatchID, draw.Quantity.Neg())
			}
		default:
			var target int64
			for _, b := range batches {
				if b.Quantity.GreaterThan(decimal.Zero) {
					target = b.ID
				}
			}
			if target == 0 {
				target, err = stx.InsertBatch(ctx, stock.Batch{
					WarehouseID: p.WarehouseID,
					ItemID:      c.ItemID,
					LotCode:     fmt.Sprintf("ST%d", p.ID),
					Expiry:      p.To.AddDate(1, 0, 0),
					UnitCost:    decimal.Zero,
					Quantity:    decimal.Zero,
					ReceivedAt:  s.now().UTC(),
					SourceDocID: p.ID,
				})
				if err != nil {
					return nil, nil, err
				}
			}
			appendEntry(c.ItemID, target, delta)
		}
	}
	return entries, adjustments, nil
}

// GetPeriod loads one period.
func (s *Service) GetPeriod(ctx context.Context, id int64) (Period, error) {
	return s.repo.GetPeriod(ctx, id)
}

// Counts lists the recorded counts of a period.
func (s *Service) Counts(ctx context.Context, periodID int64) ([]Count, error) {
	return s.repo.ListCounts(ctx, periodID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stocktake_period",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
