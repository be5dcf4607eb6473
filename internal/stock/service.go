package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-his/meridian-his/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	QuantityOnHand(ctx context.Context, warehouseID, itemID int64) (decimal.Decimal, error)
	BatchesFor(ctx context.Context, warehouseID, itemID int64) ([]Batch, error)
	ExpiringWithin(ctx context.Context, days int) ([]ExpiryWarning, error)
	BelowReorderPoint(ctx context.Context) ([]ReorderWarning, error)
	StockCard(ctx context.Context, warehouseID, itemID int64, from, to time.Time, limit int) ([]CardEntry, error)
	ReplayBalance(ctx context.Context, warehouseID, itemID, batchID int64) (decimal.Decimal, error)
	ActiveKeys(ctx context.Context) ([][2]int64, error)
	RebuildProjection(ctx context.Context, warehouseID, itemID int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes projection reads, read-only allocation planning, package
// splitting and ledger audit operations.
type Service struct {
	repo   RepositoryPort
	ledger *Ledger
	audit  AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *Ledger, audit AuditPort) *Service {
	if ledger == nil {
		ledger = NewLedger()
	}
	return &Service{repo: repo, ledger: ledger, audit: audit}
}

// AutoSelectBatches plans a FEFO allocation without mutating anything.
// The commit step revalidates under its own transaction, so a plan is
// advisory: stock may move between planning and committing.
func (s *Service) AutoSelectBatches(ctx context.Context, warehouseID, itemID int64, qty decimal.Decimal) ([]BatchDraw, error) {
	if warehouseID == 0 || itemID == 0 {
		return nil, errors.New("stock: warehouse and item required")
	}
	batches, err := s.repo.BatchesFor(ctx, warehouseID, itemID)
	if err != nil {
		return nil, err
	}
	plan, err := PlanFEFO(batches, qty)
	if err != nil {
		var se *Error
		if errors.As(err, &se) && se.WarehouseID == 0 {
			se.WarehouseID, se.ItemID = warehouseID, itemID
		}
		return nil, err
	}
	return plan, nil
}

// SplitInput describes a package split request.
type SplitInput struct {
	BatchID    int64
	Packages   decimal.Decimal
	Conversion Conversion
	DocumentID int64
	ActorID    int64
}

// SplitPackage converts package quantities of a batch into base-unit
// bookkeeping via a quantity-neutral ledger entry pair.
func (s *Service) SplitPackage(ctx context.Context, input SplitInput) error {
	if input.BatchID == 0 {
		return errors.New("stock: batch required")
	}
	baseQty, err := ToBaseUnits(0, input.Conversion, input.Packages, UnitPackage)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		batch, err := tx.BatchForUpdate(ctx, input.BatchID)
		if err != nil {
			return err
		}
		if batch.Quantity.LessThan(baseQty) {
			return NewError(KindInsufficientStock, batch.WarehouseID, batch.ItemID, batch.ID,
				"cannot split more than on hand")
		}
		entries, err := SplitEntries(batch, baseQty, input.DocumentID, input.ActorID,
			fmt.Sprintf("split %s package(s)", input.Packages.String()))
		if err != nil {
			return err
		}
		_, err = s.ledger.Apply(ctx, tx, entries)
		return err
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, input.ActorID, "stock:split", input.BatchID, map[string]any{
		"packages": input.Packages.String(),
	})
	return nil
}

// QuantityOnHand totals the projection across batches for one key.
func (s *Service) QuantityOnHand(ctx context.Context, warehouseID, itemID int64) (decimal.Decimal, error) {
	return s.repo.QuantityOnHand(ctx, warehouseID, itemID)
}

// BatchesFor lists live batches in FEFO order.
func (s *Service) BatchesFor(ctx context.Context, warehouseID, itemID int64) ([]Batch, error) {
	return s.repo.BatchesFor(ctx, warehouseID, itemID)
}

// ExpiringWithin lists batches whose expiry falls within the window.
func (s *Service) ExpiringWithin(ctx context.Context, days int) ([]ExpiryWarning, error) {
	if days < 0 {
		return nil, errors.New("stock: days must be non-negative")
	}
	return s.repo.ExpiringWithin(ctx, days)
}

// BelowReorderPoint lists items under their configured reorder point.
func (s *Service) BelowReorderPoint(ctx context.Context) ([]ReorderWarning, error) {
	return s.repo.BelowReorderPoint(ctx)
}

// StockCard lists ledger entries with running balance for one key.
func (s *Service) StockCard(ctx context.Context, warehouseID, itemID int64, from, to time.Time, limit int) ([]CardEntry, error) {
	if warehouseID == 0 || itemID == 0 {
		return nil, errors.New("stock: warehouse and item required")
	}
	return s.repo.StockCard(ctx, warehouseID, itemID, from, to, limit)
}

// ReplayBalance recomputes the balance for a key from the ledger alone.
func (s *Service) ReplayBalance(ctx context.Context, warehouseID, itemID, batchID int64) (decimal.Decimal, error) {
	return s.repo.ReplayBalance(ctx, warehouseID, itemID, batchID)
}

// VerifyProjection compares the cached projection against a full ledger
// replay for one key. A mismatch is an IntegrityViolation: it signals a
// bug and must halt further mutation on the key pending review, never be
// silently repaired.
func (s *Service) VerifyProjection(ctx context.Context, warehouseID, itemID int64) error {
	replayed, err := s.repo.ReplayBalance(ctx, warehouseID, itemID, 0)
	if err != nil {
		return err
	}
	cached, err := s.repo.QuantityOnHand(ctx, warehouseID, itemID)
	if err != nil {
		return err
	}
	if !replayed.Equal(cached) {
		return NewError(KindIntegrityViolation, warehouseID, itemID, 0,
			fmt.Sprintf("replay %s != projection %s", replayed.String(), cached.String()))
	}
	return nil
}

// VerifyAllProjections runs VerifyProjection over every active key and
// returns the first mismatch.
func (s *Service) VerifyAllProjections(ctx context.Context) error {
	keys, err := s.repo.ActiveKeys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.VerifyProjection(ctx, key[0], key[1]); err != nil {
			return err
		}
	}
	return nil
}

// RebuildProjection re-derives batch quantities from the ledger. Used by
// tests and operator tooling, never by the automatic integrity check.
func (s *Service) RebuildProjection(ctx context.Context, warehouseID, itemID int64) error {
	return s.repo.RebuildProjection(ctx, warehouseID, itemID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
