package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-his/meridian-his/internal/stock"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	GetItem(ctx context.Context, id int64) (Item, error)
	ListItems(ctx context.Context, limit, offset int) ([]Item, error)
	CountItems(ctx context.Context) (int, error)
	CreateItem(ctx context.Context, it Item) (Item, error)
	InsertConversionRevision(ctx context.Context, rev ConversionRevision) error
	ListConversionRevisions(ctx context.Context, itemID int64) ([]ConversionRevision, error)
	GetWarehouse(ctx context.Context, id int64) (Warehouse, error)
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
	CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error)
}

// Service owns item and warehouse master data.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	if id <= 0 {
		return Item{}, ErrValidation
	}
	return s.repo.GetItem(ctx, id)
}

func (s *Service) ListItems(ctx context.Context, limit, offset int) ([]Item, error) {
	return s.repo.ListItems(ctx, limit, offset)
}

func (s *Service) CountItems(ctx context.Context) (int, error) {
	return s.repo.CountItems(ctx)
}

func (s *Service) CreateItem(ctx context.Context, it Item) (Item, error) {
	if err := validateItem(it); err != nil {
		return Item{}, err
	}
	if it.Controlled == "" {
		it.Controlled = ControlledNone
	}
	return s.repo.CreateItem(ctx, it)
}

// SetConversion records a corrected set of conversion factors as a new
// revision. Factors on referenced items are never silently overwritten;
// the revision trail keeps every historical value.
func (s *Service) SetConversion(ctx context.Context, itemID int64, packSize, iuFactor decimal.Decimal, hasIU bool, actorID int64, note string) error {
	if itemID <= 0 {
		return ErrValidation
	}
	if packSize.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: pack size must be positive", ErrValidation)
	}
	if hasIU && iuFactor.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: IU factor must be positive", ErrValidation)
	}
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return err
	}
	return s.repo.InsertConversionRevision(ctx, ConversionRevision{
		ItemID:        itemID,
		PackSize:      packSize,
		IUFactor:      iuFactor,
		HasIU:         hasIU,
		EffectiveFrom: time.Now().UTC(),
		CreatedBy:     actorID,
		Note:          note,
	})
}

func (s *Service) ConversionHistory(ctx context.Context, itemID int64) ([]ConversionRevision, error) {
	return s.repo.ListConversionRevisions(ctx, itemID)
}

// ConvertUnits translates a document-line quantity into base units using
// the item's current factors.
func (s *Service) ConvertUnits(ctx context.Context, itemID int64, qty decimal.Decimal, unit stock.Unit) (decimal.Decimal, error) {
	it, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return decimal.Zero, err
	}
	return stock.ToBaseUnits(it.ID, it.Conversion(), qty, unit)
}

func (s *Service) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, ErrValidation
	}
	return s.repo.GetWarehouse(ctx, id)
}

func (s *Service) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	return s.repo.ListWarehouses(ctx)
}

func (s *Service) CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error) {
	if strings.TrimSpace(w.Code) == "" || strings.TrimSpace(w.Name) == "" {
		return Warehouse{}, fmt.Errorf("%w: warehouse code and name required", ErrValidation)
	}
	switch w.Kind {
	case WarehouseMain, WarehouseDepartment, WarehouseRetail, WarehouseQuarantine:
	default:
		return Warehouse{}, fmt.Errorf("%w: unknown warehouse kind %q", ErrValidation, w.Kind)
	}
	return s.repo.CreateWarehouse(ctx, w)
}

func validateItem(it Item) error {
	if strings.TrimSpace(it.Code) == "" {
		return fmt.Errorf("%w: item code required", ErrValidation)
	}
	if strings.TrimSpace(it.Name) == "" {
		return fmt.Errorf("%w: item name required", ErrValidation)
	}
	if strings.TrimSpace(it.BaseUnit) == "" {
		return fmt.Errorf("%w: base unit required", ErrValidation)
	}
	if it.PackSize.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: pack size must be positive", ErrValidation)
	}
	if it.HasIU && it.IUFactor.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: IU factor must be positive", ErrValidation)
	}
	switch it.Controlled {
	case "", ControlledNone, ControlledNarcotic, ControlledPsychotropic:
	default:
		return fmt.Errorf("%w: unknown controlled class %q", ErrValidation, it.Controlled)
	}
	if it.ReorderPoint.IsNegative() {
		return fmt.Errorf("%w: reorder point must be >= 0", ErrValidation)
	}
	return nil
}
