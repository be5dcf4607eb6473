package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-his/meridian-his/internal/stock"
)

// ControlledClass classifies controlled-substance handling requirements.
type ControlledClass string

const (
	ControlledNone        ControlledClass = "NONE"
	ControlledNarcotic    ControlledClass = "NARCOTIC"
	ControlledPsychotropic ControlledClass = "PSYCHOTROPIC"
)

// Controlled reports whether dispensing requires an authorization reference.
func (c ControlledClass) Controlled() bool {
	return c == ControlledNarcotic || c == ControlledPsychotropic
}

// Item is a stock-keeping definition. Conversion factors are never edited
// in place once the item is referenced by ledger entries; corrections add
// a new revision row.
type Item struct {
	ID           int64
	Code         string
	Name         string
	BaseUnit     string
	PackSize     decimal.Decimal
	IUFactor     decimal.Decimal
	HasIU        bool
	Controlled   ControlledClass
	Reusable     bool
	ReorderPoint decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Conversion returns the item's current unit conversion factors.
func (i Item) Conversion() stock.Conversion {
	return stock.Conversion{PackSize: i.PackSize, IUFactor: i.IUFactor, HasIU: i.HasIU}
}

// ConversionRevision is one historical version of an item's factors.
type ConversionRevision struct {
	ItemID        int64
	Revision      int
	PackSize      decimal.Decimal
	IUFactor      decimal.Decimal
	HasIU         bool
	EffectiveFrom time.Time
	CreatedBy     int64
	Note          string
}

// WarehouseKind distinguishes stock locations.
type WarehouseKind string

const (
	WarehouseMain       WarehouseKind = "MAIN"
	WarehouseDepartment WarehouseKind = "DEPARTMENT"
	WarehouseRetail     WarehouseKind = "RETAIL"
	WarehouseQuarantine WarehouseKind = "QUARANTINE"
)

// Warehouse identifies a stock location. Stock is always scoped to a
// (warehouse, item) pair.
type Warehouse struct {
	ID        int64
	Code      string
	Name      string
	Kind      WarehouseKind
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrItemNotFound indicates a missing item.
	ErrItemNotFound = errors.New("catalog: item not found")
	// ErrWarehouseNotFound indicates a missing warehouse.
	ErrWarehouseNotFound = errors.New("catalog: warehouse not found")
	// ErrValidation indicates invalid master data input.
	ErrValidation = errors.New("catalog: invalid input")
)
