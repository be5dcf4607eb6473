package stock

import (
	"github.com/shopspring/decimal"
)

// Unit names the units of issue a document line may use. The ledger
// itself stores base units only; conversion happens at the line boundary.
type Unit string

const (
	UnitBase    Unit = "BASE"
	UnitPackage Unit = "PACKAGE"
	UnitIU      Unit = "IU"
)

// Conversion holds the per-item factors needed to translate units.
// PackSize is base units per package; IUFactor is base units per
// International Unit and is optional.
type Conversion struct {
	PackSize decimal.Decimal
	IUFactor decimal.Decimal
	HasIU    bool
}

// ToBaseUnits converts qty expressed in unit into base units.
func ToBaseUnits(itemID int64, conv Conversion, qty decimal.Decimal, unit Unit) (decimal.Decimal, error) {
	switch unit {
	case UnitBase, "":
		return qty, nil
	case UnitPackage:
		if conv.PackSize.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, NewError(KindUnsupportedUnit, 0, itemID, 0, "item has no package size")
		}
		return qty.Mul(conv.PackSize), nil
	case UnitIU:
		if !conv.HasIU || conv.IUFactor.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, NewError(KindUnsupportedUnit, 0, itemID, 0, "item has no IU factor")
		}
		return qty.Mul(conv.IUFactor), nil
	}
	return decimal.Zero, NewError(KindUnsupportedUnit, 0, itemID, 0, "unknown unit "+string(unit))
}

// FromBaseUnits converts a base-unit quantity into the requested unit.
func FromBaseUnits(itemID int64, conv Conversion, baseQty decimal.Decimal, unit Unit) (decimal.Decimal, error) {
	switch unit {
	case UnitBase, "":
		return baseQty, nil
	case UnitPackage:
		if conv.PackSize.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, NewError(KindUnsupportedUnit, 0, itemID, 0, "item has no package size")
		}
		return baseQty.Div(conv.PackSize), nil
	case UnitIU:
		if !conv.HasIU || conv.IUFactor.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, NewError(KindUnsupportedUnit, 0, itemID, 0, "item has no IU factor")
		}
		return baseQty.Div(conv.IUFactor), nil
	}
	return decimal.Zero, NewError(KindUnsupportedUnit, 0, itemID, 0, "unknown unit "+string(unit))
}
