// Package stockerr defines the kinded stock error shared by the stock
// domain and the HTTP layer. It lives in its own leaf package so that
// platform/httpx can map stock failures without importing the stock
// package (which itself depends on httpx).
package stockerr

import (
	"errors"
	"fmt"
)

// ErrorKind classifies stock failures for callers and the HTTP layer.
type ErrorKind string

const (
	KindInsufficientStock     ErrorKind = "INSUFFICIENT_STOCK"
	KindConflict              ErrorKind = "CONFLICT"
	KindInconsistentBatchCost ErrorKind = "INCONSISTENT_BATCH_COST"
	KindAuthorizationRequired ErrorKind = "AUTHORIZATION_REQUIRED"
	KindAlreadyCommitted      ErrorKind = "ALREADY_COMMITTED"
	KindAlreadyCompleted      ErrorKind = "ALREADY_COMPLETED"
	KindUnsupportedUnit       ErrorKind = "UNSUPPORTED_UNIT"
	KindIntegrityViolation    ErrorKind = "INTEGRITY_VIOLATION"
)

// Error carries the failure kind plus the offending stock key. Callers
// match with errors.Is against the exported sentinels below.
type Error struct {
	Kind        ErrorKind
	WarehouseID int64
	ItemID      int64
	BatchID     int64
	Detail      string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("stock: %s", e.Kind)
	if e.WarehouseID != 0 || e.ItemID != 0 || e.BatchID != 0 {
		msg += fmt.Sprintf(" (warehouse=%d item=%d batch=%d)", e.WarehouseID, e.ItemID, e.BatchID)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches any *Error of the same kind, so sentinel comparisons work
// regardless of the attached key context.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinels for errors.Is matching.
var (
	ErrInsufficientStock     = &Error{Kind: KindInsufficientStock}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrInconsistentBatchCost = &Error{Kind: KindInconsistentBatchCost}
	ErrAuthorizationRequired = &Error{Kind: KindAuthorizationRequired}
	ErrAlreadyCommitted      = &Error{Kind: KindAlreadyCommitted}
	ErrAlreadyCompleted      = &Error{Kind: KindAlreadyCompleted}
	ErrUnsupportedUnit       = &Error{Kind: KindUnsupportedUnit}
	ErrIntegrityViolation    = &Error{Kind: KindIntegrityViolation}
)

// NewError builds a kinded error with key context.
func NewError(kind ErrorKind, warehouseID, itemID, batchID int64, detail string) *Error {
	return &Error{Kind: kind, WarehouseID: warehouseID, ItemID: itemID, BatchID: batchID, Detail: detail}
}

// KindOf extracts the ErrorKind from err, or "" when err is not a stock error.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// ErrBatchNotFound indicates a missing batch row.
var ErrBatchNotFound = errors.New("stock: batch not found")
