package stock

import (
	"github.com/meridian-his/meridian-his/internal/stock/stockerr"
)

// The kinded stock error lives in the stockerr leaf package so the HTTP
// layer can map it without importing this package. Everything is
// re-exported here via aliases, so stock.Error, stock.ErrorKind, the
// Kind* constants, and the Err* sentinels keep their identity for all
// existing callers.

// ErrorKind classifies stock failures for callers and the HTTP layer.
type ErrorKind = stockerr.ErrorKind

const (
	KindInsufficientStock     = stockerr.KindInsufficientStock
	KindConflict              = stockerr.KindConflict
	KindInconsistentBatchCost = stockerr.KindInconsistentBatchCost
	KindAuthorizationRequired = stockerr.KindAuthorizationRequired
	KindAlreadyCommitted      = stockerr.KindAlreadyCommitted
	KindAlreadyCompleted      = stockerr.KindAlreadyCompleted
	KindUnsupportedUnit       = stockerr.KindUnsupportedUnit
	KindIntegrityViolation    = stockerr.KindIntegrityViolation
)

// Error carries the failure kind plus the offending stock key. Callers
// match with errors.Is against the exported sentinels below.
type Error = stockerr.Error

// Sentinels for errors.Is matching.
var (
	ErrInsufficientStock     = stockerr.ErrInsufficientStock
	ErrConflict              = stockerr.ErrConflict
	ErrInconsistentBatchCost = stockerr.ErrInconsistentBatchCost
	ErrAuthorizationRequired = stockerr.ErrAuthorizationRequired
	ErrAlreadyCommitted      = stockerr.ErrAlreadyCommitted
	ErrAlreadyCompleted      = stockerr.ErrAlreadyCompleted
	ErrUnsupportedUnit       = stockerr.ErrUnsupportedUnit
	ErrIntegrityViolation    = stockerr.ErrIntegrityViolation
)

// NewError builds a kinded error with key context.
func NewError(kind ErrorKind, warehouseID, itemID, batchID int64, detail string) *Error {
	return stockerr.NewError(kind, warehouseID, itemID, batchID, detail)
}

// KindOf extracts the ErrorKind from err, or "" when err is not a stock error.
func KindOf(err error) ErrorKind {
	return stockerr.KindOf(err)
}

// ErrBatchNotFound indicates a missing batch row.
var ErrBatchNotFound = stockerr.ErrBatchNotFound
