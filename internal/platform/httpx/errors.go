// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-his/meridian-his/internal/stock/stockerr"
)

// Sentinel errors shared by handlers.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
)

// RespondError maps core errors to RFC7807 responses. Stock failures keep
// their kind and offending (warehouse, item, batch) context; raw internals
// never leak.
func RespondError(w http.ResponseWriter, err error) {
	var se *stockerr.Error
	if errors.As(err, &se) {
		status := statusForKind(se.Kind)
		problem := ProblemDetail{
			Type:   "urn:meridian:stock:" + string(se.Kind),
			Title:  string(se.Kind),
			Status: status,
			Detail: se.Detail,
		}
		if se.WarehouseID != 0 || se.ItemID != 0 || se.BatchID != 0 {
			problem.Context = &StockContext{
				WarehouseID: se.WarehouseID,
				ItemID:      se.ItemID,
				BatchID:     se.BatchID,
			}
		}
		JSON(w, status, problem)
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func statusForKind(kind stockerr.ErrorKind) int {
	switch kind {
	case stockerr.KindInsufficientStock,
		stockerr.KindInconsistentBatchCost,
		stockerr.KindAlreadyCommitted,
		stockerr.KindAlreadyCompleted,
		stockerr.KindConflict:
		return http.StatusConflict
	case stockerr.KindAuthorizationRequired:
		return http.StatusForbidden
	case stockerr.KindUnsupportedUnit:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
