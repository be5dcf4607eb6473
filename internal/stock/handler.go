package stock

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-his/meridian-his/internal/platform/httpx"
	"github.com/meridian-his/meridian-his/internal/shared"
)

// ConversionSource resolves the current unit conversion factors of an item.
type ConversionSource interface {
	ItemConversion(ctx context.Context, itemID int64) (Conversion, error)
}

// Handler wires HTTP endpoints for stock queries and reports.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	cache       *ReportCache
	conversions ConversionSource
	validator   *validator.Validate
	group       singleflight.Group
	expiryDays  int
}

// NewHandler constructs a Handler instance. expiryDays is the default
// horizon of the expiry report.
func NewHandler(logger *slog.Logger, service *Service, cache *ReportCache, conversions ConversionSource, expiryDays int) *Handler {
	if expiryDays <= 0 {
		expiryDays = 90
	}
	return &Handler{
		logger:      logger,
		service:     service,
		cache:       cache,
		conversions: conversions,
		validator:   validator.New(),
		expiryDays:  expiryDays,
	}
}

// MountRoutes registers stock routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/on-hand", h.onHand)
	r.Get("/batches", h.batches)
	r.Get("/card", h.stockCard)
	r.Post("/auto-select", h.autoSelect)
	r.Post("/split", h.split)
	r.Get("/reports/expiry", h.expiryReport)
	r.Get("/reports/reorder", h.reorderReport)
	r.Get("/integrity", h.verifyProjection)
	r.Post("/integrity/rebuild", h.rebuildProjection)
}

// onHand reads the projected quantity through the versioned cache, so
// dashboard polling rides the same invalidation as the reports.
func (h *Handler) onHand(w http.ResponseWriter, r *http.Request) {
	warehouseID, itemID, err := keyParams(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Key", err.Error())
		return
	}
	key, err := h.cache.BuildKey(r.Context(), keyOnHand(warehouseID, itemID))
	if err != nil {
		h.respondError(w, "on hand key", err)
		return
	}
	var qty decimal.Decimal
	err = h.fetchShared(r.Context(), key, &qty, func(ctx context.Context) (interface{}, error) {
		return h.service.QuantityOnHand(ctx, warehouseID, itemID)
	})
	if err != nil {
		h.respondError(w, "on hand", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"warehouse_id": warehouseID,
		"item_id":      itemID,
		"quantity":     qty,
	})
}

func (h *Handler) batches(w http.ResponseWriter, r *http.Request) {
	warehouseID, itemID, err := keyParams(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Key", err.Error())
		return
	}
	batches, err := h.service.BatchesFor(r.Context(), warehouseID, itemID)
	if err != nil {
		h.respondError(w, "batches", err)
		return
	}
	httpx.JSON(w, http.StatusOK, batches)
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	warehouseID, itemID, err := keyParams(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Key", err.Error())
		return
	}
	from := parseDate(r.URL.Query().Get("from"))
	to := parseDate(r.URL.Query().Get("to"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	card, err := h.service.StockCard(r.Context(), warehouseID, itemID, from, to, limit)
	if err != nil {
		h.respondError(w, "stock card", err)
		return
	}
	httpx.JSON(w, http.StatusOK, card)
}

type autoSelectRequest struct {
	WarehouseID int64           `json:"warehouse_id" validate:"required,gt=0"`
	ItemID      int64           `json:"item_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
}

func (h *Handler) autoSelect(w http.ResponseWriter, r *http.Request) {
	var req autoSelectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	plan, err := h.service.AutoSelectBatches(r.Context(), req.WarehouseID, req.ItemID, req.Quantity)
	if err != nil {
		h.respondError(w, "auto select", err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

type splitRequest struct {
	BatchID    int64           `json:"batch_id" validate:"required,gt=0"`
	ItemID     int64           `json:"item_id" validate:"required,gt=0"`
	Packages   decimal.Decimal `json:"packages" validate:"required"`
	DocumentID int64           `json:"document_id"`
}

func (h *Handler) split(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	conv, err := h.conversions.ItemConversion(r.Context(), req.ItemID)
	if err != nil {
		h.respondError(w, "split conversion", err)
		return
	}
	err = h.service.SplitPackage(r.Context(), SplitInput{
		BatchID:    req.BatchID,
		Packages:   req.Packages,
		Conversion: conv,
		DocumentID: req.DocumentID,
		ActorID:    shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, "split", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "split"})
}

// expiryReport serves batches expiring within the horizon. The report is
// cached in Redis and deduplicated with singleflight so a burst of
// dashboard loads fans in to one query.
func (h *Handler) expiryReport(w http.ResponseWriter, r *http.Request) {
	days := h.expiryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Horizon", "days must be a positive integer")
			return
		}
		days = parsed
	}
	key, err := h.cache.BuildKey(r.Context(), keyExpiry(days))
	if err != nil {
		h.respondError(w, "expiry report key", err)
		return
	}
	var warnings []ExpiryWarning
	err = h.fetchShared(r.Context(), key, &warnings, func(ctx context.Context) (interface{}, error) {
		return h.service.ExpiringWithin(ctx, days)
	})
	if err != nil {
		h.respondError(w, "expiry report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, warnings)
}

func (h *Handler) reorderReport(w http.ResponseWriter, r *http.Request) {
	key, err := h.cache.BuildKey(r.Context(), keyReorder())
	if err != nil {
		h.respondError(w, "reorder report key", err)
		return
	}
	var warnings []ReorderWarning
	err = h.fetchShared(r.Context(), key, &warnings, func(ctx context.Context) (interface{}, error) {
		return h.service.BelowReorderPoint(ctx)
	})
	if err != nil {
		h.respondError(w, "reorder report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, warnings)
}

func (h *Handler) verifyProjection(w http.ResponseWriter, r *http.Request) {
	warehouseID, itemID, err := keyParams(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Key", err.Error())
		return
	}
	if err := h.service.VerifyProjection(r.Context(), warehouseID, itemID); err != nil {
		h.respondError(w, "verify projection", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "consistent"})
}

func (h *Handler) rebuildProjection(w http.ResponseWriter, r *http.Request) {
	warehouseID, itemID, err := keyParams(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Key", err.Error())
		return
	}
	if err := h.service.RebuildProjection(r.Context(), warehouseID, itemID); err != nil {
		h.respondError(w, "rebuild projection", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

// fetchShared reads through the cache; concurrent misses for the same key
// collapse into one loader call.
func (h *Handler) fetchShared(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	return h.cache.FetchJSON(ctx, key, dest, func(ctx context.Context) (interface{}, error) {
		value, err, _ := h.group.Do(key, func() (interface{}, error) {
			return loader(ctx)
		})
		return value, err
	})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if KindOf(err) == "" {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func keyParams(r *http.Request) (int64, int64, error) {
	warehouseID, err := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	itemID, err := strconv.ParseInt(r.URL.Query().Get("item_id"), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return warehouseID, itemID, nil
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
