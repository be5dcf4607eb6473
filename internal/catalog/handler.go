package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-his/meridian-his/internal/platform/httpx"
	"github.com/meridian-his/meridian-his/internal/shared"
	"github.com/meridian-his/meridian-his/internal/stock"
)

// Handler wires HTTP endpoints for item and warehouse master data.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers catalog routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/items", func(r chi.Router) {
		r.Get("/", h.listItems)
		r.Post("/", h.createItem)
		r.Get("/{id}", h.getItem)
		r.Put("/{id}/conversion", h.setConversion)
		r.Get("/{id}/conversion/history", h.conversionHistory)
		r.Get("/{id}/convert", h.convertUnits)
	})
	r.Route("/warehouses", func(r chi.Router) {
		r.Get("/", h.listWarehouses)
		r.Post("/", h.createWarehouse)
		r.Get("/{id}", h.getWarehouse)
	})
}

type itemRequest struct {
	Code         string          `json:"code" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=255"`
	BaseUnit     string          `json:"base_unit" validate:"required,max=32"`
	PackSize     decimal.Decimal `json:"pack_size"`
	IUFactor     decimal.Decimal `json:"iu_factor"`
	HasIU        bool            `json:"has_iu"`
	Controlled   string          `json:"controlled" validate:"omitempty,oneof=NONE NARCOTIC PSYCHOTROPIC"`
	Reusable     bool            `json:"reusable"`
	ReorderPoint decimal.Decimal `json:"reorder_point"`
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	controlled := ControlledClass(req.Controlled)
	if req.Controlled == "" {
		controlled = ControlledNone
	}
	item, err := h.service.CreateItem(r.Context(), Item{
		Code:         req.Code,
		Name:         req.Name,
		BaseUnit:     req.BaseUnit,
		PackSize:     req.PackSize,
		IUFactor:     req.IUFactor,
		HasIU:        req.HasIU,
		Controlled:   controlled,
		Reusable:     req.Reusable,
		ReorderPoint: req.ReorderPoint,
	})
	if err != nil {
		h.respondError(w, "create item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.respondError(w, "get item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}
	items, err := h.service.ListItems(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		h.respondError(w, "list items", err)
		return
	}
	total, err := h.service.CountItems(r.Context())
	if err != nil {
		h.respondError(w, "count items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

type conversionRequest struct {
	PackSize decimal.Decimal `json:"pack_size" validate:"required"`
	IUFactor decimal.Decimal `json:"iu_factor"`
	HasIU    bool            `json:"has_iu"`
	Note     string          `json:"note" validate:"max=500"`
}

func (h *Handler) setConversion(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req conversionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actorID := shared.ActorFromContext(r.Context())
	if err := h.service.SetConversion(r.Context(), id, req.PackSize, req.IUFactor, req.HasIU, actorID, req.Note); err != nil {
		h.respondError(w, "set conversion", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (h *Handler) conversionHistory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	revs, err := h.service.ConversionHistory(r.Context(), id)
	if err != nil {
		h.respondError(w, "conversion history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, revs)
}

func (h *Handler) convertUnits(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	qty, err := decimal.NewFromString(r.URL.Query().Get("quantity"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Quantity", err.Error())
		return
	}
	unit := stock.Unit(r.URL.Query().Get("unit"))
	base, err := h.service.ConvertUnits(r.Context(), id, qty, unit)
	if err != nil {
		h.respondError(w, "convert units", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]decimal.Decimal{"base_quantity": base})
}

type warehouseRequest struct {
	Code string `json:"code" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=255"`
	Kind string `json:"kind" validate:"required,oneof=MAIN DEPARTMENT RETAIL QUARANTINE"`
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var req warehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	wh, err := h.service.CreateWarehouse(r.Context(), Warehouse{
		Code: req.Code,
		Name: req.Name,
		Kind: WarehouseKind(req.Kind),
	})
	if err != nil {
		h.respondError(w, "create warehouse", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, wh)
}

func (h *Handler) getWarehouse(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	wh, err := h.service.GetWarehouse(r.Context(), id)
	if err != nil {
		h.respondError(w, "get warehouse", err)
		return
	}
	httpx.JSON(w, http.StatusOK, wh)
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	whs, err := h.service.ListWarehouses(r.Context())
	if err != nil {
		h.respondError(w, "list warehouses", err)
		return
	}
	httpx.JSON(w, http.StatusOK, whs)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrWarehouseNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
