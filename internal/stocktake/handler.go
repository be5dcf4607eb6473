package stocktake

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-his/meridian-his/internal/catalog"
	"github.com/meridian-his/meridian-his/internal/platform/httpx"
	"github.com/meridian-his/meridian-his/internal/shared"
	"github.com/meridian-his/meridian-his/internal/stock"
)

// Handler wires HTTP endpoints for stock-take periods.
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

// MountRoutes registers stock-take routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.getPeriod)
	r.Get("/{id}/counts", h.listCounts)
	r.Post("/{id}/counts", h.recordCounts)
	r.Post("/{id}/complete", h.complete)
}

type createPeriodRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	From        string `json:"from" validate:"required"`
	To          string `json:"to" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPeriodRequest
	if !h.decode(w, r, &req) {
		return
	}
	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "to must be YYYY-MM-DD")
		return
	}
	period, err := h.service.Create(r.Context(), req.WarehouseID, from, to, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "create period", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}

type countRequest struct {
	ItemID   int64           `json:"item_id" validate:"required,gt=0"`
	BatchID  int64           `json:"batch_id"`
	Physical decimal.Decimal `json:"physical"`
}

type recordCountsRequest struct {
	Counts []countRequest `json:"counts" validate:"required,min=1,dive"`
}

func (h *Handler) recordCounts(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req recordCountsRequest
	if !h.decode(w, r, &req) {
		return
	}
	counts := make([]CountInput, 0, len(req.Counts))
	for _, in := range req.Counts {
		counts = append(counts, CountInput{ItemID: in.ItemID, BatchID: in.BatchID, Physical: in.Physical})
	}
	period, err := h.service.RecordCounts(r.Context(), id, counts, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "record counts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

type completeResponse struct {
	Period      Period       `json:"period"`
	Adjustments []Adjustment `json:"adjustments"`
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	period, adjustments, err := h.service.Complete(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "complete period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, completeResponse{Period: period, Adjustments: adjustments})
}

func (h *Handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	period, err := h.service.GetPeriod(r.Context(), id)
	if err != nil {
		h.respondError(w, "get period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) listCounts(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	counts, err := h.service.Counts(r.Context(), id)
	if err != nil {
		h.respondError(w, "list counts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, counts)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrPeriodNotFound), errors.Is(err, catalog.ErrWarehouseNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		if stock.KindOf(err) == "" {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
