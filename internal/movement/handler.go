package movement

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

// Handler wires HTTP endpoints for movement documents.
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

// MountRoutes registers movement routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receipts", h.createReceipt)
	r.Post("/issues", h.createIssue)
	r.Post("/transfers", h.createTransfer)
	r.Get("/{id}", h.getDocument)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/reverse", h.reverse)
}

type receiptLineRequest struct {
	ItemID     int64           `json:"item_id" validate:"required,gt=0"`
	LotCode    string          `json:"lot_code" validate:"required,max=64"`
	Expiry     string          `json:"expiry" validate:"required"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Quantity   decimal.Decimal `json:"quantity" validate:"required"`
	Unit       string          `json:"unit" validate:"omitempty,oneof=BASE PACKAGE IU"`
	Correction bool            `json:"correction"`
	Note       string          `json:"note" validate:"max=500"`
}

type createReceiptRequest struct {
	Kind        string               `json:"kind" validate:"required"`
	WarehouseID int64                `json:"warehouse_id" validate:"required,gt=0"`
	Number      string               `json:"number" validate:"max=64"`
	Note        string               `json:"note" validate:"max=500"`
	Lines       []receiptLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createReceipt(w http.ResponseWriter, r *http.Request) {
	var req createReceiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines := make([]ReceiptLineInput, 0, len(req.Lines))
	for i, in := range req.Lines {
		expiry, err := time.Parse("2006-01-02", in.Expiry)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Expiry",
				"line "+strconv.Itoa(i)+": expiry must be YYYY-MM-DD")
			return
		}
		lines = append(lines, ReceiptLineInput{
			ItemID:     in.ItemID,
			LotCode:    in.LotCode,
			Expiry:     expiry,
			UnitCost:   in.UnitCost,
			Quantity:   in.Quantity,
			Unit:       defaultUnit(in.Unit),
			Correction: in.Correction,
			Note:       in.Note,
		})
	}
	doc, err := h.service.CreateReceipt(r.Context(), CreateReceiptInput{
		Kind:        stock.MovementKind(req.Kind),
		WarehouseID: req.WarehouseID,
		Number:      req.Number,
		Note:        req.Note,
		ActorID:     shared.ActorFromContext(r.Context()),
		Lines:       lines,
	})
	if err != nil {
		h.respondError(w, "create receipt", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

type issueLineRequest struct {
	ItemID           int64           `json:"item_id" validate:"required,gt=0"`
	Quantity         decimal.Decimal `json:"quantity" validate:"required"`
	Unit             string          `json:"unit" validate:"omitempty,oneof=BASE PACKAGE IU"`
	BatchID          int64           `json:"batch_id"`
	AuthorizationRef string          `json:"authorization_ref" validate:"max=128"`
	Note             string          `json:"note" validate:"max=500"`
}

type createIssueRequest struct {
	Kind        string             `json:"kind" validate:"required"`
	WarehouseID int64              `json:"warehouse_id" validate:"required,gt=0"`
	Number      string             `json:"number" validate:"max=64"`
	Note        string             `json:"note" validate:"max=500"`
	Lines       []issueLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createIssue(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines := make([]IssueLineInput, 0, len(req.Lines))
	for _, in := range req.Lines {
		lines = append(lines, IssueLineInput{
			ItemID:           in.ItemID,
			Quantity:         in.Quantity,
			Unit:             defaultUnit(in.Unit),
			BatchID:          in.BatchID,
			AuthorizationRef: in.AuthorizationRef,
			Note:             in.Note,
		})
	}
	doc, err := h.service.CreateIssue(r.Context(), CreateIssueInput{
		Kind:        stock.MovementKind(req.Kind),
		WarehouseID: req.WarehouseID,
		Number:      req.Number,
		Note:        req.Note,
		ActorID:     shared.ActorFromContext(r.Context()),
		Lines:       lines,
	})
	if err != nil {
		h.respondError(w, "create issue", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

type transferLineRequest struct {
	ItemID   int64           `json:"item_id" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity" validate:"required"`
	Unit     string          `json:"unit" validate:"omitempty,oneof=BASE PACKAGE IU"`
	BatchID  int64           `json:"batch_id"`
	Note     string          `json:"note" validate:"max=500"`
}

type createTransferRequest struct {
	SrcWarehouseID int64                 `json:"src_warehouse_id" validate:"required,gt=0"`
	DstWarehouseID int64                 `json:"dst_warehouse_id" validate:"required,gt=0"`
	Number         string                `json:"number" validate:"max=64"`
	Note           string                `json:"note" validate:"max=500"`
	Lines          []transferLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines := make([]TransferLineInput, 0, len(req.Lines))
	for _, in := range req.Lines {
		lines = append(lines, TransferLineInput{
			ItemID:   in.ItemID,
			Quantity: in.Quantity,
			Unit:     defaultUnit(in.Unit),
			BatchID:  in.BatchID,
			Note:     in.Note,
		})
	}
	doc, err := h.service.CreateTransfer(r.Context(), CreateTransferInput{
		SrcWarehouseID: req.SrcWarehouseID,
		DstWarehouseID: req.DstWarehouseID,
		Number:         req.Number,
		Note:           req.Note,
		ActorID:        shared.ActorFromContext(r.Context()),
		Lines:          lines,
	})
	if err != nil {
		h.respondError(w, "create transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

type documentResponse struct {
	Document Document `json:"document"`
	Lines    []Line   `json:"lines"`
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	doc, lines, err := h.service.GetDocument(r.Context(), id)
	if err != nil {
		h.respondError(w, "get document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, documentResponse{Document: doc, Lines: lines})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	doc, err := h.service.Approve(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "approve", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	doc, err := h.service.Cancel(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "cancel", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

type reverseRequest struct {
	Note string `json:"note" validate:"max=500"`
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req reverseRequest
	if r.ContentLength > 0 && !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.CreateReversal(r.Context(), id, shared.ActorFromContext(r.Context()), req.Note)
	if err != nil {
		h.respondError(w, "reverse", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
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
	case errors.Is(err, ErrNotFound),
		errors.Is(err, catalog.ErrItemNotFound),
		errors.Is(err, catalog.ErrWarehouseNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	default:
		if stock.KindOf(err) == "" {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

func defaultUnit(raw string) stock.Unit {
	if raw == "" {
		return stock.UnitBase
	}
	return stock.Unit(raw)
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
