package commissions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fleetlease/fleetlease/internal/platform/httpx"
	internalshared "github.com/fleetlease/fleetlease/internal/shared"
)

// Handler wires HTTP endpoints for manufacturer commissions.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers commission routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/due", h.listDue)
	r.Get("/overdue", h.listOverdue)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/pay", h.markPaid)
	r.Post("/{id}/cancel", h.cancel)
}

type createCommissionRequest struct {
	ManufacturerID   int64           `json:"manufacturer_id" validate:"required"`
	LeaseAgreementID int64           `json:"lease_agreement_id" validate:"required"`
	PaymentID        *int64          `json:"payment_id"`
	Type             string          `json:"type"`
	BaseAmount       decimal.Decimal `json:"base_amount" validate:"required"`
	CommissionRate   decimal.Decimal `json:"commission_rate" validate:"required"`
	Currency         string          `json:"currency"`
	DueDate          *time.Time      `json:"due_date"`
	Notes            string          `json:"notes"`
}

type updateCommissionRequest struct {
	BaseAmount     *decimal.Decimal `json:"base_amount"`
	CommissionRate *decimal.Decimal `json:"commission_rate"`
	DueDate        *time.Time       `json:"due_date"`
	Notes          *string          `json:"notes"`
}

type actorRequest struct {
	ActorID int64 `json:"actor_id"`
}

type commissionResponse struct {
	ID               int64   `json:"id"`
	ManufacturerID   int64   `json:"manufacturer_id"`
	LeaseAgreementID int64   `json:"lease_agreement_id"`
	PaymentID        *int64  `json:"payment_id,omitempty"`
	Type             string  `json:"type"`
	BaseAmount       string  `json:"base_amount"`
	CommissionRate   string  `json:"commission_rate"`
	CommissionAmount string  `json:"commission_amount"`
	Currency         string  `json:"currency"`
	Status           string  `json:"status"`
	CalculationDate  string  `json:"calculation_date"`
	DueDate          *string `json:"due_date,omitempty"`
	PaidDate         *string `json:"paid_date,omitempty"`
	Notes            string  `json:"notes,omitempty"`
}

func toCommissionResponse(c Commission) commissionResponse {
	resp := commissionResponse{
		ID:               c.ID,
		ManufacturerID:   c.ManufacturerID,
		LeaseAgreementID: c.LeaseAgreementID,
		PaymentID:        c.PaymentID,
		Type:             string(c.Type),
		BaseAmount:       c.BaseAmount.StringFixed(2),
		CommissionRate:   c.CommissionRate.String(),
		CommissionAmount: c.CommissionAmount.StringFixed(2),
		Currency:         c.Currency,
		Status:           string(c.Status),
		CalculationDate:  c.CalculationDate.Format("2006-01-02"),
		Notes:            c.Notes,
	}
	if c.DueDate != nil {
		d := c.DueDate.Format("2006-01-02")
		resp.DueDate = &d
	}
	if c.PaidDate != nil {
		d := c.PaidDate.Format("2006-01-02")
		resp.PaidDate = &d
	}
	return resp
}

type paginationResponse struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type commissionListResponse struct {
	Data       []commissionResponse `json:"data"`
	Pagination paginationResponse   `json:"pagination"`
}

func toPaginationResponse(p internalshared.Pagination) paginationResponse {
	return paginationResponse{Page: p.Page, PerPage: p.PerPage, Total: p.Total, TotalPages: p.TotalPages}
}

func pageParams(w http.ResponseWriter, r *http.Request) (page, perPage int, ok bool) {
	var err error
	if raw := r.URL.Query().Get("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "page must be an integer")
			return 0, 0, false
		}
	}
	if raw := r.URL.Query().Get("per_page"); raw != "" {
		if perPage, err = strconv.Atoi(raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "per_page must be an integer")
			return 0, 0, false
		}
	}
	return page, perPage, true
}

func toCommissionResponses(list []Commission) []commissionResponse {
	out := make([]commissionResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toCommissionResponse(c))
	}
	return out
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createCommissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := CreateInput{
		ManufacturerID:   req.ManufacturerID,
		LeaseAgreementID: req.LeaseAgreementID,
		PaymentID:        req.PaymentID,
		Type:             CommissionType(req.Type),
		BaseAmount:       req.BaseAmount,
		CommissionRate:   req.CommissionRate,
		Currency:         req.Currency,
		DueDate:          req.DueDate,
		Notes:            req.Notes,
	}
	if err := in.Validate(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	commission, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCommissionResponse(commission))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("manufacturer_id")
	manufacturerID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "manufacturer_id must be an integer")
		return
	}
	page, perPage, ok := pageParams(w, r)
	if !ok {
		return
	}
	list, pagination, err := h.service.ListByManufacturer(r.Context(), manufacturerID, page, perPage)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, commissionListResponse{
		Data:       toCommissionResponses(list),
		Pagination: toPaginationResponse(pagination),
	})
}

func (h *Handler) listDue(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListDue(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCommissionResponses(list))
}

func (h *Handler) listOverdue(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListOverdue(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCommissionResponses(list))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	commission, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCommissionResponse(commission))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateCommissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	commission, err := h.service.Update(r.Context(), id, UpdateInput{
		BaseAmount:     req.BaseAmount,
		CommissionRate: req.CommissionRate,
		DueDate:        req.DueDate,
		Notes:          req.Notes,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCommissionResponse(commission))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.MarkPaid)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actorID int64) error) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req actorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := fn(r.Context(), id, req.ActorID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	commission, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCommissionResponse(commission))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Path", "id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrCommissionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("commissions request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
