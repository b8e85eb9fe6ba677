package payments

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fleetlease/fleetlease/internal/platform/httpx"
	"github.com/fleetlease/fleetlease/internal/shared"
)

// Handler wires HTTP endpoints for payment settlement.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers payment routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/processing", h.markProcessing)
	r.Post("/{id}/complete", h.complete)
	r.Post("/{id}/fail", h.markFailed)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/refund", h.refund)
}

type createPaymentRequest struct {
	LeaseAgreementID  int64           `json:"lease_agreement_id" validate:"required"`
	PaymentScheduleID *int64          `json:"payment_schedule_id"`
	ClientID          int64           `json:"client_id" validate:"required"`
	Amount            decimal.Decimal `json:"amount" validate:"required"`
	ProcessingFee     decimal.Decimal `json:"processing_fee"`
	Currency          string          `json:"currency"`
	PaymentDate       *time.Time      `json:"payment_date"`
	Notes             string          `json:"notes"`
}

type actorRequest struct {
	ActorID int64 `json:"actor_id"`
}

type refundRequest struct {
	ActorID int64  `json:"actor_id"`
	Reason  string `json:"reason" validate:"required"`
}

type paymentResponse struct {
	ID                int64   `json:"id"`
	Reference         string  `json:"reference"`
	LeaseAgreementID  int64   `json:"lease_agreement_id"`
	PaymentScheduleID *int64  `json:"payment_schedule_id,omitempty"`
	ClientID          int64   `json:"client_id"`
	Amount            string  `json:"amount"`
	ProcessingFee     string  `json:"processing_fee"`
	NetAmount         string  `json:"net_amount"`
	Currency          string  `json:"currency"`
	PaymentDate       string  `json:"payment_date"`
	Status            string  `json:"status"`
	JournalEntryID    *int64  `json:"journal_entry_id,omitempty"`
	Notes             string  `json:"notes,omitempty"`
	ProcessedBy       *int64  `json:"processed_by,omitempty"`
	ProcessedAt       *string `json:"processed_at,omitempty"`
}

func toPaymentResponse(p Payment) paymentResponse {
	resp := paymentResponse{
		ID:                p.ID,
		Reference:         p.Reference.String(),
		LeaseAgreementID:  p.LeaseAgreementID,
		PaymentScheduleID: p.PaymentScheduleID,
		ClientID:          p.ClientID,
		Amount:            p.Amount.StringFixed(2),
		ProcessingFee:     p.ProcessingFee.StringFixed(2),
		NetAmount:         p.NetAmount.StringFixed(2),
		Currency:          p.Currency,
		PaymentDate:       p.PaymentDate.Format(time.RFC3339),
		Status:            string(p.Status),
		JournalEntryID:    p.JournalEntryID,
		Notes:             p.Notes,
		ProcessedBy:       p.ProcessedBy,
	}
	if p.ProcessedAt != nil {
		at := p.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &at
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := CreateInput{
		LeaseAgreementID:  req.LeaseAgreementID,
		PaymentScheduleID: req.PaymentScheduleID,
		ClientID:          req.ClientID,
		Amount:            req.Amount,
		ProcessingFee:     req.ProcessingFee,
		Currency:          req.Currency,
		Notes:             req.Notes,
	}
	if req.PaymentDate != nil {
		in.PaymentDate = *req.PaymentDate
	}
	if err := in.Validate(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	payment, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPaymentResponse(payment))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("agreement_id")
	agreementID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "agreement_id must be an integer")
		return
	}
	list, err := h.service.ListByAgreement(r.Context(), agreementID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	out := make([]paymentResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPaymentResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	payment, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *Handler) markProcessing(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.MarkProcessing(r.Context(), id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req actorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	payment, err := h.service.Complete(r.Context(), id, req.ActorID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *Handler) markFailed(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.MarkFailed(r.Context(), id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req refundRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	payment, err := h.service.Refund(r.Context(), id, req.ActorID, req.Reason)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentResponse(payment))
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
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNoJournalEntry):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		h.logger.Error("payments request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
