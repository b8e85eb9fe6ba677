package schedules

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

// Handler wires HTTP endpoints for payment schedules.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers schedule routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/due", h.listDue)
	r.Get("/current-month", h.listCurrentMonth)
	r.Get("/{id}", h.get)
	r.Post("/{id}/payments", h.recordPayment)
	r.Get("/{id}/late-fee", h.lateFee)
	r.Post("/{id}/late-fee", h.applyLateFee)
	r.Post("/{id}/overdue", h.markOverdue)
	r.Post("/{id}/waive", h.waive)
}

// MountAgreementRoutes registers the per-agreement schedule routes.
func (h *Handler) MountAgreementRoutes(r chi.Router) {
	r.Get("/{agreementID}/schedules", h.listByAgreement)
	r.Post("/{agreementID}/schedules", h.generate)
}

type recordPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	PaymentDate *time.Time      `json:"payment_date"`
}

type waiveRequest struct {
	ActorID int64 `json:"actor_id"`
}

type scheduleResponse struct {
	ID                int64   `json:"id"`
	LeaseAgreementID  int64   `json:"lease_agreement_id"`
	InstallmentNumber int     `json:"installment_number"`
	DueDate           string  `json:"due_date"`
	PrincipalAmount   string  `json:"principal_amount"`
	InterestAmount    string  `json:"interest_amount"`
	TotalAmount       string  `json:"total_amount"`
	Status            string  `json:"status"`
	PaidAmount        string  `json:"paid_amount"`
	PaidDate          *string `json:"paid_date,omitempty"`
	LateFee           string  `json:"late_fee"`
	RemainingAmount   string  `json:"remaining_amount"`
}

type lateFeeResponse struct {
	ScheduleID int64  `json:"schedule_id"`
	LateFee    string `json:"late_fee"`
}

func toScheduleResponse(s PaymentSchedule) scheduleResponse {
	resp := scheduleResponse{
		ID:                s.ID,
		LeaseAgreementID:  s.LeaseAgreementID,
		InstallmentNumber: s.InstallmentNumber,
		DueDate:           s.DueDate.Format("2006-01-02"),
		PrincipalAmount:   s.PrincipalAmount.StringFixed(2),
		InterestAmount:    s.InterestAmount.StringFixed(2),
		TotalAmount:       s.TotalAmount.StringFixed(2),
		Status:            string(s.Status),
		PaidAmount:        s.PaidAmount.StringFixed(2),
		LateFee:           s.LateFee.StringFixed(2),
		RemainingAmount:   s.RemainingAmount().StringFixed(2),
	}
	if s.PaidDate != nil {
		d := s.PaidDate.Format("2006-01-02")
		resp.PaidDate = &d
	}
	return resp
}

func toScheduleResponses(list []PaymentSchedule) []scheduleResponse {
	out := make([]scheduleResponse, 0, len(list))
	for _, s := range list {
		out = append(out, toScheduleResponse(s))
	}
	return out
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	agreementID, ok := h.pathID(w, r, "agreementID")
	if !ok {
		return
	}
	generated, err := h.service.Generate(r.Context(), agreementID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toScheduleResponses(generated))
}

func (h *Handler) listByAgreement(w http.ResponseWriter, r *http.Request) {
	agreementID, ok := h.pathID(w, r, "agreementID")
	if !ok {
		return
	}
	list, err := h.service.ListByAgreement(r.Context(), agreementID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toScheduleResponses(list))
}

func (h *Handler) listDue(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "days must be a non-negative integer")
			return
		}
		days = parsed
	}
	list, err := h.service.ListDueWithin(r.Context(), days)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toScheduleResponses(list))
}

func (h *Handler) listCurrentMonth(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListCurrentMonth(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toScheduleResponses(list))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	schedule, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toScheduleResponse(schedule))
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req recordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	paymentDate := time.Now().UTC()
	if req.PaymentDate != nil {
		paymentDate = *req.PaymentDate
	}
	updated, err := h.service.RecordPayment(r.Context(), id, req.Amount, paymentDate)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toScheduleResponse(updated))
}

func (h *Handler) lateFee(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	fee, err := h.service.LateFee(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lateFeeResponse{ScheduleID: id, LateFee: fee.StringFixed(2)})
}

func (h *Handler) applyLateFee(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	fee, err := h.service.ApplyLateFee(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lateFeeResponse{ScheduleID: id, LateFee: fee.StringFixed(2)})
}

func (h *Handler) markOverdue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	updated, err := h.service.UpdateOverdueStatus(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toScheduleResponse(updated))
}

func (h *Handler) waive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req waiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	updated, err := h.service.Waive(r.Context(), id, req.ActorID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toScheduleResponse(updated))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Path", name+" must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrScheduleNotFound), errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrScheduleExists):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrScheduleSettled), errors.Is(err, ErrOverpayment):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrNonPositiveAmount):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("schedules request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
