package journals

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fleetlease/fleetlease/internal/ledger/shared"
	"github.com/fleetlease/fleetlease/internal/platform/httpx"
	internalshared "github.com/fleetlease/fleetlease/internal/shared"
)

// Handler wires HTTP endpoints for journal entries.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers journal routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.remove)
	r.Post("/{id}/lines", h.addLine)
	r.Delete("/{id}/lines/{lineID}", h.removeLine)
	r.Post("/{id}/post", h.post)
	r.Post("/{id}/reverse", h.reverse)
}

type lineRequest struct {
	AccountID   int64           `json:"account_id" validate:"required"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type createEntryRequest struct {
	Date          time.Time       `json:"date" validate:"required"`
	ReferenceKind string          `json:"reference_kind"`
	ReferenceID   int64           `json:"reference_id"`
	Description   string          `json:"description"`
	CreatedBy     int64           `json:"created_by"`
	Lines         []lineRequest   `json:"lines" validate:"dive"`
}

type postEntryRequest struct {
	ActorID int64 `json:"actor_id"`
}

type reverseEntryRequest struct {
	ActorID int64  `json:"actor_id"`
	Reason  string `json:"reason" validate:"required"`
}

type lineResponse struct {
	ID          int64  `json:"id"`
	EntryID     int64  `json:"entry_id"`
	AccountID   int64  `json:"account_id"`
	Description string `json:"description,omitempty"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
}

type entryResponse struct {
	ID            int64          `json:"id"`
	Number        string         `json:"number"`
	Date          string         `json:"date"`
	ReferenceKind string         `json:"reference_kind,omitempty"`
	ReferenceID   int64          `json:"reference_id,omitempty"`
	Description   string         `json:"description,omitempty"`
	TotalDebit    string         `json:"total_debit"`
	TotalCredit   string         `json:"total_credit"`
	Status        string         `json:"status"`
	CreatedBy     int64          `json:"created_by"`
	PostedBy      *int64         `json:"posted_by,omitempty"`
	PostedAt      *string        `json:"posted_at,omitempty"`
	Lines         []lineResponse `json:"lines"`
}

type paginationResponse struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type entryListResponse struct {
	Data       []entryResponse    `json:"data"`
	Pagination paginationResponse `json:"pagination"`
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

func toLineResponse(l JournalLine) lineResponse {
	return lineResponse{
		ID:          l.ID,
		EntryID:     l.EntryID,
		AccountID:   l.AccountID,
		Description: l.Description,
		Debit:       l.Debit.StringFixed(2),
		Credit:      l.Credit.StringFixed(2),
	}
}

func toEntryResponse(e JournalEntry) entryResponse {
	resp := entryResponse{
		ID:          e.ID,
		Number:      e.Number,
		Date:        e.Date.Format(time.RFC3339),
		Description: e.Description,
		TotalDebit:  e.TotalDebit.StringFixed(2),
		TotalCredit: e.TotalCredit.StringFixed(2),
		Status:      string(e.Status),
		CreatedBy:   e.CreatedBy,
		PostedBy:    e.PostedBy,
		Lines:       make([]lineResponse, 0, len(e.Lines)),
	}
	if e.Reference != nil {
		resp.ReferenceKind = string(e.Reference.Kind)
		resp.ReferenceID = e.Reference.ID
	}
	if e.PostedAt != nil {
		at := e.PostedAt.Format(time.RFC3339)
		resp.PostedAt = &at
	}
	for _, l := range e.Lines {
		resp.Lines = append(resp.Lines, toLineResponse(l))
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := CreateEntryInput{
		Date:        req.Date,
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
	}
	if req.ReferenceKind != "" {
		in.Reference = &Reference{Kind: ReferenceKind(req.ReferenceKind), ID: req.ReferenceID}
	}
	if err := in.Validate(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.CreateEntry(r.Context(), in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	for _, l := range req.Lines {
		line := LineInput{
			AccountID:   l.AccountID,
			Description: l.Description,
			Debit:       l.Debit,
			Credit:      l.Credit,
		}
		if err := line.Validate(); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		if _, err := h.service.AddLine(r.Context(), entry.ID, line); err != nil {
			h.respondErr(w, r, err)
			return
		}
	}
	created, err := h.service.Get(r.Context(), entry.ID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(created))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Status:        EntryStatus(r.URL.Query().Get("status")),
		ReferenceKind: ReferenceKind(r.URL.Query().Get("reference_kind")),
		Search:        r.URL.Query().Get("q"),
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "from must be RFC3339")
			return
		}
		filter.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "to must be RFC3339")
			return
		}
		filter.To = t
	}
	page, perPage, ok := pageParams(w, r)
	if !ok {
		return
	}
	filter.Page = page
	filter.PerPage = perPage
	entries, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, entryListResponse{Data: out, Pagination: toPaginationResponse(pagination)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req lineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in := LineInput{
		AccountID:   req.AccountID,
		Description: req.Description,
		Debit:       req.Debit,
		Credit:      req.Credit,
	}
	if err := in.Validate(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	line, err := h.service.AddLine(r.Context(), id, in)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toLineResponse(line))
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := h.pathID(w, r, "lineID")
	if !ok {
		return
	}
	if err := h.service.RemoveLine(r.Context(), id, lineID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req postEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	entry, err := h.service.Post(r.Context(), PostInput{EntryID: id, ActorID: req.ActorID})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req reverseEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.Reverse(r.Context(), ReverseInput{EntryID: id, ActorID: req.ActorID, Reason: req.Reason})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
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
	case errors.Is(err, shared.ErrEntryNotFound), errors.Is(err, shared.ErrLineNotFound), errors.Is(err, shared.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrEntryNotDraft), errors.Is(err, shared.ErrEntryNotPosted), errors.Is(err, shared.ErrEntryImmutable), errors.Is(err, shared.ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrUnbalanced), errors.Is(err, shared.ErrEmptyEntry), errors.Is(err, shared.ErrAccountInactive):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, shared.ErrNegativeAmount), errors.Is(err, shared.ErrBothSides), errors.Is(err, shared.ErrNoSide):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("journals request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
