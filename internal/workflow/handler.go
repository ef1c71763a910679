package workflow

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/expenseflow/internal/approval"
	"github.com/odyssey-erp/expenseflow/internal/expense"
	"github.com/odyssey-erp/expenseflow/internal/platform/httpx"
	"github.com/odyssey-erp/expenseflow/internal/roles"
	"github.com/odyssey-erp/expenseflow/internal/shared"
)

// Handler exposes the workflow over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers expense routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.submit)
	r.Get("/unpaid", h.listUnpaid)
	r.Get("/{id}", h.get)
	r.Post("/{id}/{action}", h.act)
}

type submitRequest struct {
	InitiatorID   int64  `json:"initiator_id"`
	Amount        string `json:"amount"`
	Item          string `json:"item"`
	Group         string `json:"group"`
	Comment       string `json:"comment"`
	Period        string `json:"period"`
	PaymentMethod string `json:"payment_method"`
}

type actRequest struct {
	ActorID int64  `json:"actor_id"`
	Role    string `json:"role,omitempty"`
}

// RecordView is the JSON shape of a record.
type RecordView struct {
	ID                int64           `json:"id"`
	Amount            decimal.Decimal `json:"amount"`
	Item              string          `json:"item"`
	Group             string          `json:"group"`
	Comment           string          `json:"comment"`
	Period            []string        `json:"period"`
	PaymentMethod     string          `json:"payment_method"`
	ApprovalsNeeded   int             `json:"approvals_needed"`
	ApprovalsReceived int             `json:"approvals_received"`
	Status            string          `json:"status"`
	ApprovedBy        string          `json:"approved_by,omitempty"`
	RejectedBy        string          `json:"rejected_by,omitempty"`
	InitiatorID       int64           `json:"initiator_id"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewRecordView converts a record for output.
func NewRecordView(rec expense.Record) RecordView {
	return RecordView{
		ID:                rec.ID,
		Amount:            rec.Amount,
		Item:              rec.Item,
		Group:             rec.Group,
		Comment:           rec.Comment,
		Period:            rec.Period,
		PaymentMethod:     string(rec.PaymentMethod),
		ApprovalsNeeded:   rec.ApprovalsNeeded,
		ApprovalsReceived: rec.ApprovalsReceived,
		Status:            string(rec.Status),
		ApprovedBy:        rec.ApprovedBy,
		RejectedBy:        rec.RejectedBy,
		InitiatorID:       rec.InitiatorID,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Submit(r.Context(), expense.SubmitInput{
		InitiatorID:   req.InitiatorID,
		Amount:        req.Amount,
		Item:          req.Item,
		Group:         req.Group,
		Comment:       req.Comment,
		Period:        req.Period,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewRecordView(rec))
}

func (h *Handler) listUnpaid(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListUnpaid(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]RecordView, 0, len(records))
	for _, rec := range records {
		out = append(out, NewRecordView(rec))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewRecordView(rec))
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	action, err := approval.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		httpx.RespondError(w, httpx.Wrap(httpx.ErrNotFound, err))
		return
	}
	var req actRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := ActInput{RecordID: id, ActorID: req.ActorID, Action: action}
	if req.Role != "" {
		role, err := parseRole(req.Role)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Role = role
	}
	rec, err := h.service.Act(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewRecordView(rec))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	mapped := MapError(err)
	if !isClientError(mapped) {
		h.logger.Error("expense api", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, mapped)
}

// MapError tags workflow errors with the HTTP sentinel they answer to.
func MapError(err error) error {
	switch {
	case errors.Is(err, expense.ErrValidation), errors.Is(err, approval.ErrUnknownAction):
		return httpx.Wrap(httpx.ErrValidation, err)
	case errors.Is(err, expense.ErrNotFound):
		return httpx.Wrap(httpx.ErrNotFound, err)
	case errors.Is(err, approval.ErrAlreadyProcessed),
		errors.Is(err, approval.ErrWrongStatus),
		errors.Is(err, expense.ErrConcurrentUpdate):
		return httpx.Wrap(httpx.ErrConflict, err)
	case errors.Is(err, approval.ErrRoleNotAllowed), errors.Is(err, shared.ErrAccessDenied):
		return httpx.Wrap(httpx.ErrForbidden, err)
	}
	return err
}

func isClientError(err error) bool {
	return errors.Is(err, httpx.ErrValidation) ||
		errors.Is(err, httpx.ErrNotFound) ||
		errors.Is(err, httpx.ErrConflict) ||
		errors.Is(err, httpx.ErrForbidden)
}

func recordID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, httpx.Wrap(httpx.ErrValidation, errors.New("invalid record id"))
	}
	return id, nil
}

func parseRole(raw string) (roles.Role, error) {
	role, err := roles.Parse(raw)
	if err != nil {
		return "", httpx.Wrap(httpx.ErrValidation, err)
	}
	return role, nil
}
