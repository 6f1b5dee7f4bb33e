package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/pramudya/pawn-engine/internal/domain"
	"github.com/pramudya/pawn-engine/internal/service"
	"github.com/pramudya/pawn-engine/pkg/response"
)

type LoanHandler struct {
	service   *service.LoanService
	sweeper   *service.Sweeper
	validator *validator.Validate
}

func NewLoanHandler(svc *service.LoanService, sweeper *service.Sweeper) *LoanHandler {
	v := validator.New()

	// shopspring decimals need custom comparisons, the builtin gt/gte tags
	// only understand numeric kinds
	_ = v.RegisterValidation("decimal_gt_zero", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(decimal.Decimal)
		return ok && d.IsPositive()
	})
	_ = v.RegisterValidation("decimal_gte_zero", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(decimal.Decimal)
		return ok && !d.IsNegative()
	})

	return &LoanHandler{
		service:   svc,
		sweeper:   sweeper,
		validator: v,
	}
}

// CreateLoan handles POST /api/v1/loans
func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var request domain.CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(&request); err != nil {
		response.BadRequest(w, "Invalid loan request", err)
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), &request)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Created(w, loan)
}

// GetLoan handles GET /api/v1/loans/{loanId}
func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	loan, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, loan)
}

// SearchLoans handles GET /api/v1/loans
func (h *LoanHandler) SearchLoans(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	criteria := domain.SearchCriteria{
		TransactionNumber: query.Get("transaction_number"),
		CustomerName:      query.Get("customer_name"),
		CustomerPhone:     query.Get("customer_phone"),
		Status:            query.Get("status"),
	}

	loans, err := h.service.SearchLoans(r.Context(), criteria)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, loans)
}

// ApplyPayment handles POST /api/v1/loans/{loanId}/payment
func (h *LoanHandler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	var request domain.ApplyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(&request); err != nil {
		response.BadRequest(w, "Invalid payment request", err)
		return
	}

	result, err := h.service.ApplyPayment(r.Context(), loanID, &request)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, result)
}

// ExtendDueDate handles POST /api/v1/loans/{loanId}/extend
func (h *LoanHandler) ExtendDueDate(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	loan, err := h.service.ExtendDueDate(r.Context(), loanID)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, loan)
}

// Redeem handles POST /api/v1/loans/{loanId}/redeem
func (h *LoanHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	h.closeLoan(w, r, h.service.Redeem)
}

// Forfeit handles POST /api/v1/loans/{loanId}/forfeit
func (h *LoanHandler) Forfeit(w http.ResponseWriter, r *http.Request) {
	h.closeLoan(w, r, h.service.Forfeit)
}

func (h *LoanHandler) closeLoan(
	w http.ResponseWriter,
	r *http.Request,
	transition func(ctx context.Context, loanID uuid.UUID, actorID string) (*domain.Loan, error),
) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	var request domain.LoanActionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(&request); err != nil {
		response.BadRequest(w, "Invalid request", err)
		return
	}

	loan, err := transition(r.Context(), loanID, request.ActorID)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, loan)
}

func parseLoanID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	vars := mux.Vars(r)
	loanID, err := uuid.Parse(vars["loanId"])
	if err != nil {
		response.BadRequest(w, "Invalid loan ID", err)
		return uuid.Nil, false
	}
	return loanID, true
}

// RunSweep handles POST /api/v1/sweep
func (h *LoanHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.RunSweep(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrSweepInProgress) {
			response.Conflict(w, "Sweep already in progress", err)
			return
		}
		response.BusinessError(w, err)
		return
	}

	response.Success(w, result)
}
