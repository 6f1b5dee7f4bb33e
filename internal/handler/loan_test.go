package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pramudya/pawn-engine/internal/config"
	"github.com/pramudya/pawn-engine/internal/domain"
	"github.com/pramudya/pawn-engine/internal/service"
	"github.com/pramudya/pawn-engine/pkg/clock"
	"github.com/pramudya/pawn-engine/tests/mocks"
)

func newTestRouter(t *testing.T) (*mux.Router, *mocks.MockLoanRepository, *mocks.MockPaymentRepository) {
	t.Helper()

	mockLoanRepo := &mocks.MockLoanRepository{}
	mockPaymentRepo := &mocks.MockPaymentRepository{}
	mockHistoryRepo := &mocks.MockHistoryRepository{}

	cfg := &config.Config{
		Business: config.BusinessConfig{ExtensionDays: 30, DefaultTermDays: 30, SweepLockTTL: "10m"},
	}
	clk := clock.At(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := service.NewLoanService(mockLoanRepo, mockPaymentRepo, mockHistoryRepo, clk, cfg)
	sweeper := service.NewSweeper(mockLoanRepo, svc, nil, clk, cfg)
	h := NewLoanHandler(svc, sweeper)

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/loans", h.CreateLoan).Methods("POST")
	api.HandleFunc("/loans", h.SearchLoans).Methods("GET")
	api.HandleFunc("/loans/{loanId}", h.GetLoan).Methods("GET")
	api.HandleFunc("/loans/{loanId}/payment", h.ApplyPayment).Methods("POST")
	api.HandleFunc("/loans/{loanId}/redeem", h.Redeem).Methods("POST")
	api.HandleFunc("/sweep", h.RunSweep).Methods("POST")

	return router, mockLoanRepo, mockPaymentRepo
}

func doJSON(router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(context.Background())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateLoanEndpoint(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		router, mockLoanRepo, _ := newTestRouter(t)
		mockLoanRepo.On("GetByTransactionNumber", mock.Anything, "TXN-0001").Return(nil, sql.ErrNoRows)
		mockLoanRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

		rec := doJSON(router, http.MethodPost, "/api/v1/loans", map[string]interface{}{
			"transaction_number": "TXN-0001",
			"customer_name":      "Budi Santoso",
			"principal":          "1000",
			"interest_rate":      "10",
			"term_days":          30,
		})

		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("validator rejects non-positive principal", func(t *testing.T) {
		router, mockLoanRepo, _ := newTestRouter(t)

		rec := doJSON(router, http.MethodPost, "/api/v1/loans", map[string]interface{}{
			"transaction_number": "TXN-0002",
			"customer_name":      "Budi Santoso",
			"principal":          "0",
			"interest_rate":      "10",
			"term_days":          30,
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockLoanRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("malformed body", func(t *testing.T) {
		router, _, _ := newTestRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/loans", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetLoanEndpoint(t *testing.T) {
	t.Run("not found maps to 404", func(t *testing.T) {
		router, mockLoanRepo, _ := newTestRouter(t)
		loanID := uuid.New()
		mockLoanRepo.On("GetByID", mock.Anything, loanID).Return(nil, sql.ErrNoRows)

		rec := doJSON(router, http.MethodGet, "/api/v1/loans/"+loanID.String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad uuid maps to 400", func(t *testing.T) {
		router, _, _ := newTestRouter(t)

		rec := doJSON(router, http.MethodGet, "/api/v1/loans/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRedeemEndpoint_InvalidStateMapsToConflict(t *testing.T) {
	router, mockLoanRepo, mockPaymentRepo := newTestRouter(t)

	loan := &domain.Loan{
		ID:               uuid.New(),
		Status:           domain.LoanStatusActive,
		TotalPayable:     decimal.NewFromInt(1100),
		RemainingBalance: decimal.NewFromInt(1100),
		InterestAmount:   decimal.NewFromInt(100),
		DueDate:          time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		Version:          1,
	}
	mockLoanRepo.On("GetByID", mock.Anything, loan.ID).Return(loan, nil)
	mockPaymentRepo.On("SumByLoanID", mock.Anything, loan.ID).Return(decimal.Zero, nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/redeem", map[string]interface{}{
		"actor_id": "teller-7",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_STATE", body["code"])
}

func TestSearchLoansEndpoint_NoCriteria(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(router, http.MethodGet, "/api/v1/loans", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
