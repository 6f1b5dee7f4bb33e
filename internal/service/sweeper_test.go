package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pramudya/pawn-engine/internal/domain"
	"github.com/pramudya/pawn-engine/pkg/clock"
	customError "github.com/pramudya/pawn-engine/pkg/errors"
	"github.com/pramudya/pawn-engine/tests/mocks"
)

// newTestSweeper builds a sweeper over the same mocked repositories as the
// engine. Redis is nil, the lock only matters with concurrent schedulers.
func newTestSweeper(now time.Time) (*Sweeper, *mocks.MockLoanRepository, *mocks.MockPaymentRepository) {
	mockLoanRepo := &mocks.MockLoanRepository{}
	mockPaymentRepo := &mocks.MockPaymentRepository{}
	mockHistoryRepo := &mocks.MockHistoryRepository{}

	cfg := testConfig()
	clk := clock.At(now)
	engine := NewLoanService(mockLoanRepo, mockPaymentRepo, mockHistoryRepo, clk, cfg)
	sweeper := NewSweeper(mockLoanRepo, engine, nil, clk, cfg)

	return sweeper, mockLoanRepo, mockPaymentRepo
}

func TestRunSweep_MarksOverdueWhenInterestNotCovered(t *testing.T) {
	sweeper, mockLoanRepo, mockPaymentRepo := newTestSweeper(afterDue)
	loan := testLoan()

	mockLoanRepo.On("ListActiveDue", mock.Anything, afterDue).Return([]*domain.Loan{loan}, nil)
	mockLoanRepo.On("GetByID", mock.Anything, loan.ID).Return(loan, nil)
	mockPaymentRepo.On("SumByLoanID", mock.Anything, loan.ID).Return(decimal.Zero, nil)
	mockLoanRepo.On("UpdateWithVersion", mock.Anything, mock.MatchedBy(func(l *domain.Loan) bool {
		return l.Status == domain.LoanStatusOverdue && l.DueDate.Equal(dueDate)
	})).Return(nil)

	result, err := sweeper.RunSweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 1, result.MarkedOverdue)
	assert.Equal(t, 0, result.Extended)
	assert.Equal(t, 0, result.Failed)
	mockLoanRepo.AssertExpectations(t)
}

func TestRunSweep_ExtendsWhenInterestCovered(t *testing.T) {
	sweeper, mockLoanRepo, mockPaymentRepo := newTestSweeper(afterDue)
	loan := testLoan()

	mockLoanRepo.On("ListActiveDue", mock.Anything, afterDue).Return([]*domain.Loan{loan}, nil)
	mockLoanRepo.On("GetByID", mock.Anything, loan.ID).Return(loan, nil)
	mockPaymentRepo.On("SumByLoanID", mock.Anything, loan.ID).Return(decimal.NewFromInt(100), nil)
	mockLoanRepo.On("UpdateWithVersion", mock.Anything, mock.MatchedBy(func(l *domain.Loan) bool {
		return l.Status == domain.LoanStatusActive && l.DueDate.Equal(dueDate.AddDate(0, 0, 30))
	})).Return(nil)

	result, err := sweeper.RunSweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Extended)
	assert.Equal(t, 0, result.MarkedOverdue)
	mockLoanRepo.AssertExpectations(t)
}

func TestRunSweep_Idempotent(t *testing.T) {
	// After the first pass a swept loan is either extended (due date in the
	// future) or overdue (no longer active), so the second pass sees nothing.
	sweeper, mockLoanRepo, mockPaymentRepo := newTestSweeper(afterDue)
	loan := testLoan()

	mockLoanRepo.On("ListActiveDue", mock.Anything, afterDue).Return([]*domain.Loan{loan}, nil).Once()
	mockLoanRepo.On("GetByID", mock.Anything, loan.ID).Return(loan, nil)
	mockPaymentRepo.On("SumByLoanID", mock.Anything, loan.ID).Return(decimal.Zero, nil)
	mockLoanRepo.On("UpdateWithVersion", mock.Anything, mock.Anything).Return(nil).Once()

	first, err := sweeper.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.MarkedOverdue)

	mockLoanRepo.On("ListActiveDue", mock.Anything, afterDue).Return([]*domain.Loan{}, nil).Once()

	second, err := sweeper.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Checked)
	assert.Equal(t, 0, second.MarkedOverdue)
	assert.Equal(t, 0, second.Extended)
}

func TestRunSweep_SweepLoanSkipsRacedLoans(t *testing.T) {
	// A loan listed as due but redeemed before its turn is left untouched.
	sweeper, mockLoanRepo, mockPaymentRepo := newTestSweeper(afterDue)
	loan := testLoan()
	loan.Status = domain.LoanStatusRedeemed

	mockLoanRepo.On("ListActiveDue", mock.Anything, afterDue).Return([]*domain.Loan{loan}, nil)
	mockLoanRepo.On("GetByID", mock.Anything, loan.ID).Return(loan, nil)
	mockPaymentRepo.On("SumByLoanID", mock.Anything, loan.ID).Return(decimal.NewFromInt(1100), nil)

	result, err := sweeper.RunSweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)
	mockLoanRepo.AssertNotCalled(t, "UpdateWithVersion", mock.Anything, mock.Anything)
}

func TestRunSweep_PerLoanFailureIsolation(t *testing.T) {
	// The first loan's reads keep failing; the second loan is still swept.
	sweeper, mockLoanRepo, mockPaymentRepo := newTestSweeper(afterDue)
	broken := testLoan()
	healthy := testLoan()
	healthy.TransactionNumber = "TXN-0002"

	mockLoanRepo.On("ListActiveDue", mock.Anything, afterDue).Return([]*domain.Loan{broken, healthy}, nil)
	mockLoanRepo.On("GetByID", mock.Anything, broken.ID).Return(nil, sql.ErrConnDone)
	mockLoanRepo.On("GetByID", mock.Anything, healthy.ID).Return(healthy, nil)
	mockPaymentRepo.On("SumByLoanID", mock.Anything, healthy.ID).Return(decimal.Zero, nil)
	mockLoanRepo.On("UpdateWithVersion", mock.Anything, mock.MatchedBy(func(l *domain.Loan) bool {
		return l.ID == healthy.ID
	})).Return(nil)

	result, err := sweeper.RunSweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.MarkedOverdue)
}

func TestRunSweep_ListFailure(t *testing.T) {
	sweeper, mockLoanRepo, _ := newTestSweeper(afterDue)

	mockLoanRepo.On("ListActiveDue", mock.Anything, afterDue).Return(nil, sql.ErrConnDone)

	_, err := sweeper.RunSweep(context.Background())
	assertCode(t, err, customError.ErrCodeDatabaseError)
}

func TestSweepLoan_DueDateInFutureIsUnchanged(t *testing.T) {
	_, mockLoanRepo, mockPaymentRepo := newTestSweeper(beforeDue)
	engine := NewLoanService(mockLoanRepo, mockPaymentRepo, &mocks.MockHistoryRepository{}, clock.At(beforeDue), testConfig())
	loan := testLoan()

	mockLoanRepo.On("GetByID", mock.Anything, loan.ID).Return(loan, nil)
	mockPaymentRepo.On("SumByLoanID", mock.Anything, loan.ID).Return(decimal.Zero, nil)

	action, got, err := engine.SweepLoan(context.Background(), loan.ID)

	require.NoError(t, err)
	assert.Equal(t, SweepActionUnchanged, action)
	assert.Equal(t, domain.LoanStatusActive, got.Status)
	mockLoanRepo.AssertNotCalled(t, "UpdateWithVersion", mock.Anything, mock.Anything)
}
