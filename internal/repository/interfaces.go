package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pramudya/pawn-engine/internal/domain"
)

// ErrVersionConflict is returned by UpdateWithVersion when the loan row was
// modified between the caller's read and its write.
var ErrVersionConflict = errors.New("loan version conflict")

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create persists a new loan
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan by its id
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// GetByTransactionNumber retrieves a loan by its transaction number
	GetByTransactionNumber(ctx context.Context, txnNumber string) (*domain.Loan, error)

	// Search retrieves loans matching the given criteria
	Search(ctx context.Context, criteria domain.SearchCriteria) ([]*domain.Loan, error)

	// UpdateWithVersion writes the loan's mutable fields guarded by the
	// version read by the caller. Returns ErrVersionConflict when the row
	// changed underneath.
	UpdateWithVersion(ctx context.Context, loan *domain.Loan) error

	// ListActiveDue retrieves active loans whose due date is on or before cutoff
	ListActiveDue(ctx context.Context, cutoff time.Time) ([]*domain.Loan, error)
}

// PaymentRepository defines the interface for the append-only payment ledger
type PaymentRepository interface {
	// Append inserts a new payment record
	Append(ctx context.Context, payment *domain.PaymentRecord) error

	// GetByLoanID retrieves all payments for a loan, oldest first
	GetByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.PaymentRecord, error)

	// SumByLoanID calculates the total amount paid for a loan
	SumByLoanID(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error)
}

// HistoryRepository defines the interface for the redeem/forfeit audit log
type HistoryRepository interface {
	// Record inserts a history entry
	Record(ctx context.Context, entry *domain.HistoryEntry) error

	// GetByLoanID retrieves all history entries for a loan
	GetByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.HistoryEntry, error)
}
