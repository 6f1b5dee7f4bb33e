package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pramudya/pawn-engine/internal/domain"
)

type loanRepository struct {
	db *sqlx.DB
}

func NewLoanRepository(db *sqlx.DB) LoanRepository {
	return &loanRepository{db: db}
}

const loanColumns = `id, transaction_number, customer_name, customer_phone, collateral_desc,
		principal, interest_rate, interest_amount, total_payable, remaining_balance,
		issued_date, due_date, term_days, status, version, created_at, updated_at`

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.ExecContext(ctx, query,
		loan.ID,
		loan.TransactionNumber,
		loan.CustomerName,
		loan.CustomerPhone,
		loan.CollateralDesc,
		loan.Principal,
		loan.InterestRate,
		loan.InterestAmount,
		loan.TotalPayable,
		loan.RemainingBalance,
		loan.IssuedDate,
		loan.DueDate,
		loan.TermDays,
		loan.Status,
		loan.Version,
		loan.CreatedAt,
		loan.UpdatedAt,
	)

	return err
}

func (r *loanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	var loan domain.Loan
	err := r.db.GetContext(ctx, &loan, query, id)
	if err != nil {
		return nil, err
	}

	return &loan, nil
}

func (r *loanRepository) GetByTransactionNumber(ctx context.Context, txnNumber string) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE transaction_number = $1`

	var loan domain.Loan
	err := r.db.GetContext(ctx, &loan, query, txnNumber)
	if err != nil {
		return nil, err
	}

	return &loan, nil
}

func (r *loanRepository) Search(ctx context.Context, criteria domain.SearchCriteria) ([]*domain.Loan, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)

	if criteria.TransactionNumber != "" {
		args = append(args, criteria.TransactionNumber)
		conditions = append(conditions, fmt.Sprintf("transaction_number = $%d", len(args)))
	}
	if criteria.CustomerName != "" {
		args = append(args, "%"+criteria.CustomerName+"%")
		conditions = append(conditions, fmt.Sprintf("customer_name ILIKE $%d", len(args)))
	}
	if criteria.CustomerPhone != "" {
		args = append(args, criteria.CustomerPhone)
		conditions = append(conditions, fmt.Sprintf("customer_phone = $%d", len(args)))
	}
	if criteria.Status != "" {
		args = append(args, criteria.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + loanColumns + ` FROM loans WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY issued_date DESC`

	var loans []*domain.Loan
	err := r.db.SelectContext(ctx, &loans, query, args...)
	if err != nil {
		return nil, err
	}

	return loans, nil
}

// UpdateWithVersion performs an optimistic compare-and-swap on the loan row.
// The WHERE clause matches id plus the version the caller read; zero rows
// affected means another operation committed in between.
func (r *loanRepository) UpdateWithVersion(ctx context.Context, loan *domain.Loan) error {
	query := `
		UPDATE loans
		SET remaining_balance = $3, due_date = $4, status = $5,
		    version = version + 1, updated_at = $6
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		loan.ID,
		loan.Version,
		loan.RemainingBalance,
		loan.DueDate,
		loan.Status,
		time.Now(),
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	loan.Version++
	return nil
}

func (r *loanRepository) ListActiveDue(ctx context.Context, cutoff time.Time) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE status = $1 AND due_date < $2
		ORDER BY due_date
	`

	var loans []*domain.Loan
	err := r.db.SelectContext(ctx, &loans, query, domain.LoanStatusActive, cutoff)
	if err != nil {
		return nil, err
	}

	return loans, nil
}
