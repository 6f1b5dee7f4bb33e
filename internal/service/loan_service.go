package service

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pramudya/pawn-engine/internal/config"
	"github.com/pramudya/pawn-engine/internal/domain"
	"github.com/pramudya/pawn-engine/internal/repository"
	"github.com/pramudya/pawn-engine/pkg/clock"
	customError "github.com/pramudya/pawn-engine/pkg/errors"
	"github.com/pramudya/pawn-engine/pkg/utils"
)

const dueDateLayout = "2006-01-02"

// errNoChange signals that a transition decided the loan needs no write.
var errNoChange = errors.New("no change")

// LoanService is the loan lifecycle engine. Every mutating operation runs as
// one read-compute-write cycle against a single loan, guarded by the row's
// version column.
type LoanService struct {
	loanRepo    repository.LoanRepository
	paymentRepo repository.PaymentRepository
	historyRepo repository.HistoryRepository
	clock       clock.Clock
	config      *config.Config
}

func NewLoanService(
	loanRepo repository.LoanRepository,
	paymentRepo repository.PaymentRepository,
	historyRepo repository.HistoryRepository,
	clk clock.Clock,
	cfg *config.Config,
) *LoanService {
	return &LoanService{
		loanRepo:    loanRepo,
		paymentRepo: paymentRepo,
		historyRepo: historyRepo,
		clock:       clk,
		config:      cfg,
	}
}

// CreateLoan validates and persists a new loan in active status
func (s *LoanService) CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, error) {
	if request.TransactionNumber == "" {
		return nil, customError.WrapValidation("transaction number is required")
	}
	if request.CustomerName == "" {
		return nil, customError.WrapValidation("customer name is required")
	}
	if !request.Principal.IsPositive() {
		return nil, customError.WrapValidation("principal must be greater than zero")
	}
	if request.InterestRate.IsNegative() {
		return nil, customError.WrapValidation("interest rate must not be negative")
	}
	if request.TermDays <= 0 {
		return nil, customError.WrapValidation("term days must be greater than zero")
	}

	// Transaction numbers are immutable once issued, reject duplicates up front
	existing, err := s.loanRepo.GetByTransactionNumber(ctx, request.TransactionNumber)
	if err == nil && existing != nil {
		return nil, customError.WrapValidation("transaction number is already in use")
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapDatabaseError(err)
	}

	now := s.clock.Now()

	// Explicit pricing always wins over derived values, so externally priced
	// loans keep their figures.
	interest := utils.CalculateInterest(request.Principal, request.InterestRate)
	if request.InterestAmount != nil {
		interest = *request.InterestAmount
	}
	totalPayable := utils.CalculateTotalPayable(request.Principal, interest)
	if request.TotalPayable != nil {
		totalPayable = *request.TotalPayable
	}
	dueDate := utils.CalculateDueDate(now, request.TermDays)
	if request.DueDate != nil {
		dueDate = *request.DueDate
	}

	loan := &domain.Loan{
		ID:                uuid.New(),
		TransactionNumber: request.TransactionNumber,
		CustomerName:      request.CustomerName,
		CustomerPhone:     request.CustomerPhone,
		CollateralDesc:    request.CollateralDesc,
		Principal:         request.Principal,
		InterestRate:      request.InterestRate,
		InterestAmount:    interest,
		TotalPayable:      totalPayable,
		RemainingBalance:  totalPayable,
		IssuedDate:        now,
		DueDate:           dueDate,
		TermDays:          request.TermDays,
		Status:            domain.LoanStatusActive,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.loanRepo.Create(ctx, loan); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return loan, nil
}

// GetLoan retrieves a single loan by id
func (s *LoanService) GetLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	return s.fetchLoan(ctx, loanID)
}

// SearchLoans retrieves loans matching the criteria. At least one criterion
// must be supplied.
func (s *LoanService) SearchLoans(ctx context.Context, criteria domain.SearchCriteria) ([]*domain.Loan, error) {
	if criteria.IsEmpty() {
		return nil, customError.WrapValidation("at least one search criterion is required")
	}

	loans, err := s.loanRepo.Search(ctx, criteria)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return loans, nil
}

// ApplyPayment appends a payment record and recomputes the loan's remaining
// balance. When the payment covers the interest and the due date has already
// passed, a due-date extension is attempted as a follow-up; an extension
// failure never fails the payment.
func (s *LoanService) ApplyPayment(ctx context.Context, loanID uuid.UUID, request *domain.ApplyPaymentRequest) (*domain.ApplyPaymentResponse, error) {
	if !request.Amount.IsPositive() {
		return nil, customError.WrapValidation("payment amount must be greater than zero")
	}
	if request.Method != domain.PaymentMethodCash && request.Method != domain.PaymentMethodCard {
		return nil, customError.WrapValidation("payment method must be cash or card")
	}

	loan, err := s.fetchLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status == domain.LoanStatusRedeemed {
		return nil, customError.WrapInvalidState(loanID.String(), "loan is already redeemed")
	}

	payment := &domain.PaymentRecord{
		ID:     uuid.New(),
		LoanID: loanID,
		Amount: request.Amount,
		Method: request.Method,
		PaidAt: s.clock.Now(),
	}

	// The ledger is append-only; the insert itself is contention-free. Only
	// the balance projection below needs the version guard.
	if err := s.paymentRepo.Append(ctx, payment); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	var totalPaid decimal.Decimal
	loan, err = s.applyTransition(ctx, loanID, func(l *domain.Loan, paid decimal.Decimal) error {
		if l.Status == domain.LoanStatusRedeemed {
			return customError.WrapInvalidState(loanID.String(), "loan is already redeemed")
		}
		totalPaid = paid
		l.RemainingBalance = utils.CalculateRemainingBalance(l.TotalPayable, paid)
		return nil
	})
	if err != nil {
		return nil, err
	}

	response := &domain.ApplyPaymentResponse{Loan: loan, Payment: payment}

	// Opportunistic extension check
	if totalPaid.GreaterThanOrEqual(loan.InterestAmount) && s.clock.Now().After(loan.DueDate) {
		extended, extendErr := s.ExtendDueDate(ctx, loanID)
		if extendErr != nil {
			log.Printf("payment applied but extension skipped for loan %s: %v", loanID, extendErr)
		} else {
			response.Loan = extended
			response.Extended = true
		}
	}

	return response, nil
}

// ExtendDueDate pushes the due date forward once the interest is covered.
// Allowed only after the current due date has passed; an overdue loan
// re-enters active status.
func (s *LoanService) ExtendDueDate(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	return s.applyTransition(ctx, loanID, func(l *domain.Loan, paid decimal.Decimal) error {
		now := s.clock.Now()
		if domain.IsTerminal(l.Status) {
			return customError.WrapInvalidState(loanID.String(), "loan is already "+l.Status)
		}
		if !now.After(l.DueDate) {
			return customError.WrapInvalidStateDetail(loanID.String(),
				"due date has not passed yet",
				l.RemainingBalance, l.InterestAmount, l.DueDate.Format(dueDateLayout))
		}
		if paid.LessThan(l.InterestAmount) {
			return customError.WrapInvalidStateDetail(loanID.String(),
				"interest is not covered by payments",
				l.RemainingBalance, l.InterestAmount, l.DueDate.Format(dueDateLayout))
		}

		l.DueDate = l.DueDate.AddDate(0, 0, s.config.Business.ExtensionDays)
		l.Status = domain.LoanStatusActive
		return nil
	})
}

// MarkOverdue flags an active loan whose due date has passed without the
// interest being covered. Marking an already overdue loan is a no-op.
func (s *LoanService) MarkOverdue(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	return s.applyTransition(ctx, loanID, func(l *domain.Loan, paid decimal.Decimal) error {
		if l.Status == domain.LoanStatusOverdue {
			return errNoChange
		}
		if l.Status != domain.LoanStatusActive {
			return customError.WrapInvalidState(loanID.String(), "loan is already "+l.Status)
		}
		if !s.clock.Now().After(l.DueDate) {
			return customError.WrapInvalidStateDetail(loanID.String(),
				"due date has not passed yet",
				l.RemainingBalance, l.InterestAmount, l.DueDate.Format(dueDateLayout))
		}
		if paid.GreaterThanOrEqual(l.InterestAmount) {
			return customError.WrapInvalidStateDetail(loanID.String(),
				"interest is covered, loan qualifies for extension instead",
				l.RemainingBalance, l.InterestAmount, l.DueDate.Format(dueDateLayout))
		}

		l.Status = domain.LoanStatusOverdue
		return nil
	})
}

// Redeem closes a fully paid loan and releases the collateral. Terminal.
func (s *LoanService) Redeem(ctx context.Context, loanID uuid.UUID, actorID string) (*domain.Loan, error) {
	loan, err := s.applyTransition(ctx, loanID, func(l *domain.Loan, paid decimal.Decimal) error {
		if domain.IsTerminal(l.Status) {
			return customError.WrapInvalidState(loanID.String(), "loan is already "+l.Status)
		}

		balance := utils.CalculateRemainingBalance(l.TotalPayable, paid)
		if !balance.IsZero() {
			return customError.WrapInvalidStateDetail(loanID.String(),
				"balance is not fully paid",
				balance, l.InterestAmount, l.DueDate.Format(dueDateLayout))
		}

		l.RemainingBalance = balance
		l.Status = domain.LoanStatusRedeemed
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordHistory(ctx, loanID, domain.HistoryActionRedeem, actorID)
	return loan, nil
}

// Forfeit closes a loan past its due date and keeps the collateral. Terminal.
// Forfeiture is a business decision, never applied automatically.
func (s *LoanService) Forfeit(ctx context.Context, loanID uuid.UUID, actorID string) (*domain.Loan, error) {
	loan, err := s.applyTransition(ctx, loanID, func(l *domain.Loan, paid decimal.Decimal) error {
		now := s.clock.Now()
		if domain.IsTerminal(l.Status) {
			return customError.WrapInvalidState(loanID.String(), "loan is already "+l.Status)
		}
		if !now.After(l.DueDate) {
			return customError.WrapInvalidStateDetail(loanID.String(),
				"due date has not passed yet",
				l.RemainingBalance, l.InterestAmount, l.DueDate.Format(dueDateLayout))
		}

		balance := utils.CalculateRemainingBalance(l.TotalPayable, paid)
		if !balance.IsZero() && balance.GreaterThanOrEqual(l.InterestAmount) {
			return customError.WrapInvalidStateDetail(loanID.String(),
				"balance must be zero or below the interest amount",
				balance, l.InterestAmount, l.DueDate.Format(dueDateLayout))
		}

		l.RemainingBalance = balance
		l.Status = domain.LoanStatusForfeited
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordHistory(ctx, loanID, domain.HistoryActionForfeit, actorID)
	return loan, nil
}

// Sweep actions reported by SweepLoan.
const (
	SweepActionExtended      = "extended"
	SweepActionMarkedOverdue = "marked_overdue"
	SweepActionUnchanged     = "unchanged"
)

// SweepLoan applies the due-date rule to one loan inside a single
// read-compute-write cycle: extend when the interest is covered, mark overdue
// otherwise. Loans whose due date has not passed, or that are no longer
// active, are left untouched, which makes repeated sweeps idempotent.
func (s *LoanService) SweepLoan(ctx context.Context, loanID uuid.UUID) (string, *domain.Loan, error) {
	action := SweepActionUnchanged

	loan, err := s.applyTransition(ctx, loanID, func(l *domain.Loan, paid decimal.Decimal) error {
		if l.Status != domain.LoanStatusActive {
			return errNoChange
		}
		if !s.clock.Now().After(l.DueDate) {
			return errNoChange
		}

		if InterestCovered(l, paid) {
			l.DueDate = l.DueDate.AddDate(0, 0, s.config.Business.ExtensionDays)
			l.Status = domain.LoanStatusActive
			action = SweepActionExtended
		} else {
			l.Status = domain.LoanStatusOverdue
			action = SweepActionMarkedOverdue
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	return action, loan, nil
}

// fetchLoan maps sql.ErrNoRows to the NotFound business error.
func (s *LoanService) fetchLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapLoanNotFound(loanID.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return loan, nil
}

// applyTransition is the serializable unit every mutating operation runs in:
// fetch the loan and its paid-to-date sum, let the transition mutate the
// loan, then compare-and-swap on the version column. A version conflict is
// retried once with a fresh read; a second conflict is surfaced.
func (s *LoanService) applyTransition(
	ctx context.Context,
	loanID uuid.UUID,
	transition func(loan *domain.Loan, totalPaid decimal.Decimal) error,
) (*domain.Loan, error) {
	for attempt := 0; attempt < 2; attempt++ {
		loan, err := s.fetchLoan(ctx, loanID)
		if err != nil {
			return nil, err
		}

		totalPaid, err := s.paymentRepo.SumByLoanID(ctx, loan.ID)
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}

		// The stored balance is only a cached projection of the ledger,
		// refresh it on every cycle rather than trusting the row.
		loan.RemainingBalance = utils.CalculateRemainingBalance(loan.TotalPayable, totalPaid)

		if err := transition(loan, totalPaid); err != nil {
			if errors.Is(err, errNoChange) {
				return loan, nil
			}
			return nil, err
		}

		err = s.loanRepo.UpdateWithVersion(ctx, loan)
		if err == nil {
			return loan, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, customError.WrapDatabaseError(err)
		}
	}

	return nil, customError.WrapConcurrencyConflict(loanID.String())
}

// recordHistory performs the best-effort audit write after a terminal
// transition has committed. Its failure is logged, never propagated.
func (s *LoanService) recordHistory(ctx context.Context, loanID uuid.UUID, action, actorID string) {
	entry := &domain.HistoryEntry{
		ID:         uuid.New(),
		LoanID:     loanID,
		Action:     action,
		ActorID:    actorID,
		RecordedAt: s.clock.Now(),
	}

	if err := s.historyRepo.Record(ctx, entry); err != nil {
		log.Printf("history entry for loan %s (%s) not recorded: %v", loanID, action, err)
	}
}

// InterestCovered reports whether a loan's payments cover its interest at the
// given paid-to-date total. Shared with the sweeper so both sides apply the
// same extend-or-overdue rule.
func InterestCovered(loan *domain.Loan, totalPaid decimal.Decimal) bool {
	return totalPaid.GreaterThanOrEqual(loan.InterestAmount)
}
