package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	LoanStatusActive    = "active"
	LoanStatusOverdue   = "overdue"
	LoanStatusRedeemed  = "redeemed"
	LoanStatusForfeited = "forfeited"
)

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	return status == LoanStatusRedeemed || status == LoanStatusForfeited
}

// Loan represents a collateralized loan entity
type Loan struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	TransactionNumber string          `json:"transaction_number" db:"transaction_number"`
	CustomerName      string          `json:"customer_name" db:"customer_name"`
	CustomerPhone     string          `json:"customer_phone" db:"customer_phone"`
	CollateralDesc    string          `json:"collateral_desc" db:"collateral_desc"`
	Principal         decimal.Decimal `json:"principal" db:"principal"`
	InterestRate      decimal.Decimal `json:"interest_rate" db:"interest_rate"`
	InterestAmount    decimal.Decimal `json:"interest_amount" db:"interest_amount"`
	TotalPayable      decimal.Decimal `json:"total_payable" db:"total_payable"`
	RemainingBalance  decimal.Decimal `json:"remaining_balance" db:"remaining_balance"`
	IssuedDate        time.Time       `json:"issued_date" db:"issued_date"`
	DueDate           time.Time       `json:"due_date" db:"due_date"`
	TermDays          int             `json:"term_days" db:"term_days"`
	Status            string          `json:"status" db:"status"`
	Version           int             `json:"version" db:"version"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// SearchCriteria narrows a loan search. At least one field must be set.
type SearchCriteria struct {
	TransactionNumber string `json:"transaction_number"`
	CustomerName      string `json:"customer_name"`
	CustomerPhone     string `json:"customer_phone"`
	Status            string `json:"status"`
}

// IsEmpty reports whether no criterion was supplied.
func (c SearchCriteria) IsEmpty() bool {
	return c.TransactionNumber == "" && c.CustomerName == "" &&
		c.CustomerPhone == "" && c.Status == ""
}

// DTOs for requests and responses

type CreateLoanRequest struct {
	TransactionNumber string          `json:"transaction_number" validate:"required"`
	CustomerName      string          `json:"customer_name" validate:"required"`
	CustomerPhone     string          `json:"customer_phone"`
	CollateralDesc    string          `json:"collateral_desc"`
	Principal         decimal.Decimal `json:"principal" validate:"decimal_gt_zero"`
	InterestRate      decimal.Decimal `json:"interest_rate" validate:"decimal_gte_zero"`
	TermDays          int             `json:"term_days" validate:"required,gt=0"`

	// Optional overrides for externally priced loans. When set they win over
	// the derived values.
	InterestAmount *decimal.Decimal `json:"interest_amount,omitempty"`
	TotalPayable   *decimal.Decimal `json:"total_payable,omitempty"`
	DueDate        *time.Time       `json:"due_date,omitempty"`
}

type ApplyPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"decimal_gt_zero"`
	Method string          `json:"method" validate:"required,oneof=cash card"`
}

type ApplyPaymentResponse struct {
	Loan    *Loan          `json:"loan"`
	Payment *PaymentRecord `json:"payment"`
	// Extended is true when the payment also triggered a due-date extension.
	Extended bool `json:"extended"`
}

type LoanActionRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
}
