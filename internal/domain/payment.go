package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PaymentMethodCash = "cash"
	PaymentMethodCard = "card"
)

// PaymentRecord is one payment applied to a loan. Records are append-only;
// the sum of a loan's records is the sole source of truth for total paid.
type PaymentRecord struct {
	ID     uuid.UUID       `json:"id" db:"id"`
	LoanID uuid.UUID       `json:"loan_id" db:"loan_id"`
	Amount decimal.Decimal `json:"amount" db:"amount"`
	Method string          `json:"method" db:"method"`
	PaidAt time.Time       `json:"paid_at" db:"paid_at"`
}
