package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalculateInterest calculates the interest amount for a loan
// Formula: Principal * Rate / 100
func CalculateInterest(principal decimal.Decimal, ratePercent decimal.Decimal) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	return principal.Mul(ratePercent).Div(hundred).Round(2)
}

// CalculateTotalPayable calculates the full amount owed on a loan
// Formula: Principal + Interest
func CalculateTotalPayable(principal decimal.Decimal, interest decimal.Decimal) decimal.Decimal {
	return principal.Add(interest)
}

// CalculateRemainingBalance calculates the outstanding balance, floored at
// zero. A payment exceeding the outstanding amount clamps the balance to zero
// rather than going negative.
func CalculateRemainingBalance(totalPayable decimal.Decimal, totalPaid decimal.Decimal) decimal.Decimal {
	remaining := totalPayable.Sub(totalPaid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// CalculateDueDate calculates the initial due date for a loan
// Due date is termDays calendar days after the issue date
func CalculateDueDate(issuedDate time.Time, termDays int) time.Time {
	return issuedDate.AddDate(0, 0, termDays)
}

// IsDateOverdue checks if a due date is in the past relative to now
func IsDateOverdue(dueDate time.Time, now time.Time) bool {
	return now.After(dueDate)
}

// DecimalFromFloat converts float64 to decimal.Decimal
func DecimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// DecimalFromString converts string to decimal.Decimal
func DecimalFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
