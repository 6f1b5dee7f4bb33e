package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	HistoryActionRedeem  = "redeem"
	HistoryActionForfeit = "forfeit"
)

// HistoryEntry records who closed out a loan and when. The insert is a
// best-effort secondary write: a failure is logged, never rolled back into
// the status transition.
type HistoryEntry struct {
	ID         uuid.UUID `json:"id" db:"id"`
	LoanID     uuid.UUID `json:"loan_id" db:"loan_id"`
	Action     string    `json:"action" db:"action"`
	ActorID    string    `json:"actor_id" db:"actor_id"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}
