package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pramudya/pawn-engine/internal/domain"
)

type historyRepository struct {
	db *sqlx.DB
}

func NewHistoryRepository(db *sqlx.DB) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) Record(ctx context.Context, entry *domain.HistoryEntry) error {
	query := `
		INSERT INTO loan_history (id, loan_id, action, actor_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.LoanID,
		entry.Action,
		entry.ActorID,
		entry.RecordedAt,
	)

	return err
}

func (r *historyRepository) GetByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.HistoryEntry, error) {
	query := `
		SELECT id, loan_id, action, actor_id, recorded_at
		FROM loan_history
		WHERE loan_id = $1
		ORDER BY recorded_at
	`

	var entries []*domain.HistoryEntry
	err := r.db.SelectContext(ctx, &entries, query, loanID)
	if err != nil {
		return nil, err
	}

	return entries, nil
}
