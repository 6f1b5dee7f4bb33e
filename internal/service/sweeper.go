package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pramudya/pawn-engine/internal/config"
	"github.com/pramudya/pawn-engine/internal/domain"
	"github.com/pramudya/pawn-engine/internal/repository"
	"github.com/pramudya/pawn-engine/pkg/clock"
	customError "github.com/pramudya/pawn-engine/pkg/errors"
)

const sweepLockKey = "pawn:sweep:lock"

// ErrSweepInProgress is returned when another sweep holds the lock.
var ErrSweepInProgress = errors.New("a sweep is already in progress")

// SweepResult summarizes one due-date sweep pass.
type SweepResult struct {
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Checked       int       `json:"checked"`
	Extended      int       `json:"extended"`
	MarkedOverdue int       `json:"marked_overdue"`
	Unchanged     int       `json:"unchanged"`
	Failed        int       `json:"failed"`
}

// Sweeper drives the due-date check across all active loans whose due date
// has passed. It applies the same per-loan serializable unit as interactive
// operations and never holds a lock across loans.
type Sweeper struct {
	loanRepo repository.LoanRepository
	engine   *LoanService
	redis    *redis.Client
	clock    clock.Clock
	config   *config.Config
}

func NewSweeper(
	loanRepo repository.LoanRepository,
	engine *LoanService,
	redisClient *redis.Client,
	clk clock.Clock,
	cfg *config.Config,
) *Sweeper {
	return &Sweeper{
		loanRepo: loanRepo,
		engine:   engine,
		redis:    redisClient,
		clock:    clk,
		config:   cfg,
	}
}

// RunSweep executes one sweep pass. A Redis lock keeps the periodic trigger
// and on-demand invocations from overlapping. Per-loan failures are isolated:
// transient errors are retried with backoff, then logged and skipped, so one
// broken loan never aborts the rest of the pass. An InvalidState outcome is
// surfaced, since it means the sweep's decision disagreed with the engine's
// preconditions.
func (s *Sweeper) RunSweep(ctx context.Context) (*SweepResult, error) {
	if s.redis != nil {
		acquired, err := s.redis.SetNX(ctx, sweepLockKey, s.clock.Now().Format(time.RFC3339), s.config.GetSweepLockTTL()).Result()
		if err != nil {
			return nil, customError.WrapCacheError(err)
		}
		if !acquired {
			return nil, ErrSweepInProgress
		}
		defer s.redis.Del(context.WithoutCancel(ctx), sweepLockKey)
	}

	result := &SweepResult{StartedAt: s.clock.Now()}

	loans, err := s.loanRepo.ListActiveDue(ctx, s.clock.Now())
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	for _, loan := range loans {
		result.Checked++

		action, err := s.sweepOne(ctx, loan)
		if err != nil {
			if errors.Is(err, customError.ErrInvalidState) {
				// The sweep rule and the engine preconditions disagreed.
				return result, err
			}
			log.Printf("sweep: loan %s (%s) left unchanged: %v", loan.ID, loan.TransactionNumber, err)
			result.Failed++
			continue
		}

		switch action {
		case SweepActionExtended:
			result.Extended++
		case SweepActionMarkedOverdue:
			result.MarkedOverdue++
		default:
			result.Unchanged++
		}
	}

	result.FinishedAt = s.clock.Now()
	log.Printf("sweep: checked=%d extended=%d overdue=%d unchanged=%d failed=%d",
		result.Checked, result.Extended, result.MarkedOverdue, result.Unchanged, result.Failed)

	return result, nil
}

// sweepOne applies the due-date rule to a single loan, retrying transient
// store failures with backoff.
func (s *Sweeper) sweepOne(ctx context.Context, loan *domain.Loan) (string, error) {
	var action string
	var err error

	backoff := 100 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		action, _, err = s.engine.SweepLoan(ctx, loan.ID)
		if err == nil {
			return action, nil
		}
		if !isRetryable(err) {
			return "", err
		}
	}

	return "", err
}

// isRetryable reports whether a sweep failure is worth another attempt.
// Precondition failures and missing loans never are.
func isRetryable(err error) bool {
	switch customError.Code(err) {
	case customError.ErrCodeStoreUnavailable, customError.ErrCodeDatabaseError, customError.ErrCodeConcurrencyConflict:
		return true
	}
	return false
}
