/**
 * @description
 * Ledger reconciler: keeps `cases.current_amount` equal to the sum of the
 * case's approved contributions. Two strategies exist:
 *
 * - ApplyCaseDelta: the incremental path used at the end of a batch. The delta
 *   lands as one atomic SQL increment, so concurrent deltas commute.
 * - RecomputeCaseAmount: the full-recompute path, the source of truth. It
 *   re-derives the total from the contribution rows and writes it behind a
 *   compare-and-swap on the case's version column, retrying when a concurrent
 *   increment moves the version. Safe to run at any time; idempotent.
 */

package app

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const recomputeRetryAttempts = 5

// ApplyCaseDelta folds an approved-contribution delta into a case's running
// total. Zero deltas are dropped without touching the store.
func (s *Service) ApplyCaseDelta(ctx context.Context, caseID uuid.UUID, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	if err := s.repo.IncrementCaseAmount(ctx, caseID, delta); err != nil {
		return fmt.Errorf("failed to apply ledger delta for case %s: %w", caseID, err)
	}
	return nil
}

// RecomputeCaseAmount re-derives a case's funded total from its approved
// contributions and persists it, returning the fresh total. A version conflict
// means an increment landed mid-recompute; the loop re-reads and tries again
// so neither write is lost.
func (s *Service) RecomputeCaseAmount(ctx context.Context, caseID uuid.UUID) (decimal.Decimal, error) {
	for attempt := 1; attempt <= recomputeRetryAttempts; attempt++ {
		c, err := s.repo.FindCaseByID(ctx, caseID)
		if err != nil {
			return decimal.Zero, err
		}

		sum, err := s.repo.SumApprovedContributions(ctx, caseID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to sum approved contributions for case %s: %w", caseID, err)
		}

		if c.CurrentAmount.Equal(sum) {
			return sum, nil
		}

		applied, err := s.repo.SetCaseAmountIfVersion(ctx, caseID, sum, c.Version)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to write recomputed total for case %s: %w", caseID, err)
		}
		if applied {
			log.Printf("level=info component=service flow=reconcile msg=\"case total recomputed\" case_id=%s previous=%s recomputed=%s attempt=%d", caseID, c.CurrentAmount, sum, attempt)
			return sum, nil
		}

		log.Printf("level=info component=service flow=reconcile msg=\"version moved during recompute; retrying\" case_id=%s attempt=%d", caseID, attempt)
	}

	return decimal.Zero, ErrLedgerConflict
}
