/**
 * @description
 * Automatic closure trigger: closes a one-time published case once its
 * recomputed funded total reaches the target. The check always goes through
 * the reconciler's full recompute, never the batch's cached deltas, so a
 * closure decision is made on fresh state.
 */

package app

import (
	"context"

	"github.com/givebridge/ledger-service/internal/domain"
	"github.com/google/uuid"
)

// closureReason is the fixed history reason for funding-completion closes.
const closureReason = "funding goal reached"

// CheckAutomaticClosure recomputes a case's funded total and closes the case
// with a system-triggered transition when the target has been reached. Cases
// that are not one-time or not published get a non-eligible result with no
// mutation, which also makes repeated calls on an already-closed case
// harmless.
func (s *Service) CheckAutomaticClosure(ctx context.Context, caseID uuid.UUID) (*domain.ClosureCheckResult, error) {
	c, err := s.repo.FindCaseByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if c.Type != domain.CaseTypeOneTime || c.Status != domain.CaseStatusPublished {
		return &domain.ClosureCheckResult{
			Eligible:      false,
			CurrentAmount: c.CurrentAmount,
			TargetAmount:  c.TargetAmount,
		}, nil
	}

	current, err := s.RecomputeCaseAmount(ctx, caseID)
	if err != nil {
		return nil, err
	}

	result := &domain.ClosureCheckResult{
		Eligible:      true,
		CurrentAmount: current,
		TargetAmount:  c.TargetAmount,
	}

	if current.GreaterThanOrEqual(c.TargetAmount) {
		if _, err := s.ChangeCaseStatus(ctx, caseID, domain.CaseStatusClosed, SystemActor(), closureReason, true); err != nil {
			return nil, err
		}
		result.Closed = true
		return result, nil
	}

	remaining := c.TargetAmount.Sub(current)
	result.Remaining = &remaining
	return result, nil
}
