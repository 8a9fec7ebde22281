/**
 * @description
 * Approval state machine for contributions: pending → approved|rejected, with
 * no transition defined out of the terminal states. Every decision upserts an
 * ApprovalAudit row; approvals hand a positive ledger delta to the reconciler.
 */

package app

import (
	"context"
	"log"
	"strings"

	"github.com/givebridge/ledger-service/internal/domain"
	"github.com/google/uuid"
)

// DecisionAction is an administrator's verdict on a pending contribution.
type DecisionAction string

const (
	ActionApprove DecisionAction = "approve"
	ActionReject  DecisionAction = "reject"
)

// ParseDecisionAction validates the wire form of a decision action.
func ParseDecisionAction(raw string) (DecisionAction, error) {
	switch DecisionAction(strings.TrimSpace(strings.ToLower(raw))) {
	case ActionApprove:
		return ActionApprove, nil
	case ActionReject:
		return ActionReject, nil
	}
	return "", ErrInvalidAction
}

func (a DecisionAction) targetStatus() domain.ContributionStatus {
	if a == ActionApprove {
		return domain.ContributionStatusApproved
	}
	return domain.ContributionStatusRejected
}

// buildDecisionAudit computes the audit row for one decision given the
// snapshot of any pre-existing audit. The resubmission count increments by
// exactly one only when an existing row is updated by a reject; it starts at
// zero on a first-time decision and never moves on approve.
func buildDecisionAudit(existing *domain.ApprovalAudit, contributionID, adminID uuid.UUID, action DecisionAction, reason string) *domain.ApprovalAudit {
	audit := &domain.ApprovalAudit{
		ContributionID: contributionID,
		Status:         action.targetStatus(),
		AdminID:        adminID,
	}
	if existing != nil {
		audit.ResubmissionCount = existing.ResubmissionCount
	}
	if action == ActionReject {
		if existing != nil {
			audit.ResubmissionCount = existing.ResubmissionCount + 1
		}
		trimmed := strings.TrimSpace(reason)
		audit.RejectionReason = &trimmed
	}
	return audit
}

// Decide applies a single approval decision to a pending contribution. The
// contribution must currently be pending; reject requires a non-empty reason,
// approve ignores it. On approve the contribution's amount is folded into its
// case total; the donor notification is dispatched without being awaited.
func (s *Service) Decide(ctx context.Context, contributionID uuid.UUID, action DecisionAction, adminID uuid.UUID, reason string) (*domain.Contribution, error) {
	if action != ActionApprove && action != ActionReject {
		return nil, ErrInvalidAction
	}
	if action == ActionReject && strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}

	contribution, err := s.repo.FindContributionByID(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if contribution.Status != domain.ContributionStatusPending {
		return nil, ErrNotEligible
	}

	audits, err := s.repo.FindApprovalAuditsByContributionIDs(ctx, []uuid.UUID{contributionID})
	if err != nil {
		return nil, err
	}

	changed, err := s.repo.BulkUpdateContributionStatus(ctx, []uuid.UUID{contributionID}, domain.ContributionStatusPending, action.targetStatus())
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		// Lost the race with another decider between read and update.
		return nil, ErrNotEligible
	}
	contribution.Status = action.targetStatus()

	var existing *domain.ApprovalAudit
	if prior, ok := audits[contributionID]; ok {
		existing = &prior
	}
	audit := buildDecisionAudit(existing, contributionID, adminID, action, reason)
	if err := s.repo.UpsertApprovalAudit(ctx, audit); err != nil {
		log.Printf("level=warn component=service flow=approval msg=\"audit upsert failed\" contribution_id=%s err=%v", contributionID, err)
	}

	caseTitle := ""
	if c, caseErr := s.repo.FindCaseByID(ctx, contribution.CaseID); caseErr == nil {
		caseTitle = c.Title
	}

	if action == ActionApprove {
		if deltaErr := s.ApplyCaseDelta(ctx, contribution.CaseID, contribution.Amount); deltaErr != nil {
			log.Printf("level=error component=service flow=approval msg=\"ledger delta failed; case needs reconcile\" case_id=%s contribution_id=%s err=%v", contribution.CaseID, contributionID, deltaErr)
		}
	}

	s.dispatchDecisionNotification(contribution, caseTitle, action.targetStatus(), strings.TrimSpace(reason))

	return contribution, nil
}
