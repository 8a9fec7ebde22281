/**
 * @description
 * Batch approval processor: best-effort bulk approve/reject over a selection
 * of pending contributions. A batch is deliberately not wrapped in a cross-row
 * transaction; partial completion is expected and surfaced per item in the
 * result rather than hidden behind all-or-nothing semantics.
 *
 * Processing order for one batch:
 *   1. snapshot existing approval audits for the eligible set
 *   2. bulk-update contribution status in one statement, collecting changed ids
 *   3. upsert one audit row per changed id
 *   4. on approve, fold per-case amount sums into case totals
 *   5. dispatch notifications per changed contribution, not awaited
 */

package app

import (
	"context"
	"log"
	"strings"

	"github.com/givebridge/ledger-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultBatchSelectionLimit = 500

	batchSelectModeAllPending = "all-pending"
	batchFailureUpdateFailed  = "update failed"
)

// ProcessBatch applies one decision to every eligible contribution in the
// selection. The returned result always satisfies Success+Failed == Total,
// where Total is the size of the eligible set after both filter passes.
// Contributions that are not pending are silently dropped from the batch, not
// counted as failures.
func (s *Service) ProcessBatch(ctx context.Context, actor Actor, req domain.BatchDecisionRequest) (*domain.BatchDecisionResult, error) {
	action, err := ParseDecisionAction(req.Action)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if action == ActionReject && reason == "" {
		return nil, ErrReasonRequired
	}
	if actor.ID == nil {
		return nil, ErrForbidden
	}

	if err := s.consumeBatchRateLimit(ctx, *actor.ID); err != nil {
		return nil, err
	}

	candidates, err := s.selectBatchCandidates(ctx, req)
	if err != nil {
		return nil, err
	}

	// Second pass of the eligibility filter: the selection query already
	// narrowed to pending, but the rows may be stale by the time they arrive.
	eligible := candidates[:0]
	for _, c := range candidates {
		if c.Status == domain.ContributionStatusPending {
			eligible = append(eligible, c)
		}
	}

	result := &domain.BatchDecisionResult{Total: len(eligible)}
	if len(eligible) == 0 {
		return result, nil
	}

	eligibleIDs := make([]uuid.UUID, 0, len(eligible))
	byID := make(map[uuid.UUID]domain.Contribution, len(eligible))
	for _, c := range eligible {
		eligibleIDs = append(eligibleIDs, c.ID)
		byID[c.ID] = c
	}

	// (1) Snapshot audits before any mutation so resubmission counts are
	// computed against the pre-batch state.
	auditSnapshot, err := s.repo.FindApprovalAuditsByContributionIDs(ctx, eligibleIDs)
	if err != nil {
		return nil, err
	}

	// (2) Bulk status update; ids the statement did not touch become per-item
	// failures.
	changedIDs, err := s.repo.BulkUpdateContributionStatus(ctx, eligibleIDs, domain.ContributionStatusPending, action.targetStatus())
	if err != nil {
		return nil, err
	}
	changedSet := make(map[uuid.UUID]bool, len(changedIDs))
	for _, id := range changedIDs {
		changedSet[id] = true
	}
	for _, id := range eligibleIDs {
		if !changedSet[id] {
			result.Errors = append(result.Errors, domain.BatchItemError{
				ContributionID: id,
				Reason:         batchFailureUpdateFailed,
			})
		}
	}
	result.Success = len(changedIDs)
	result.Failed = result.Total - result.Success

	// (3) One audit upsert per changed contribution.
	for _, id := range changedIDs {
		var existing *domain.ApprovalAudit
		if prior, ok := auditSnapshot[id]; ok {
			existing = &prior
		}
		audit := buildDecisionAudit(existing, id, *actor.ID, action, reason)
		if auditErr := s.repo.UpsertApprovalAudit(ctx, audit); auditErr != nil {
			log.Printf("level=warn component=service flow=batch msg=\"audit upsert failed\" contribution_id=%s err=%v", id, auditErr)
		}
	}

	// (4) On approve, fold amounts per case and apply each delta once.
	if action == ActionApprove {
		deltas := make(map[uuid.UUID]decimal.Decimal)
		for _, id := range changedIDs {
			c := byID[id]
			deltas[c.CaseID] = deltas[c.CaseID].Add(c.Amount)
		}
		for caseID, delta := range deltas {
			if deltaErr := s.ApplyCaseDelta(ctx, caseID, delta); deltaErr != nil {
				log.Printf("level=error component=service flow=batch msg=\"ledger delta failed; case needs reconcile\" case_id=%s delta=%s err=%v", caseID, delta, deltaErr)
			}
		}
	}

	// (5) Fire-and-forget notifications for every changed contribution.
	caseTitles := s.lookupCaseTitles(ctx, changedIDs, byID)
	for _, id := range changedIDs {
		contribution := byID[id]
		contribution.Status = action.targetStatus()
		s.dispatchDecisionNotification(&contribution, caseTitles[contribution.CaseID], action.targetStatus(), reason)
	}

	log.Printf("level=info component=service flow=batch msg=\"batch processed\" action=%s total=%d success=%d failed=%d admin_id=%s", action, result.Total, result.Success, result.Failed, *actor.ID)
	return result, nil
}

// selectBatchCandidates resolves the batch selection into contribution rows.
// Explicit ids and "all pending" selection are mutually exclusive inputs; ids
// win when both are supplied.
func (s *Service) selectBatchCandidates(ctx context.Context, req domain.BatchDecisionRequest) ([]domain.Contribution, error) {
	if len(req.IDs) > 0 {
		return s.repo.FindContributionsByIDs(ctx, req.IDs)
	}
	if strings.TrimSpace(req.SelectMode) == batchSelectModeAllPending {
		var filter domain.ContributionFilter
		if req.Filters != nil {
			filter = *req.Filters
		}
		return s.repo.ListPendingContributions(ctx, filter, s.batchSelectionLimit)
	}
	return nil, ErrEmptySelection
}

func (s *Service) lookupCaseTitles(ctx context.Context, changedIDs []uuid.UUID, byID map[uuid.UUID]domain.Contribution) map[uuid.UUID]string {
	titles := make(map[uuid.UUID]string)
	for _, id := range changedIDs {
		caseID := byID[id].CaseID
		if _, seen := titles[caseID]; seen {
			continue
		}
		if c, err := s.repo.FindCaseByID(ctx, caseID); err == nil {
			titles[caseID] = c.Title
		} else {
			titles[caseID] = ""
		}
	}
	return titles
}

func (s *Service) consumeBatchRateLimit(ctx context.Context, adminID uuid.UUID) error {
	if s.rateLimiter == nil || s.batchRateLimit <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, "contribution_batch", adminID.String(), s.batchRateLimit, s.batchRateWindow)
	if err != nil {
		// A broken limiter must not take the batch endpoint down with it.
		log.Printf("level=warn component=service flow=batch msg=\"rate limiter unavailable; allowing request\" admin_id=%s err=%v", adminID, err)
		return nil
	}
	if count > s.batchRateLimit {
		log.Printf("level=warn component=service flow=batch msg=\"batch rate limit exceeded\" admin_id=%s count=%d limit=%d retry_after_s=%d", adminID, count, s.batchRateLimit, retryAfter)
		return ErrBatchRateLimited
	}
	return nil
}
