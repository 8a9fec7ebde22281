package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/givebridge/ledger-service/internal/domain"
	"github.com/givebridge/ledger-service/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ledgerRepoStub is an in-memory Repository used by the service tests. Methods
// not overridden here panic through the embedded interface, which keeps each
// test honest about what it touches.
type ledgerRepoStub struct {
	store.Repository

	cases         map[uuid.UUID]*domain.Case
	contributions map[uuid.UUID]*domain.Contribution
	audits        map[uuid.UUID]domain.ApprovalAudit

	// failUpdateIDs simulates rows the bulk update could not change.
	failUpdateIDs map[uuid.UUID]bool
	// casFailures makes the next N compare-and-swap writes miss.
	casFailures int

	upsertedAudits []domain.ApprovalAudit
	increments     []caseIncrement
	casWrites      int
	history        []domain.CaseStatusHistory
	pendingFilter  *domain.ContributionFilter
	pendingLimit   int
}

type caseIncrement struct {
	caseID uuid.UUID
	delta  decimal.Decimal
}

func newLedgerRepoStub() *ledgerRepoStub {
	return &ledgerRepoStub{
		cases:         make(map[uuid.UUID]*domain.Case),
		contributions: make(map[uuid.UUID]*domain.Contribution),
		audits:        make(map[uuid.UUID]domain.ApprovalAudit),
		failUpdateIDs: make(map[uuid.UUID]bool),
	}
}

func (s *ledgerRepoStub) addCase(c *domain.Case) *domain.Case {
	s.cases[c.ID] = c
	return c
}

func (s *ledgerRepoStub) addContribution(c *domain.Contribution) *domain.Contribution {
	s.contributions[c.ID] = c
	return c
}

func (s *ledgerRepoStub) FindCaseByID(ctx context.Context, caseID uuid.UUID) (*domain.Case, error) {
	c, ok := s.cases[caseID]
	if !ok {
		return nil, store.ErrCaseNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *ledgerRepoStub) UpdateCaseStatus(ctx context.Context, caseID uuid.UUID, status domain.CaseStatus) error {
	c, ok := s.cases[caseID]
	if !ok {
		return store.ErrCaseNotFound
	}
	c.Status = status
	return nil
}

func (s *ledgerRepoStub) AppendCaseStatusHistory(ctx context.Context, entry *domain.CaseStatusHistory) error {
	s.history = append(s.history, *entry)
	return nil
}

func (s *ledgerRepoStub) ListCaseStatusHistory(ctx context.Context, caseID uuid.UUID) ([]domain.CaseStatusHistory, error) {
	var out []domain.CaseStatusHistory
	for _, h := range s.history {
		if h.CaseID == caseID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *ledgerRepoStub) IncrementCaseAmount(ctx context.Context, caseID uuid.UUID, delta decimal.Decimal) error {
	c, ok := s.cases[caseID]
	if !ok {
		return store.ErrCaseNotFound
	}
	c.CurrentAmount = c.CurrentAmount.Add(delta)
	c.Version++
	s.increments = append(s.increments, caseIncrement{caseID: caseID, delta: delta})
	return nil
}

func (s *ledgerRepoStub) SetCaseAmountIfVersion(ctx context.Context, caseID uuid.UUID, amount decimal.Decimal, expectedVersion int64) (bool, error) {
	c, ok := s.cases[caseID]
	if !ok {
		return false, store.ErrCaseNotFound
	}
	if s.casFailures > 0 {
		s.casFailures--
		c.Version++
		return false, nil
	}
	if c.Version != expectedVersion {
		return false, nil
	}
	c.CurrentAmount = amount
	c.Version++
	s.casWrites++
	return true, nil
}

func (s *ledgerRepoStub) SumApprovedContributions(ctx context.Context, caseID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, c := range s.contributions {
		if c.CaseID == caseID && c.Status == domain.ContributionStatusApproved {
			sum = sum.Add(c.Amount)
		}
	}
	return sum, nil
}

func (s *ledgerRepoStub) FindContributionByID(ctx context.Context, contributionID uuid.UUID) (*domain.Contribution, error) {
	c, ok := s.contributions[contributionID]
	if !ok {
		return nil, store.ErrContributionNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *ledgerRepoStub) FindContributionsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Contribution, error) {
	var out []domain.Contribution
	for _, id := range ids {
		if c, ok := s.contributions[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *ledgerRepoStub) ListPendingContributions(ctx context.Context, filter domain.ContributionFilter, limit int) ([]domain.Contribution, error) {
	s.pendingFilter = &filter
	s.pendingLimit = limit

	var out []domain.Contribution
	for _, c := range s.contributions {
		if c.Status != domain.ContributionStatusPending {
			continue
		}
		if filter.CaseID != nil && c.CaseID != *filter.CaseID {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ledgerRepoStub) CreateContribution(ctx context.Context, c *domain.Contribution) error {
	copied := *c
	s.contributions[c.ID] = &copied
	return nil
}

func (s *ledgerRepoStub) ListContributionsByCase(ctx context.Context, caseID uuid.UUID, status *domain.ContributionStatus) ([]domain.Contribution, error) {
	var out []domain.Contribution
	for _, c := range s.contributions {
		if c.CaseID != caseID {
			continue
		}
		if status != nil && c.Status != *status {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *ledgerRepoStub) BulkUpdateContributionStatus(ctx context.Context, ids []uuid.UUID, from, to domain.ContributionStatus) ([]uuid.UUID, error) {
	var changed []uuid.UUID
	for _, id := range ids {
		c, ok := s.contributions[id]
		if !ok || c.Status != from || s.failUpdateIDs[id] {
			continue
		}
		c.Status = to
		changed = append(changed, id)
	}
	return changed, nil
}

func (s *ledgerRepoStub) FindApprovalAuditsByContributionIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.ApprovalAudit, error) {
	out := make(map[uuid.UUID]domain.ApprovalAudit)
	for _, id := range ids {
		if a, ok := s.audits[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (s *ledgerRepoStub) UpsertApprovalAudit(ctx context.Context, audit *domain.ApprovalAudit) error {
	s.audits[audit.ContributionID] = *audit
	s.upsertedAudits = append(s.upsertedAudits, *audit)
	return nil
}

// notifierStub records notification calls for assertions.
type notifierStub struct {
	approvals  []uuid.UUID
	rejections []uuid.UUID
	reasons    []string
	err        error
}

func (n *notifierStub) SendApprovalNotification(ctx context.Context, contributionID, donorID uuid.UUID, amount decimal.Decimal, caseTitle string) error {
	n.approvals = append(n.approvals, contributionID)
	return n.err
}

func (n *notifierStub) SendRejectionNotification(ctx context.Context, contributionID, donorID uuid.UUID, amount decimal.Decimal, caseTitle, reason string) error {
	n.rejections = append(n.rejections, contributionID)
	n.reasons = append(n.reasons, reason)
	return n.err
}

// rateLimiterStub returns a fixed count from ConsumeRateLimit.
type rateLimiterStub struct {
	count int
	err   error
}

func (r *rateLimiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return r.count, 1, r.err
}

var errStoreDown = errors.New("store unavailable")

func newTestService(repo *ledgerRepoStub, notifier *notifierStub) *Service {
	svc := NewService(repo, notifier)
	svc.syncNotify = true
	return svc
}
