/**
 * @description
 * This file contains the core of the contribution ledger engine. The `Service`
 * struct orchestrates approval decisions, case lifecycle transitions, ledger
 * reconciliation and batch processing, coordinating between the database
 * repository and the notification producer.
 *
 * Key features:
 * - Actor identity and role are threaded explicitly through every operation;
 *   there is no ambient request-scoped actor state.
 * - Notification dispatch is fire-and-forget: its failure never rolls back or
 *   blocks the approval decision that triggered it.
 *
 * @dependencies
 * - context, errors, log, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/givebridge/ledger-service/internal/domain"
	"github.com/givebridge/ledger-service/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleDonor   = "donor"
	RoleSystem  = "system"
)

var (
	ErrNotEligible       = errors.New("contribution is not pending")
	ErrReasonRequired    = errors.New("a rejection reason is required")
	ErrEmptySelection    = errors.New("contribution selection is empty")
	ErrInvalidAction     = errors.New("action must be approve or reject")
	ErrInvalidAmount     = errors.New("contribution amount must be positive")
	ErrInvalidTransition = errors.New("status transition is not allowed")
	ErrForbidden         = errors.New("role is not permitted to make this transition")
	ErrBatchRateLimited  = errors.New("batch rate limit exceeded")
	ErrLedgerConflict    = errors.New("case total changed concurrently; recompute retries exhausted")
	ErrInvalidCaseStatus = errors.New("unknown case status")
)

// Actor identifies who is performing an operation. A nil ID with RoleSystem
// marks a system-triggered operation.
type Actor struct {
	ID   *uuid.UUID
	Role string
}

// SystemActor returns the actor used for automated lifecycle transitions.
func SystemActor() Actor {
	return Actor{Role: RoleSystem}
}

// Notifier is the narrow contract to the external notification service.
// Failures are logged by the caller and never surfaced to API clients.
type Notifier interface {
	SendApprovalNotification(ctx context.Context, contributionID, donorID uuid.UUID, amount decimal.Decimal, caseTitle string) error
	SendRejectionNotification(ctx context.Context, contributionID, donorID uuid.UUID, amount decimal.Decimal, caseTitle, reason string) error
}

// RateLimiter is the contract for the distributed batch rate limiter.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for the contribution ledger.
type Service struct {
	repo     store.Repository
	notifier Notifier

	rateLimiter         RateLimiter
	batchRateLimit      int
	batchRateWindow     time.Duration
	batchSelectionLimit int

	// syncNotify makes dispatch synchronous so tests can observe it.
	syncNotify bool
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository, notifier Notifier) *Service {
	return &Service{
		repo:                repo,
		notifier:            notifier,
		batchSelectionLimit: defaultBatchSelectionLimit,
	}
}

// SetBatchRateLimiter installs a distributed rate limiter for batch calls.
func (s *Service) SetBatchRateLimiter(limiter RateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.batchRateLimit = perMinute
	s.batchRateWindow = time.Minute
}

// SetBatchSelectionLimit caps how many contributions an "all pending"
// selection may pull in one batch.
func (s *Service) SetBatchSelectionLimit(limit int) {
	if limit > 0 {
		s.batchSelectionLimit = limit
	}
}

// CreateCase records a new draft case owned by the creating actor.
func (s *Service) CreateCase(ctx context.Context, creatorID uuid.UUID, req domain.CreateCaseRequest) (*domain.Case, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, errors.New("case title is required")
	}
	if req.TargetAmount.IsNegative() {
		return nil, errors.New("target amount must not be negative")
	}
	caseType := req.Type
	if caseType == "" {
		caseType = domain.CaseTypeOneTime
	}

	c := &domain.Case{
		ID:           uuid.New(),
		Title:        strings.TrimSpace(req.Title),
		Category:     strings.TrimSpace(req.Category),
		Type:         caseType,
		Status:       domain.CaseStatusDraft,
		TargetAmount: req.TargetAmount,
		CreatedBy:    creatorID,
	}
	if err := s.repo.CreateCase(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetCase retrieves a case with its current funded total.
func (s *Service) GetCase(ctx context.Context, caseID uuid.UUID) (*domain.Case, error) {
	return s.repo.FindCaseByID(ctx, caseID)
}

// GetCaseStatusHistory returns the append-only transition trail for a case.
func (s *Service) GetCaseStatusHistory(ctx context.Context, caseID uuid.UUID) ([]domain.CaseStatusHistory, error) {
	if _, err := s.repo.FindCaseByID(ctx, caseID); err != nil {
		return nil, err
	}
	return s.repo.ListCaseStatusHistory(ctx, caseID)
}

// ListCaseContributions returns a case's contributions, optionally filtered by status.
func (s *Service) ListCaseContributions(ctx context.Context, caseID uuid.UUID, status *domain.ContributionStatus) ([]domain.Contribution, error) {
	if _, err := s.repo.FindCaseByID(ctx, caseID); err != nil {
		return nil, err
	}
	return s.repo.ListContributionsByCase(ctx, caseID, status)
}

// RecordContribution creates a contribution against a case. Donor submissions
// start pending; administrators may record an already-paid contribution
// directly as approved, in which case the amount is folded into the case total
// immediately and an audit row is written for the recording admin.
func (s *Service) RecordContribution(ctx context.Context, actor Actor, req domain.CreateContributionRequest) (*domain.Contribution, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	c, err := s.repo.FindCaseByID(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}

	status := domain.ContributionStatusPending
	directApproval := req.AlreadyPaid && (actor.Role == RoleAdmin || actor.Role == RoleManager)
	if directApproval {
		status = domain.ContributionStatusApproved
	}

	contribution := &domain.Contribution{
		ID:              uuid.New(),
		CaseID:          req.CaseID,
		DonorID:         req.DonorID,
		PaymentMethodID: req.PaymentMethodID,
		Amount:          req.Amount,
		Status:          status,
		Notes:           strings.TrimSpace(req.Notes),
	}
	if err := s.repo.CreateContribution(ctx, contribution); err != nil {
		return nil, err
	}

	if directApproval {
		if actor.ID != nil {
			audit := &domain.ApprovalAudit{
				ContributionID: contribution.ID,
				Status:         domain.ContributionStatusApproved,
				AdminID:        *actor.ID,
			}
			if auditErr := s.repo.UpsertApprovalAudit(ctx, audit); auditErr != nil {
				log.Printf("level=warn component=service flow=record_contribution msg=\"audit upsert failed\" contribution_id=%s err=%v", contribution.ID, auditErr)
			}
		}
		if deltaErr := s.ApplyCaseDelta(ctx, req.CaseID, req.Amount); deltaErr != nil {
			log.Printf("level=error component=service flow=record_contribution msg=\"ledger delta failed; case needs reconcile\" case_id=%s err=%v", req.CaseID, deltaErr)
		}
		s.dispatchDecisionNotification(contribution, c.Title, domain.ContributionStatusApproved, "")
	}

	return contribution, nil
}

// dispatchDecisionNotification sends the approval or rejection notification
// for one contribution without awaiting the result. Errors are logged only.
func (s *Service) dispatchDecisionNotification(contribution *domain.Contribution, caseTitle string, outcome domain.ContributionStatus, reason string) {
	if s.notifier == nil {
		return
	}
	id := contribution.ID
	donorID := contribution.DonorID
	amount := contribution.Amount

	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var err error
		if outcome == domain.ContributionStatusApproved {
			err = s.notifier.SendApprovalNotification(ctx, id, donorID, amount, caseTitle)
		} else {
			err = s.notifier.SendRejectionNotification(ctx, id, donorID, amount, caseTitle, reason)
		}
		if err != nil {
			log.Printf("level=warn component=service flow=notify msg=\"notification dispatch failed\" contribution_id=%s outcome=%s err=%v", id, outcome, err)
		}
	}

	if s.syncNotify {
		run()
		return
	}
	go run()
}
