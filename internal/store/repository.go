/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the ledger engine needs. Business logic in internal/app depends only
 * on this interface, which keeps the PostgreSQL implementation swappable and
 * lets tests stub individual methods.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid, github.com/shopspring/decimal: id and money types.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/givebridge/ledger-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Case methods
	CreateCase(ctx context.Context, c *domain.Case) error
	FindCaseByID(ctx context.Context, caseID uuid.UUID) (*domain.Case, error)
	UpdateCaseStatus(ctx context.Context, caseID uuid.UUID, status domain.CaseStatus) error
	AppendCaseStatusHistory(ctx context.Context, entry *domain.CaseStatusHistory) error
	ListCaseStatusHistory(ctx context.Context, caseID uuid.UUID) ([]domain.CaseStatusHistory, error)

	// Ledger maintenance. IncrementCaseAmount applies a delta atomically and
	// bumps the case version; SetCaseAmountIfVersion writes an absolute total
	// only when the version still matches (compare-and-swap), reporting
	// whether the write landed.
	IncrementCaseAmount(ctx context.Context, caseID uuid.UUID, delta decimal.Decimal) error
	SetCaseAmountIfVersion(ctx context.Context, caseID uuid.UUID, amount decimal.Decimal, expectedVersion int64) (bool, error)
	SumApprovedContributions(ctx context.Context, caseID uuid.UUID) (decimal.Decimal, error)

	// Contribution methods
	CreateContribution(ctx context.Context, c *domain.Contribution) error
	FindContributionByID(ctx context.Context, contributionID uuid.UUID) (*domain.Contribution, error)
	FindContributionsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Contribution, error)
	ListPendingContributions(ctx context.Context, filter domain.ContributionFilter, limit int) ([]domain.Contribution, error)
	ListContributionsByCase(ctx context.Context, caseID uuid.UUID, status *domain.ContributionStatus) ([]domain.Contribution, error)
	// BulkUpdateContributionStatus moves every listed contribution from
	// `from` to `to` in one statement and returns the ids that actually
	// changed. Rows already out of `from` are left untouched.
	BulkUpdateContributionStatus(ctx context.Context, ids []uuid.UUID, from, to domain.ContributionStatus) ([]uuid.UUID, error)

	// Approval audit methods
	FindApprovalAuditsByContributionIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.ApprovalAudit, error)
	UpsertApprovalAudit(ctx context.Context, audit *domain.ApprovalAudit) error
}
