/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL needed for the cases, contributions,
 * approval_audits and case_status_history tables.
 *
 * @dependencies
 * - context, errors, strings: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/givebridge/ledger-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrCaseNotFound         = errors.New("case not found")
	ErrContributionNotFound = errors.New("contribution not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const caseColumns = `id, title, COALESCE(category, '') AS category, type, status, target_amount, current_amount, version, created_by, created_at, updated_at`

func scanCase(row pgx.Row) (*domain.Case, error) {
	var c domain.Case
	err := row.Scan(
		&c.ID,
		&c.Title,
		&c.Category,
		&c.Type,
		&c.Status,
		&c.TargetAmount,
		&c.CurrentAmount,
		&c.Version,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateCase inserts a new case row. New cases always start in draft with a
// zero funded total.
func (r *PostgresRepository) CreateCase(ctx context.Context, c *domain.Case) error {
	query := `
		INSERT INTO cases (id, title, category, type, status, target_amount, current_amount, version, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		c.ID, c.Title, c.Category, c.Type, c.Status, c.TargetAmount, c.CreatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

// FindCaseByID retrieves one case, including its current ledger version.
func (r *PostgresRepository) FindCaseByID(ctx context.Context, caseID uuid.UUID) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	return scanCase(r.db.QueryRow(ctx, query, caseID))
}

// UpdateCaseStatus sets the lifecycle status of a case.
func (r *PostgresRepository) UpdateCaseStatus(ctx context.Context, caseID uuid.UUID, status domain.CaseStatus) error {
	query := `UPDATE cases SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, status, caseID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}

// AppendCaseStatusHistory records one lifecycle transition. History rows are
// append-only; nothing in this repository updates or deletes them.
func (r *PostgresRepository) AppendCaseStatusHistory(ctx context.Context, entry *domain.CaseStatusHistory) error {
	query := `
		INSERT INTO case_status_history (id, case_id, previous_status, new_status, actor_id, actor_role, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		entry.ID, entry.CaseID, entry.PreviousStatus, entry.NewStatus, entry.ActorID, entry.ActorRole, entry.Reason,
	).Scan(&entry.CreatedAt)
}

// ListCaseStatusHistory returns the full transition trail of a case, oldest first.
func (r *PostgresRepository) ListCaseStatusHistory(ctx context.Context, caseID uuid.UUID) ([]domain.CaseStatusHistory, error) {
	query := `
		SELECT id, case_id, previous_status, new_status, actor_id, actor_role, COALESCE(reason, '') AS reason, created_at
		FROM case_status_history
		WHERE case_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.CaseStatusHistory
	for rows.Next() {
		var entry domain.CaseStatusHistory
		if err := rows.Scan(
			&entry.ID,
			&entry.CaseID,
			&entry.PreviousStatus,
			&entry.NewStatus,
			&entry.ActorID,
			&entry.ActorRole,
			&entry.Reason,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

// IncrementCaseAmount folds a batch delta into the case total. The increment
// is a single atomic statement, so concurrent deltas commute; the version bump
// makes any in-flight recompute CAS miss and re-read.
func (r *PostgresRepository) IncrementCaseAmount(ctx context.Context, caseID uuid.UUID, delta decimal.Decimal) error {
	query := `
		UPDATE cases
		SET current_amount = current_amount + $1, version = version + 1, updated_at = NOW()
		WHERE id = $2
	`
	result, err := r.db.Exec(ctx, query, delta, caseID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}

// SetCaseAmountIfVersion writes an absolute funded total guarded by the
// optimistic version column. A false return with a nil error means the version
// moved underneath the caller, who should re-read and retry.
func (r *PostgresRepository) SetCaseAmountIfVersion(ctx context.Context, caseID uuid.UUID, amount decimal.Decimal, expectedVersion int64) (bool, error) {
	query := `
		UPDATE cases
		SET current_amount = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
	`
	result, err := r.db.Exec(ctx, query, amount, caseID, expectedVersion)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// SumApprovedContributions derives a case's funded total from scratch.
func (r *PostgresRepository) SumApprovedContributions(ctx context.Context, caseID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	query := `SELECT COALESCE(SUM(amount), 0) FROM contributions WHERE case_id = $1 AND status = 'approved'`
	if err := r.db.QueryRow(ctx, query, caseID).Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

const contributionColumns = `id, case_id, donor_id, payment_method_id, amount, status, COALESCE(notes, '') AS notes, created_at, updated_at`

func scanContributionRows(rows pgx.Rows) ([]domain.Contribution, error) {
	defer rows.Close()
	var contributions []domain.Contribution
	for rows.Next() {
		var c domain.Contribution
		if err := rows.Scan(
			&c.ID,
			&c.CaseID,
			&c.DonorID,
			&c.PaymentMethodID,
			&c.Amount,
			&c.Status,
			&c.Notes,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		contributions = append(contributions, c)
	}
	return contributions, rows.Err()
}

// CreateContribution inserts a new contribution row with the given status.
func (r *PostgresRepository) CreateContribution(ctx context.Context, c *domain.Contribution) error {
	query := `
		INSERT INTO contributions (id, case_id, donor_id, payment_method_id, amount, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		c.ID, c.CaseID, c.DonorID, c.PaymentMethodID, c.Amount, c.Status, c.Notes,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

// FindContributionByID retrieves a single contribution.
func (r *PostgresRepository) FindContributionByID(ctx context.Context, contributionID uuid.UUID) (*domain.Contribution, error) {
	var c domain.Contribution
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE id = $1`
	err := r.db.QueryRow(ctx, query, contributionID).Scan(
		&c.ID, &c.CaseID, &c.DonorID, &c.PaymentMethodID, &c.Amount, &c.Status, &c.Notes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrContributionNotFound
		}
		return nil, err
	}
	return &c, nil
}

// FindContributionsByIDs fetches the listed contributions in one query.
// Missing ids are simply absent from the result; the batch processor treats
// them as ineligible rather than failing the whole selection.
func (r *PostgresRepository) FindContributionsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Contribution, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE id = ANY($1)`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	return scanContributionRows(rows)
}

// ListPendingContributions selects pending contributions matching the filter.
// The status predicate is fixed here; the service re-checks it on the fetched
// rows to defend against stale reads.
func (r *PostgresRepository) ListPendingContributions(ctx context.Context, filter domain.ContributionFilter, limit int) ([]domain.Contribution, error) {
	var (
		conditions = []string{"c.status = 'pending'"}
		args       []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CaseID != nil {
		conditions = append(conditions, "c.case_id = "+arg(*filter.CaseID))
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, "c.created_at >= "+arg(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		conditions = append(conditions, "c.created_at <= "+arg(*filter.DateTo))
	}
	if filter.MinAmount != nil {
		conditions = append(conditions, "c.amount >= "+arg(*filter.MinAmount))
	}
	if filter.MaxAmount != nil {
		conditions = append(conditions, "c.amount <= "+arg(*filter.MaxAmount))
	}
	if filter.PaymentMethodID != nil {
		conditions = append(conditions, "c.payment_method_id = "+arg(*filter.PaymentMethodID))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		conditions = append(conditions, "c.notes ILIKE "+arg("%"+s+"%"))
	}

	join := ""
	if name := strings.TrimSpace(filter.DonorName); name != "" {
		join = " JOIN donors d ON d.id = c.donor_id"
		conditions = append(conditions, "d.full_name ILIKE "+arg("%"+name+"%"))
	}

	query := `SELECT ` + prefixedContributionColumns + ` FROM contributions c` + join +
		` WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY c.created_at ASC LIMIT ` + arg(limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanContributionRows(rows)
}

const prefixedContributionColumns = `c.id, c.case_id, c.donor_id, c.payment_method_id, c.amount, c.status, COALESCE(c.notes, '') AS notes, c.created_at, c.updated_at`

// ListContributionsByCase returns a case's contributions, optionally narrowed
// to one status, newest first.
func (r *PostgresRepository) ListContributionsByCase(ctx context.Context, caseID uuid.UUID, status *domain.ContributionStatus) ([]domain.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE case_id = $1`
	args := []interface{}{caseID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanContributionRows(rows)
}

// BulkUpdateContributionStatus transitions every listed contribution still in
// the `from` status in one statement, returning the ids that changed. The
// WHERE clause is the second half of the double eligibility filter: a row that
// slipped out of `from` between selection and update is skipped, not clobbered.
func (r *PostgresRepository) BulkUpdateContributionStatus(ctx context.Context, ids []uuid.UUID, from, to domain.ContributionStatus) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		UPDATE contributions
		SET status = $1, updated_at = NOW()
		WHERE id = ANY($2) AND status = $3
		RETURNING id
	`
	rows, err := r.db.Query(ctx, query, to, ids, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changed []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		changed = append(changed, id)
	}
	return changed, rows.Err()
}

// FindApprovalAuditsByContributionIDs snapshots existing audit rows for a
// selection, keyed by contribution id.
func (r *PostgresRepository) FindApprovalAuditsByContributionIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.ApprovalAudit, error) {
	audits := make(map[uuid.UUID]domain.ApprovalAudit)
	if len(ids) == 0 {
		return audits, nil
	}
	query := `
		SELECT contribution_id, status, admin_id, rejection_reason, resubmission_count, created_at, updated_at
		FROM approval_audits
		WHERE contribution_id = ANY($1)
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var audit domain.ApprovalAudit
		if err := rows.Scan(
			&audit.ContributionID,
			&audit.Status,
			&audit.AdminID,
			&audit.RejectionReason,
			&audit.ResubmissionCount,
			&audit.CreatedAt,
			&audit.UpdatedAt,
		); err != nil {
			return nil, err
		}
		audits[audit.ContributionID] = audit
	}
	return audits, rows.Err()
}

// UpsertApprovalAudit creates or replaces the audit row for a contribution.
// The resubmission count is computed by the caller from its snapshot; this
// statement just persists it. Audit rows are never deleted.
func (r *PostgresRepository) UpsertApprovalAudit(ctx context.Context, audit *domain.ApprovalAudit) error {
	query := `
		INSERT INTO approval_audits (contribution_id, status, admin_id, rejection_reason, resubmission_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (contribution_id) DO UPDATE
		SET status = EXCLUDED.status,
		    admin_id = EXCLUDED.admin_id,
		    rejection_reason = EXCLUDED.rejection_reason,
		    resubmission_count = EXCLUDED.resubmission_count,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		audit.ContributionID, audit.Status, audit.AdminID, audit.RejectionReason, audit.ResubmissionCount,
	)
	return err
}
