/**
 * @description
 * This file defines the Case entity and its lifecycle vocabulary. A Case is a
 * fundraising request with a target amount, a running funded total derived from
 * its approved contributions, and a role-gated lifecycle status.
 *
 * @notes
 * - Amounts use shopspring/decimal to keep money math exact; the pgx numeric
 *   codec maps them to/from PostgreSQL `numeric` columns.
 * - `Version` is an optimistic-concurrency counter. Every write to
 *   `CurrentAmount` either increments it atomically (delta path) or checks it
 *   in a compare-and-swap (recompute path), so concurrent ledger writers can
 *   never silently clobber each other.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CaseStatus is the lifecycle state of a fundraising case.
type CaseStatus string

const (
	CaseStatusDraft     CaseStatus = "draft"
	CaseStatusPublished CaseStatus = "published"
	CaseStatusClosed    CaseStatus = "closed"
	CaseStatusCancelled CaseStatus = "cancelled"
)

// Valid reports whether s is one of the known lifecycle states.
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseStatusDraft, CaseStatusPublished, CaseStatusClosed, CaseStatusCancelled:
		return true
	}
	return false
}

// CaseType distinguishes one-off funding goals from recurring ones. Only
// one-time cases are eligible for automatic closure when fully funded.
type CaseType string

const (
	CaseTypeOneTime   CaseType = "one-time"
	CaseTypeRecurring CaseType = "recurring"
)

// Case maps directly to the `cases` table.
type Case struct {
	ID            uuid.UUID       `json:"id"`
	Title         string          `json:"title"`
	Category      string          `json:"category"`
	Type          CaseType        `json:"type"`
	Status        CaseStatus      `json:"status"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Version       int64           `json:"-"`
	CreatedBy     uuid.UUID       `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CaseStatusHistory is one append-only row per case status transition.
// ActorID is nil and ActorRole is "system" for system-triggered transitions.
type CaseStatusHistory struct {
	ID             uuid.UUID  `json:"id"`
	CaseID         uuid.UUID  `json:"case_id"`
	PreviousStatus CaseStatus `json:"previous_status"`
	NewStatus      CaseStatus `json:"new_status"`
	ActorID        *uuid.UUID `json:"actor_id,omitempty"`
	ActorRole      string     `json:"actor_role"`
	Reason         string     `json:"reason"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CreateCaseRequest is the DTO for creating a new draft case.
type CreateCaseRequest struct {
	Title        string          `json:"title"`
	Category     string          `json:"category"`
	Type         CaseType        `json:"type"`
	TargetAmount decimal.Decimal `json:"target_amount"`
}

// ChangeCaseStatusRequest is the DTO for a manual lifecycle transition.
type ChangeCaseStatusRequest struct {
	NewStatus       CaseStatus `json:"new_status"`
	ChangeReason    string     `json:"change_reason"`
	SystemTriggered bool       `json:"system_triggered,omitempty"`
}

// ClosureCheckResult reports the outcome of an automatic-closure check.
// Remaining is set only when the case is eligible but not yet fully funded.
type ClosureCheckResult struct {
	Closed        bool             `json:"closed"`
	Eligible      bool             `json:"eligible"`
	CurrentAmount decimal.Decimal  `json:"current_amount"`
	TargetAmount  decimal.Decimal  `json:"target_amount"`
	Remaining     *decimal.Decimal `json:"remaining,omitempty"`
}
