/**
 * @description
 * This file defines the Contribution entity, its approval audit record, and the
 * DTOs for recording and filtering contributions. A Contribution is a donor's
 * pledge against exactly one Case; once approved its amount is folded into the
 * case's running total, once rejected it never is.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContributionStatus is the approval state of a contribution.
// `approved` and `rejected` are terminal within this engine; a rejected
// contribution can only re-enter as a brand new pending record.
type ContributionStatus string

const (
	ContributionStatusPending  ContributionStatus = "pending"
	ContributionStatusApproved ContributionStatus = "approved"
	ContributionStatusRejected ContributionStatus = "rejected"
)

// Contribution maps directly to the `contributions` table.
type Contribution struct {
	ID              uuid.UUID          `json:"id"`
	CaseID          uuid.UUID          `json:"case_id"`
	DonorID         uuid.UUID          `json:"donor_id"`
	PaymentMethodID *uuid.UUID         `json:"payment_method_id,omitempty"`
	Amount          decimal.Decimal    `json:"amount"`
	Status          ContributionStatus `json:"status"`
	Notes           string             `json:"notes,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// ApprovalAudit is the durable record of who decided a contribution and how
// many times it has been resubmitted. One row per contribution, upserted.
type ApprovalAudit struct {
	ContributionID    uuid.UUID          `json:"contribution_id"`
	Status            ContributionStatus `json:"status"`
	AdminID           uuid.UUID          `json:"admin_id"`
	RejectionReason   *string            `json:"rejection_reason,omitempty"`
	ResubmissionCount int                `json:"resubmission_count"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// ContributionFilter narrows an "all pending" batch selection. All fields are
// optional and combine with AND.
type ContributionFilter struct {
	CaseID          *uuid.UUID       `json:"case_id,omitempty"`
	DateFrom        *time.Time       `json:"date_from,omitempty"`
	DateTo          *time.Time       `json:"date_to,omitempty"`
	MinAmount       *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount       *decimal.Decimal `json:"max_amount,omitempty"`
	PaymentMethodID *uuid.UUID       `json:"payment_method_id,omitempty"`
	Search          string           `json:"search,omitempty"`
	DonorName       string           `json:"donor_name,omitempty"`
}

// CreateContributionRequest is the DTO for recording a contribution. Donors
// submit pending contributions; administrators may record an already-paid
// contribution directly as approved.
type CreateContributionRequest struct {
	CaseID          uuid.UUID       `json:"case_id"`
	DonorID         uuid.UUID       `json:"donor_id"`
	PaymentMethodID *uuid.UUID      `json:"payment_method_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Notes           string          `json:"notes,omitempty"`
	AlreadyPaid     bool            `json:"already_paid,omitempty"`
}

// BatchDecisionRequest is the DTO for POST /contributions/batch. Either an
// explicit id list or select_mode "all-pending" (optionally narrowed by
// filters) must be supplied.
type BatchDecisionRequest struct {
	IDs        []uuid.UUID         `json:"ids,omitempty"`
	SelectMode string              `json:"select_mode,omitempty"`
	Filters    *ContributionFilter `json:"filters,omitempty"`
	Action     string              `json:"action"`
	Reason     string              `json:"reason,omitempty"`
}

// BatchItemError names one contribution that failed inside a batch and why.
type BatchItemError struct {
	ContributionID uuid.UUID `json:"contribution_id"`
	Reason         string    `json:"reason"`
}

// BatchDecisionResult summarizes a best-effort batch run. Success+Failed always
// equals Total, the size of the eligible set after filtering.
type BatchDecisionResult struct {
	Success int              `json:"success"`
	Failed  int              `json:"failed"`
	Total   int              `json:"total"`
	Errors  []BatchItemError `json:"errors,omitempty"`
}
