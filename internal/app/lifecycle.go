/**
 * @description
 * Case lifecycle state machine. Transitions are role-gated through a static
 * table; the single deliberate escalation path is the system-triggered close
 * of a published case, which bypasses role gating so automated funding-goal
 * closure is never blocked by the absence of a human actor.
 */

package app

import (
	"context"
	"log"
	"strings"

	"github.com/givebridge/ledger-service/internal/domain"
	"github.com/google/uuid"
)

type caseTransition struct {
	to    domain.CaseStatus
	roles []string
}

// caseTransitions is the full edge set of the lifecycle graph. closed and
// cancelled are terminal: no edges lead out of them.
var caseTransitions = map[domain.CaseStatus][]caseTransition{
	domain.CaseStatusDraft: {
		{to: domain.CaseStatusPublished, roles: []string{RoleAdmin, RoleManager}},
		{to: domain.CaseStatusCancelled, roles: []string{RoleAdmin, RoleManager}},
	},
	domain.CaseStatusPublished: {
		{to: domain.CaseStatusClosed, roles: []string{RoleAdmin}},
		{to: domain.CaseStatusCancelled, roles: []string{RoleAdmin}},
	},
}

func transitionRolePermits(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// AvailableTransitions returns the lifecycle states a case in `current` may
// move to for an actor with the given role. When systemTriggered is true the
// closing transition is always included for a published case, regardless of
// role.
func AvailableTransitions(current domain.CaseStatus, role string, systemTriggered bool) []domain.CaseStatus {
	var candidates []domain.CaseStatus
	for _, t := range caseTransitions[current] {
		if transitionRolePermits(t.roles, role) {
			candidates = append(candidates, t.to)
		}
	}
	if systemTriggered && current == domain.CaseStatusPublished {
		if !containsStatus(candidates, domain.CaseStatusClosed) {
			candidates = append(candidates, domain.CaseStatusClosed)
		}
	}
	return candidates
}

func containsStatus(statuses []domain.CaseStatus, status domain.CaseStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// ChangeCaseStatus moves a case to newStatus on behalf of the given actor,
// appending one row to the status history. A transition that is not an edge of
// the lifecycle graph fails with ErrInvalidTransition; an edge the actor's
// role may not take fails with ErrForbidden unless it is the system-triggered
// close of a published case.
func (s *Service) ChangeCaseStatus(ctx context.Context, caseID uuid.UUID, newStatus domain.CaseStatus, actor Actor, reason string, systemTriggered bool) (*domain.Case, error) {
	if !newStatus.Valid() {
		return nil, ErrInvalidCaseStatus
	}

	c, err := s.repo.FindCaseByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	edges := caseTransitions[c.Status]
	var edge *caseTransition
	for i := range edges {
		if edges[i].to == newStatus {
			edge = &edges[i]
			break
		}
	}
	if edge == nil {
		return nil, ErrInvalidTransition
	}

	systemClose := systemTriggered && c.Status == domain.CaseStatusPublished && newStatus == domain.CaseStatusClosed
	if !systemClose && !transitionRolePermits(edge.roles, actor.Role) {
		return nil, ErrForbidden
	}

	if err := s.repo.UpdateCaseStatus(ctx, caseID, newStatus); err != nil {
		return nil, err
	}

	actorRole := actor.Role
	if systemClose && actor.ID == nil {
		actorRole = RoleSystem
	}
	entry := &domain.CaseStatusHistory{
		ID:             uuid.New(),
		CaseID:         caseID,
		PreviousStatus: c.Status,
		NewStatus:      newStatus,
		ActorID:        actor.ID,
		ActorRole:      actorRole,
		Reason:         strings.TrimSpace(reason),
	}
	if err := s.repo.AppendCaseStatusHistory(ctx, entry); err != nil {
		// The transition itself landed; a missing history row is an audit gap,
		// not a reason to report failure to the caller.
		log.Printf("level=error component=service flow=case_lifecycle msg=\"status history append failed\" case_id=%s from=%s to=%s err=%v", caseID, c.Status, newStatus, err)
	}

	log.Printf("level=info component=service flow=case_lifecycle msg=\"case status changed\" case_id=%s from=%s to=%s actor_role=%s system_triggered=%t", caseID, c.Status, newStatus, actorRole, systemTriggered)

	c.Status = newStatus
	return c, nil
}
