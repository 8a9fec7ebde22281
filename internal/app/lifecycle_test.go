package app

import (
	"context"
	"errors"
	"testing"

	"github.com/givebridge/ledger-service/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailableTransitions(t *testing.T) {
	tests := []struct {
		name            string
		current         domain.CaseStatus
		role            string
		systemTriggered bool
		want            []domain.CaseStatus
	}{
		{
			name:    "draft admin",
			current: domain.CaseStatusDraft,
			role:    RoleAdmin,
			want:    []domain.CaseStatus{domain.CaseStatusPublished, domain.CaseStatusCancelled},
		},
		{
			name:    "draft manager",
			current: domain.CaseStatusDraft,
			role:    RoleManager,
			want:    []domain.CaseStatus{domain.CaseStatusPublished, domain.CaseStatusCancelled},
		},
		{
			name:    "draft donor",
			current: domain.CaseStatusDraft,
			role:    RoleDonor,
			want:    nil,
		},
		{
			name:    "published admin",
			current: domain.CaseStatusPublished,
			role:    RoleAdmin,
			want:    []domain.CaseStatus{domain.CaseStatusClosed, domain.CaseStatusCancelled},
		},
		{
			name:    "published manager",
			current: domain.CaseStatusPublished,
			role:    RoleManager,
			want:    nil,
		},
		{
			name:            "published manager system triggered",
			current:         domain.CaseStatusPublished,
			role:            RoleManager,
			systemTriggered: true,
			want:            []domain.CaseStatus{domain.CaseStatusClosed},
		},
		{
			name:            "published admin system triggered",
			current:         domain.CaseStatusPublished,
			role:            RoleAdmin,
			systemTriggered: true,
			want:            []domain.CaseStatus{domain.CaseStatusClosed, domain.CaseStatusCancelled},
		},
		{
			name:    "closed is terminal",
			current: domain.CaseStatusClosed,
			role:    RoleAdmin,
			want:    nil,
		},
		{
			name:    "cancelled is terminal",
			current: domain.CaseStatusCancelled,
			role:    RoleAdmin,
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AvailableTransitions(tt.current, tt.role, tt.systemTriggered)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestChangeCaseStatusPublishesDraft(t *testing.T) {
	repo := newLedgerRepoStub()
	svc := newTestService(repo, &notifierStub{})
	actor := Actor{ID: ptrUUID(uuid.New()), Role: RoleManager}

	c := repo.addCase(&domain.Case{ID: uuid.New(), Title: "School Fees", Status: domain.CaseStatusDraft})

	updated, err := svc.ChangeCaseStatus(context.Background(), c.ID, domain.CaseStatusPublished, actor, "ready for donors", false)
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusPublished, updated.Status)
	assert.Equal(t, domain.CaseStatusPublished, repo.cases[c.ID].Status)

	require.Len(t, repo.history, 1)
	entry := repo.history[0]
	assert.Equal(t, domain.CaseStatusDraft, entry.PreviousStatus)
	assert.Equal(t, domain.CaseStatusPublished, entry.NewStatus)
	assert.Equal(t, RoleManager, entry.ActorRole)
	assert.Equal(t, "ready for donors", entry.Reason)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, *actor.ID, *entry.ActorID)
}

func TestChangeCaseStatusRejectsNonEdge(t *testing.T) {
	repo := newLedgerRepoStub()
	svc := newTestService(repo, &notifierStub{})

	c := repo.addCase(&domain.Case{ID: uuid.New(), Status: domain.CaseStatusDraft})

	_, err := svc.ChangeCaseStatus(context.Background(), c.ID, domain.CaseStatusClosed, Actor{ID: ptrUUID(uuid.New()), Role: RoleAdmin}, "", false)
	assert.True(t, errors.Is(err, ErrInvalidTransition), "draft cannot close directly, got %v", err)
	assert.Equal(t, domain.CaseStatusDraft, repo.cases[c.ID].Status)
	assert.Empty(t, repo.history)
}

func TestChangeCaseStatusForbiddenRole(t *testing.T) {
	repo := newLedgerRepoStub()
	svc := newTestService(repo, &notifierStub{})

	c := repo.addCase(&domain.Case{ID: uuid.New(), Status: domain.CaseStatusPublished})

	_, err := svc.ChangeCaseStatus(context.Background(), c.ID, domain.CaseStatusClosed, Actor{ID: ptrUUID(uuid.New()), Role: RoleManager}, "", false)
	assert.True(t, errors.Is(err, ErrForbidden), "manager may not close a published case, got %v", err)
	assert.Equal(t, domain.CaseStatusPublished, repo.cases[c.ID].Status)
}

func TestChangeCaseStatusSystemCloseBypassesRoleGate(t *testing.T) {
	repo := newLedgerRepoStub()
	svc := newTestService(repo, &notifierStub{})

	c := repo.addCase(&domain.Case{ID: uuid.New(), Status: domain.CaseStatusPublished})

	updated, err := svc.ChangeCaseStatus(context.Background(), c.ID, domain.CaseStatusClosed, SystemActor(), "funding goal reached", true)
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusClosed, updated.Status)

	require.Len(t, repo.history, 1)
	entry := repo.history[0]
	assert.Nil(t, entry.ActorID)
	assert.Equal(t, RoleSystem, entry.ActorRole)
	assert.Equal(t, "funding goal reached", entry.Reason)
}

func TestChangeCaseStatusSystemFlagOnlyCoversPublishedClose(t *testing.T) {
	repo := newLedgerRepoStub()
	svc := newTestService(repo, &notifierStub{})

	c := repo.addCase(&domain.Case{ID: uuid.New(), Status: domain.CaseStatusPublished})

	// The escalation covers only the close edge; a system-flagged cancel still
	// goes through the role gate.
	_, err := svc.ChangeCaseStatus(context.Background(), c.ID, domain.CaseStatusCancelled, SystemActor(), "", true)
	assert.True(t, errors.Is(err, ErrForbidden), "system flag must not widen cancel permissions, got %v", err)
}

func TestChangeCaseStatusUnknownStatus(t *testing.T) {
	repo := newLedgerRepoStub()
	svc := newTestService(repo, &notifierStub{})

	_, err := svc.ChangeCaseStatus(context.Background(), uuid.New(), domain.CaseStatus("archived"), Actor{ID: ptrUUID(uuid.New()), Role: RoleAdmin}, "", false)
	assert.True(t, errors.Is(err, ErrInvalidCaseStatus), "got %v", err)
}

func ptrUUID(id uuid.UUID) *uuid.UUID {
	return &id
}
