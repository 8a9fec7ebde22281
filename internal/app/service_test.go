package app

import (
	"context"
	"errors"
	"testing"

	"github.com/givebridge/ledger-service/internal/domain"
	"github.com/givebridge/ledger-service/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestRecordContributionStartsPending(t *testing.T) {
	repo := newLedgerRepoStub()
	notifier := &notifierStub{}
	svc := newTestService(repo, notifier)
	donorID := uuid.New()

	c := repo.addCase(publishedCase(500))

	contribution, err := svc.RecordContribution(context.Background(), Actor{ID: &donorID, Role: RoleDonor}, domain.CreateContributionRequest{
		CaseID:  c.ID,
		DonorID: donorID,
		Amount:  decimal.NewFromInt(80),
	})
	if err != nil {
		t.Fatalf("expected contribution to be recorded, got %v", err)
	}

	if contribution.Status != domain.ContributionStatusPending {
		t.Errorf("donor submissions start pending, got %s", contribution.Status)
	}
	if !repo.cases[c.ID].CurrentAmount.IsZero() {
		t.Errorf("pending contributions must not touch the case total, got %s", repo.cases[c.ID].CurrentAmount)
	}
	if len(notifier.approvals) != 0 {
		t.Errorf("no notification before a decision, got %d", len(notifier.approvals))
	}
}

func TestRecordContributionAlreadyPaidByAdmin(t *testing.T) {
	repo := newLedgerRepoStub()
	notifier := &notifierStub{}
	svc := newTestService(repo, notifier)
	adminID := uuid.New()

	c := repo.addCase(publishedCase(500))

	contribution, err := svc.RecordContribution(context.Background(), Actor{ID: &adminID, Role: RoleAdmin}, domain.CreateContributionRequest{
		CaseID:      c.ID,
		DonorID:     uuid.New(),
		Amount:      decimal.NewFromInt(80),
		AlreadyPaid: true,
	})
	if err != nil {
		t.Fatalf("expected contribution to be recorded, got %v", err)
	}

	if contribution.Status != domain.ContributionStatusApproved {
		t.Errorf("an already-paid admin entry is approved directly, got %s", contribution.Status)
	}
	if !repo.cases[c.ID].CurrentAmount.Equal(decimal.NewFromInt(80)) {
		t.Errorf("direct approval folds the amount in, got %s", repo.cases[c.ID].CurrentAmount)
	}
	audit, ok := repo.audits[contribution.ID]
	if !ok || audit.AdminID != adminID {
		t.Errorf("direct approval writes an audit for the recording admin, got %+v ok=%t", audit, ok)
	}
	if len(notifier.approvals) != 1 {
		t.Errorf("expected an approval notification, got %d", len(notifier.approvals))
	}
}

func TestRecordContributionAlreadyPaidIgnoredForDonor(t *testing.T) {
	repo := newLedgerRepoStub()
	svc := newTestService(repo, &notifierStub{})
	donorID := uuid.New()

	c := repo.addCase(publishedCase(500))

	contribution, err := svc.RecordContribution(context.Background(), Actor{ID: &donorID, Role: RoleDonor}, domain.CreateContributionRequest{
		CaseID:      c.ID,
		DonorID:     donorID,
		Amount:      decimal.NewFromInt(80),
		AlreadyPaid: true,
	})
	if err != nil {
		t.Fatalf("expected contribution to be recorded, got %v", err)
	}
	if contribution.Status != domain.ContributionStatusPending {
		t.Errorf("donors cannot self-approve, got %s", contribution.Status)
	}
}

func TestRecordContributionRejectsNonPositiveAmount(t *testing.T) {
	repo := newLedgerRepoStub()
	svc := newTestService(repo, &notifierStub{})
	donorID := uuid.New()

	_, err := svc.RecordContribution(context.Background(), Actor{ID: &donorID, Role: RoleDonor}, domain.CreateContributionRequest{
		CaseID:  uuid.New(),
		DonorID: donorID,
		Amount:  decimal.Zero,
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRecordContributionUnknownCase(t *testing.T) {
	repo := newLedgerRepoStub()
	svc := newTestService(repo, &notifierStub{})
	donorID := uuid.New()

	_, err := svc.RecordContribution(context.Background(), Actor{ID: &donorID, Role: RoleDonor}, domain.CreateContributionRequest{
		CaseID:  uuid.New(),
		DonorID: donorID,
		Amount:  decimal.NewFromInt(10),
	})
	if !errors.Is(err, store.ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}
}

func TestListCaseContributionsFilterByStatus(t *testing.T) {
	repo := newLedgerRepoStub()
	svc := newTestService(repo, &notifierStub{})

	c := repo.addCase(publishedCase(500))
	repo.addContribution(pendingContribution(c.ID, 10))
	repo.addContribution(approvedContribution(c, 20))

	pending := domain.ContributionStatusPending
	got, err := svc.ListCaseContributions(context.Background(), c.ID, &pending)
	if err != nil {
		t.Fatalf("expected list to succeed, got %v", err)
	}
	if len(got) != 1 || got[0].Status != domain.ContributionStatusPending {
		t.Errorf("expected only the pending contribution, got %+v", got)
	}

	all, err := svc.ListCaseContributions(context.Background(), c.ID, nil)
	if err != nil {
		t.Fatalf("expected list to succeed, got %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected both contributions without a filter, got %d", len(all))
	}
}
