package screening

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clearscreen/clearscreen/internal/domain/medication"
	"github.com/clearscreen/clearscreen/internal/domain/panel"
)

type mockMedRepo struct {
	meds map[uuid.UUID][]*medication.Medication
}

func (m *mockMedRepo) Create(_ context.Context, med *medication.Medication) error {
	if m.meds == nil {
		m.meds = map[uuid.UUID][]*medication.Medication{}
	}
	m.meds[med.ClientID] = append(m.meds[med.ClientID], med)
	return nil
}

func (m *mockMedRepo) GetByID(_ context.Context, id uuid.UUID) (*medication.Medication, error) {
	for _, list := range m.meds {
		for _, med := range list {
			if med.ID == id {
				return med, nil
			}
		}
	}
	return nil, errors.New("medication not found")
}

func (m *mockMedRepo) Update(_ context.Context, med *medication.Medication) error { return nil }

func (m *mockMedRepo) ListByClient(_ context.Context, clientID uuid.UUID) ([]*medication.Medication, error) {
	return m.meds[clientID], nil
}

func (m *mockMedRepo) ListAsOf(_ context.Context, clientID uuid.UUID, asOf time.Time) ([]*medication.Medication, error) {
	var out []*medication.Medication
	for _, med := range m.meds[clientID] {
		if !med.StartDate.After(asOf) {
			out = append(out, med)
		}
	}
	return out, nil
}

type svcFixture struct {
	*fixture
	medRepo *mockMedRepo
	svc     *Service
}

func newSvcFixture(t *testing.T) *svcFixture {
	t.Helper()
	f := &svcFixture{fixture: newFixture(t), medRepo: &mockMedRepo{}}
	medSvc := medication.NewService(f.medRepo)
	f.svc = NewService(f.repo, medSvc, f.disp, nil, zerolog.Nop())
	f.svc.now = func() time.Time { return testTime.Add(time.Hour) }
	return f
}

func (f *svcFixture) collectPayload(p panel.Panel) []byte {
	return []byte(fmt.Sprintf(`{"client_id":"%s","panel":"%s","collected_at":"2026-03-10T09:30:00Z"}`, f.client.ID, p))
}

func TestServiceCollectCreatesAndNotifies(t *testing.T) {
	f := newSvcFixture(t)
	f.addContact(t, "court@example.gov")

	rec, err := f.svc.Collect(context.Background(), f.collectPayload(panel.Lab9))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if rec.Stage != StageCollected {
		t.Errorf("stage = %s", rec.Stage)
	}
	entries, _ := f.repo.ListLedger(context.Background(), rec.ID)
	if len(entries) != 1 || entries[0].Status != LedgerSent || entries[0].Stage != StageCollected {
		t.Errorf("ledger = %+v", entries)
	}
}

func TestServiceCollectSurvivesDispatchFailure(t *testing.T) {
	f := newSvcFixture(t)
	f.addContact(t, "court@example.gov")
	f.sender.ShouldFail = true
	f.sender.FailError = "relay down"

	rec, err := f.svc.Collect(context.Background(), f.collectPayload(panel.Lab9))
	if !errors.Is(err, ErrNotificationDispatch) {
		t.Fatalf("err = %v, want dispatch error", err)
	}
	if rec == nil {
		t.Fatal("record must be returned despite dispatch failure")
	}

	// The record exists and the failed attempt is on the ledger.
	stored, err := f.repo.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Stage != StageCollected {
		t.Errorf("stage = %s", stored.Stage)
	}
	entries, _ := f.repo.ListLedger(context.Background(), rec.ID)
	if len(entries) != 1 || entries[0].Status != LedgerFailed {
		t.Errorf("ledger = %+v", entries)
	}
}

func TestServiceWizardCleanFlow(t *testing.T) {
	f := newSvcFixture(t)

	rec, err := f.svc.Collect(context.Background(), f.collectPayload(panel.Instant5))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	rec, err = f.svc.RecordScreening(context.Background(), rec.ID, []byte(`{"detected":[]}`))
	if err != nil {
		t.Fatalf("RecordScreening: %v", err)
	}
	if *rec.InitialDisposition != DispositionNegative {
		t.Fatalf("initial = %s", *rec.InitialDisposition)
	}

	rec, err = f.svc.Complete(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if rec.Stage != StageComplete || *rec.FinalDisposition != DispositionNegative {
		t.Errorf("record = %+v", rec)
	}

	// Screened and complete notifications both sent once.
	entries, _ := f.repo.ListLedger(context.Background(), rec.ID)
	if len(entries) != 2 {
		t.Errorf("ledger = %+v", entries)
	}
}

func TestServiceScreeningUsesExemptionSnapshot(t *testing.T) {
	f := newSvcFixture(t)
	if err := f.medRepo.Create(context.Background(), &medication.Medication{
		ID:            uuid.New(),
		ClientID:      f.client.ID,
		Name:          "adderall",
		SubstanceTags: []string{"amphetamine"},
		Status:        medication.StatusActive,
		StartDate:     testTime.Add(-30 * 24 * time.Hour),
	}); err != nil {
		t.Fatalf("seed medication: %v", err)
	}

	rec, err := f.svc.Collect(context.Background(), f.collectPayload(panel.Instant5))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	rec, err = f.svc.RecordScreening(context.Background(), rec.ID, []byte(`{"detected":["amphetamine"]}`))
	if err != nil {
		t.Fatalf("RecordScreening: %v", err)
	}
	if *rec.InitialDisposition != DispositionExpectedPositive {
		t.Errorf("initial = %s, want declared med to exempt", *rec.InitialDisposition)
	}
}

func TestServiceDecideAcceptAsFinal(t *testing.T) {
	f := newSvcFixture(t)
	rec, err := f.svc.Collect(context.Background(), f.collectPayload(panel.Instant5))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	rec, err = f.svc.RecordScreening(context.Background(), rec.ID, []byte(`{"detected":["cocaine"]}`))
	if err != nil {
		t.Fatalf("RecordScreening: %v", err)
	}

	rec, err = f.svc.Decide(context.Background(), rec.ID, []byte(`{"decision":"accept_as_final"}`))
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if rec.Stage != StageComplete || *rec.FinalDisposition != DispositionUnexpectedPositive {
		t.Errorf("record = %+v", rec)
	}
}

func TestServiceConfirmationFlow(t *testing.T) {
	f := newSvcFixture(t)
	rec, err := f.svc.Collect(context.Background(), f.collectPayload(panel.Lab9))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	rec, err = f.svc.RecordScreening(context.Background(), rec.ID, []byte(`{"detected":["cocaine"]}`))
	if err != nil {
		t.Fatalf("RecordScreening: %v", err)
	}

	rec, err = f.svc.Decide(context.Background(), rec.ID, []byte(`{"decision":"request_confirmation","substances":["cocaine"]}`))
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if rec.Stage != StageConfirmationPending {
		t.Fatalf("stage = %s", rec.Stage)
	}

	rec, err = f.svc.RecordConfirmation(context.Background(), rec.ID, []byte(`{"results":[{"substance":"cocaine","result":"confirmed_negative"}]}`))
	if err != nil {
		t.Fatalf("RecordConfirmation: %v", err)
	}
	if *rec.FinalDisposition != DispositionConfirmedNegative {
		t.Errorf("final = %s", *rec.FinalDisposition)
	}
}

// conflictingRepo forces a version conflict on the first Update.
type conflictingRepo struct {
	*mockRepo
	conflicted bool
}

func (r *conflictingRepo) Update(ctx context.Context, t *TestRecord) error {
	if !r.conflicted {
		r.conflicted = true
		return ErrConflictingTransition
	}
	return r.mockRepo.Update(ctx, t)
}

func TestServiceSurfacesVersionConflict(t *testing.T) {
	f := newSvcFixture(t)
	repo := &conflictingRepo{mockRepo: f.repo}
	medSvc := medication.NewService(f.medRepo)
	svc := NewService(repo, medSvc, NewDispatcher(repo, f.clients, f.sender, zerolog.Nop()), nil, zerolog.Nop())
	svc.now = func() time.Time { return testTime.Add(time.Hour) }

	rec, err := svc.Collect(context.Background(), f.collectPayload(panel.Instant5))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	_, err = svc.RecordScreening(context.Background(), rec.ID, []byte(`{"detected":[]}`))
	if !errors.Is(err, ErrConflictingTransition) {
		t.Fatalf("err = %v, want conflict", err)
	}

	// Retry against the fresh version succeeds.
	if _, err := svc.RecordScreening(context.Background(), rec.ID, []byte(`{"detected":[]}`)); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestServiceRetryDispatchRequiresStageReached(t *testing.T) {
	f := newSvcFixture(t)
	rec, err := f.svc.Collect(context.Background(), f.collectPayload(panel.Instant5))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	_, err = f.svc.RetryDispatch(context.Background(), rec.ID, StageComplete)
	if !errors.Is(err, ErrPreconditionNotMet) {
		t.Fatalf("err = %v, want precondition", err)
	}
}

func TestServiceListOverdueDecisions(t *testing.T) {
	f := newSvcFixture(t)
	rec, err := f.svc.Collect(context.Background(), f.collectPayload(panel.Instant5))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if _, err := f.svc.RecordScreening(context.Background(), rec.ID, []byte(`{"detected":["cocaine"]}`)); err != nil {
		t.Fatalf("RecordScreening: %v", err)
	}

	// Not yet overdue.
	overdue, err := f.svc.ListOverdueDecisions(context.Background())
	if err != nil {
		t.Fatalf("ListOverdueDecisions: %v", err)
	}
	if len(overdue) != 0 {
		t.Fatalf("overdue = %d, want 0", len(overdue))
	}

	// Advance past the overdue window; the test is surfaced, not resolved.
	f.svc.now = func() time.Time { return testTime.Add(31 * 24 * time.Hour) }
	overdue, err = f.svc.ListOverdueDecisions(context.Background())
	if err != nil {
		t.Fatalf("ListOverdueDecisions: %v", err)
	}
	if len(overdue) != 1 || overdue[0].ID != rec.ID {
		t.Fatalf("overdue = %+v", overdue)
	}
	if overdue[0].Stage != StageScreened {
		t.Errorf("overdue test auto-advanced to %s", overdue[0].Stage)
	}
}
