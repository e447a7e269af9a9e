package medication

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrEditWindowClosed is returned when a client tries to change a medication
// past its edit window or after discontinuation.
var ErrEditWindowClosed = fmt.Errorf("medication edit window closed")

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

var validStatuses = map[string]bool{
	StatusActive: true, StatusDiscontinued: true,
}

func (s *Service) Create(ctx context.Context, m *Medication) error {
	if m.ClientID == uuid.Nil {
		return fmt.Errorf("client_id is required")
	}
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(m.SubstanceTags) == 0 {
		return fmt.Errorf("at least one substance tag is required")
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
	if !validStatuses[m.Status] {
		return fmt.Errorf("invalid status: %s", m.Status)
	}
	if m.StartDate.IsZero() {
		m.StartDate = s.now()
	}
	return s.repo.Create(ctx, m)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return s.repo.GetByID(ctx, id)
}

// Update edits a medication still inside its edit window. Discontinued rows
// and rows past the window are read-only history.
func (s *Service) Update(ctx context.Context, m *Medication) error {
	existing, err := s.repo.GetByID(ctx, m.ID)
	if err != nil {
		return err
	}
	if !existing.Editable(s.now()) {
		return fmt.Errorf("%w: medication %s", ErrEditWindowClosed, m.ID)
	}
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(m.SubstanceTags) == 0 {
		return fmt.Errorf("at least one substance tag is required")
	}
	m.ClientID = existing.ClientID
	m.Status = existing.Status
	return s.repo.Update(ctx, m)
}

// Discontinue ends a medication. The row becomes immutable; its tags remain a
// historical exemption for tests collected before the end date.
func (s *Service) Discontinue(ctx context.Context, id uuid.UUID, endDate time.Time) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !existing.Editable(s.now()) {
		return fmt.Errorf("%w: medication %s", ErrEditWindowClosed, id)
	}
	if endDate.Before(existing.StartDate) {
		return fmt.Errorf("end_date precedes start_date")
	}
	existing.Status = StatusDiscontinued
	existing.EndDate = &endDate
	return s.repo.Update(ctx, existing)
}

func (s *Service) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*Medication, error) {
	return s.repo.ListByClient(ctx, clientID)
}

// ExemptionsAsOf returns the client's substance exemption map as of a
// collection date. Read-only snapshot; the engine never mutates medications.
func (s *Service) ExemptionsAsOf(ctx context.Context, clientID uuid.UUID, collectedAt time.Time) (map[string]Exemption, error) {
	meds, err := s.repo.ListAsOf(ctx, clientID, collectedAt)
	if err != nil {
		return nil, fmt.Errorf("load medications: %w", err)
	}
	return ExemptionsAsOf(meds, collectedAt), nil
}
