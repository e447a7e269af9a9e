package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

var validContactKinds = map[string]bool{
	"court": true, "employer": true, "case-manager": true, "other": true,
}

func (s *Service) Create(ctx context.Context, c *Client) error {
	if c.FirstName == "" {
		return fmt.Errorf("first_name is required")
	}
	if c.LastName == "" {
		return fmt.Errorf("last_name is required")
	}
	if !strings.Contains(c.Email, "@") {
		return fmt.Errorf("invalid email: %q", c.Email)
	}
	return s.repo.Create(ctx, c)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Client, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, c *Client) error {
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return fmt.Errorf("invalid email: %q", c.Email)
	}
	return s.repo.Update(ctx, c)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Client, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) AddReferralContact(ctx context.Context, rc *ReferralContact) error {
	if rc.ClientID == uuid.Nil {
		return fmt.Errorf("client_id is required")
	}
	if rc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !strings.Contains(rc.Email, "@") {
		return fmt.Errorf("invalid email: %q", rc.Email)
	}
	if rc.Kind == "" {
		rc.Kind = "other"
	}
	if !validContactKinds[rc.Kind] {
		return fmt.Errorf("invalid kind: %s", rc.Kind)
	}
	return s.repo.AddReferralContact(ctx, rc)
}

func (s *Service) ListReferralContacts(ctx context.Context, clientID uuid.UUID) ([]*ReferralContact, error) {
	return s.repo.ListReferralContacts(ctx, clientID)
}

func (s *Service) RemoveReferralContact(ctx context.Context, id uuid.UUID) error {
	return s.repo.RemoveReferralContact(ctx, id)
}
