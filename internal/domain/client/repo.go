package client

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Client) error
	GetByID(ctx context.Context, id uuid.UUID) (*Client, error)
	Update(ctx context.Context, c *Client) error
	List(ctx context.Context, limit, offset int) ([]*Client, int, error)
	// Referral contacts
	AddReferralContact(ctx context.Context, rc *ReferralContact) error
	ListReferralContacts(ctx context.Context, clientID uuid.UUID) ([]*ReferralContact, error)
	RemoveReferralContact(ctx context.Context, id uuid.UUID) error
}
