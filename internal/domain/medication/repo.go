package medication

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, m *Medication) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medication, error)
	Update(ctx context.Context, m *Medication) error
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*Medication, error)
	// ListAsOf returns the client's medications relevant to a collection
	// date, i.e. those started on or before it (including since-discontinued
	// ones, which remain historical exemptions).
	ListAsOf(ctx context.Context, clientID uuid.UUID, asOf time.Time) ([]*Medication, error)
}
