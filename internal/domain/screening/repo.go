package screening

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence port for test records. GetByID loads the
// full aggregate: the record, its confirmation results, and its ledger.
type Repository interface {
	Create(ctx context.Context, t *TestRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*TestRecord, error)
	// Update persists the record only when the stored version still matches
	// t.Version, then bumps it. A mismatch returns ErrConflictingTransition.
	Update(ctx context.Context, t *TestRecord) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*TestRecord, int, error)
	ListAwaitingDecisionOlderThan(ctx context.Context, cutoff time.Time) ([]*TestRecord, error)

	// AppendLedger inserts one ledger row. Inserting a second sent entry for
	// the same (test, stage) returns ErrDuplicateSent.
	AppendLedger(ctx context.Context, e *LedgerEntry) error
	// MarkLedgerFailed demotes a claimed sent entry whose delivery did not
	// go through, freeing the (test, stage) slot for a retry.
	MarkLedgerFailed(ctx context.Context, id uuid.UUID, sendErr string) error
	ListLedger(ctx context.Context, testID uuid.UUID) ([]LedgerEntry, error)
}

// Filter narrows List results. Zero values mean no constraint.
type Filter struct {
	ClientID uuid.UUID
	Stage    Stage
}
