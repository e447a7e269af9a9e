package screening

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clearscreen/clearscreen/internal/domain/medication"
	"github.com/clearscreen/clearscreen/internal/platform/db"
)

// DecisionOverdueAfter is how long an awaiting_decision test may sit before
// it surfaces on the overdue report. Overdue tests are never auto-resolved;
// staff must still decide.
const DecisionOverdueAfter = 30 * 24 * time.Hour

// Service orchestrates the test lifecycle: it validates step payloads, runs
// the state machine, persists transitions atomically, and dispatches stage
// notifications after the transition commits.
type Service struct {
	repo       Repository
	meds       *medication.Service
	dispatcher *Dispatcher
	pool       *pgxpool.Pool
	log        zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, meds *medication.Service, dispatcher *Dispatcher, pool *pgxpool.Pool, log zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		meds:       meds,
		dispatcher: dispatcher,
		pool:       pool,
		log:        log.With().Str("component", "screening").Logger(),
		now:        time.Now,
	}
}

// Collect creates a test record at the collected stage and dispatches the
// collection notification. A dispatch failure does not undo the creation;
// the failed attempt lands in the ledger for retry.
func (s *Service) Collect(ctx context.Context, payload []byte) (*TestRecord, error) {
	in, err := ParseCollection(payload, s.now())
	if err != nil {
		return nil, err
	}

	t, err := NewTestRecord(in.ClientID, in.Panel, in.CollectedAt)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create test record: %w", err)
	}

	if _, err := s.dispatcher.Dispatch(ctx, t, StageCollected); err != nil {
		s.log.Warn().Err(err).Str("test_id", t.ID.String()).Msg("collection notification failed")
		return t, err
	}
	return t, nil
}

// RecordScreening applies the screening step: revalidates the payload,
// snapshots the client's medication exemptions as of the collection date,
// classifies, and commits the collected -> screened transition. Clean and
// inconclusive results are NOT auto-completed; completion is its own step.
func (s *Service) RecordScreening(ctx context.Context, id uuid.UUID, payload []byte) (*TestRecord, error) {
	data, err := ParseScreening(payload)
	if err != nil {
		return nil, err
	}

	var t *TestRecord
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		var err error
		t, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		exemptions, err := s.meds.ExemptionsAsOf(ctx, t.ClientID, t.CollectedAt)
		if err != nil {
			return fmt.Errorf("exemption snapshot: %w", err)
		}
		if err := ApplyScreening(t, *data, exemptions, s.now()); err != nil {
			return err
		}
		return s.repo.Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.dispatcher.Dispatch(ctx, t, StageScreened); err != nil {
		s.log.Warn().Err(err).Str("test_id", t.ID.String()).Msg("screening notification failed")
		return t, err
	}
	return t, nil
}

// Complete moves a clean or inconclusive screened test to complete.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*TestRecord, error) {
	var t *TestRecord
	err := db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		var err error
		t, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := CompleteScreened(t, s.now()); err != nil {
			return err
		}
		return s.repo.Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.dispatcher.Dispatch(ctx, t, StageComplete); err != nil {
		s.log.Warn().Err(err).Str("test_id", t.ID.String()).Msg("completion notification failed")
		return t, err
	}
	return t, nil
}

// Decide records the confirmation decision on an unexpected screening
// result. acceptAsFinal also completes the test, so the completion
// notification goes out on that path.
func (s *Service) Decide(ctx context.Context, id uuid.UUID, payload []byte) (*TestRecord, error) {
	in, err := ParseDecision(payload)
	if err != nil {
		return nil, err
	}

	var t *TestRecord
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		var err error
		t, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := DecideConfirmation(t, in.Decision, in.Substances, s.now()); err != nil {
			return err
		}
		return s.repo.Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	if t.Stage == StageComplete {
		if _, err := s.dispatcher.Dispatch(ctx, t, StageComplete); err != nil {
			s.log.Warn().Err(err).Str("test_id", t.ID.String()).Msg("completion notification failed")
			return t, err
		}
	}
	return t, nil
}

// RecordConfirmation applies the lab's confirmation results and completes
// the test.
func (s *Service) RecordConfirmation(ctx context.Context, id uuid.UUID, payload []byte) (*TestRecord, error) {
	results, err := ParseConfirmation(payload)
	if err != nil {
		return nil, err
	}

	var t *TestRecord
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		var err error
		t, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := ApplyConfirmationResults(t, results, s.now()); err != nil {
			return err
		}
		return s.repo.Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.dispatcher.Dispatch(ctx, t, StageComplete); err != nil {
		s.log.Warn().Err(err).Str("test_id", t.ID.String()).Msg("completion notification failed")
		return t, err
	}
	return t, nil
}

// RetryDispatch re-attempts the notification for a stage the record has
// already reached. Idempotent: a stage that already has a sent entry
// returns it without sending again.
func (s *Service) RetryDispatch(ctx context.Context, id uuid.UUID, stage Stage) (*LedgerEntry, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !stageReached(t, stage) {
		return nil, &PreconditionError{Field: "stage", Reason: fmt.Sprintf("test has not reached stage %s", stage)}
	}
	return s.dispatcher.Dispatch(ctx, t, stage)
}

// stageReached reports whether the record's lifecycle has passed through
// the given stage.
func stageReached(t *TestRecord, stage Stage) bool {
	switch stage {
	case StageCollected:
		return true
	case StageScreened:
		return t.ScreenedAt != nil
	case StageConfirmationPending:
		return t.Stage == StageConfirmationPending || (t.ConfirmationDecision != nil && *t.ConfirmationDecision == DecisionRequestConfirmation)
	case StageComplete:
		return t.Stage == StageComplete
	}
	return false
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*TestRecord, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*TestRecord, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) Ledger(ctx context.Context, id uuid.UUID) ([]LedgerEntry, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListLedger(ctx, id)
}

// ListOverdueDecisions returns screened tests that have been awaiting a
// confirmation decision longer than DecisionOverdueAfter.
func (s *Service) ListOverdueDecisions(ctx context.Context) ([]*TestRecord, error) {
	return s.repo.ListAwaitingDecisionOlderThan(ctx, s.now().Add(-DecisionOverdueAfter))
}
