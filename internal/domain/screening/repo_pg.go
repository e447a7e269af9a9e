package screening

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearscreen/clearscreen/internal/domain/panel"
	"github.com/clearscreen/clearscreen/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const testCols = `id, client_id, panel, stage, version, collected_at, is_dilute,
	breathalyzer_taken, breathalyzer_result,
	detected, expected_positives, unexpected_positives, unexpected_negatives, critical_negatives,
	initial_disposition, confirmation_decision, decision_requested_at, confirmation_substances,
	final_disposition, screened_at, completed_at, created_at, updated_at`

func scanTest(row pgx.Row) (*TestRecord, error) {
	var (
		t            TestRecord
		p            string
		stage        string
		breathTaken  *bool
		breathResult *float64
		initial      *string
		decision     *string
		final        *string
	)
	err := row.Scan(
		&t.ID, &t.ClientID, &p, &stage, &t.Version, &t.CollectedAt, &t.IsDilute,
		&breathTaken, &breathResult,
		&t.Detected, &t.ExpectedPositives, &t.UnexpectedPositives, &t.UnexpectedNegatives, &t.CriticalNegatives,
		&initial, &decision, &t.DecisionRequestedAt, &t.ConfirmationSubstances,
		&final, &t.ScreenedAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Panel = panel.Panel(p)
	t.Stage = Stage(stage)
	if breathTaken != nil {
		b := &BreathalyzerReading{Taken: *breathTaken}
		if breathResult != nil {
			b.Result = *breathResult
		}
		t.Breathalyzer = b
	}
	if initial != nil {
		d := Disposition(*initial)
		t.InitialDisposition = &d
	}
	if decision != nil {
		d := ConfirmationDecision(*decision)
		t.ConfirmationDecision = &d
	}
	if final != nil {
		d := Disposition(*final)
		t.FinalDisposition = &d
	}
	return &t, nil
}

func nullableArgs(t *TestRecord) (breathTaken *bool, breathResult *float64, initial, decision, final *string) {
	if t.Breathalyzer != nil {
		breathTaken = &t.Breathalyzer.Taken
		breathResult = &t.Breathalyzer.Result
	}
	if t.InitialDisposition != nil {
		s := string(*t.InitialDisposition)
		initial = &s
	}
	if t.ConfirmationDecision != nil {
		s := string(*t.ConfirmationDecision)
		decision = &s
	}
	if t.FinalDisposition != nil {
		s := string(*t.FinalDisposition)
		final = &s
	}
	return
}

func (r *repoPG) Create(ctx context.Context, t *TestRecord) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.Version = 1
	breathTaken, breathResult, initial, decision, final := nullableArgs(t)
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO test_record (
			id, client_id, panel, stage, version, collected_at, is_dilute,
			breathalyzer_taken, breathalyzer_result,
			detected, expected_positives, unexpected_positives, unexpected_negatives, critical_negatives,
			initial_disposition, confirmation_decision, decision_requested_at, confirmation_substances,
			final_disposition, screened_at, completed_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,
			$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
		)`,
		t.ID, t.ClientID, string(t.Panel), string(t.Stage), t.Version, t.CollectedAt, t.IsDilute,
		breathTaken, breathResult,
		t.Detected, t.ExpectedPositives, t.UnexpectedPositives, t.UnexpectedNegatives, t.CriticalNegatives,
		initial, decision, t.DecisionRequestedAt, t.ConfirmationSubstances,
		final, t.ScreenedAt, t.CompletedAt,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*TestRecord, error) {
	t, err := scanTest(r.conn(ctx).QueryRow(ctx, `SELECT `+testCols+` FROM test_record WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadAggregate(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *repoPG) loadAggregate(ctx context.Context, t *TestRecord) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT substance, result, note FROM test_confirmation_result
		WHERE test_id = $1 ORDER BY substance`, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var cr ConfirmationResult
		var res string
		if err := rows.Scan(&cr.Substance, &res, &cr.Note); err != nil {
			return err
		}
		cr.Result = ConfirmedResult(res)
		t.ConfirmationResults = append(t.ConfirmationResults, cr)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	ledger, err := r.ListLedger(ctx, t.ID)
	if err != nil {
		return err
	}
	sentPerStage := map[Stage]int{}
	for _, e := range ledger {
		if e.Status == LedgerSent {
			sentPerStage[e.Stage]++
			if sentPerStage[e.Stage] > 1 {
				return &IntegrityError{
					Detail: fmt.Sprintf("test %s has multiple sent ledger entries for stage %s", t.ID, e.Stage),
				}
			}
		}
	}
	t.Ledger = ledger
	return nil
}

func (r *repoPG) Update(ctx context.Context, t *TestRecord) error {
	breathTaken, breathResult, initial, decision, final := nullableArgs(t)
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE test_record SET
			stage=$3, is_dilute=$4,
			breathalyzer_taken=$5, breathalyzer_result=$6,
			detected=$7, expected_positives=$8, unexpected_positives=$9,
			unexpected_negatives=$10, critical_negatives=$11,
			initial_disposition=$12, confirmation_decision=$13, decision_requested_at=$14,
			confirmation_substances=$15, final_disposition=$16,
			screened_at=$17, completed_at=$18,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2`,
		t.ID, t.Version,
		string(t.Stage), t.IsDilute,
		breathTaken, breathResult,
		t.Detected, t.ExpectedPositives, t.UnexpectedPositives,
		t.UnexpectedNegatives, t.CriticalNegatives,
		initial, decision, t.DecisionRequestedAt,
		t.ConfirmationSubstances, final,
		t.ScreenedAt, t.CompletedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflictingTransition
	}
	t.Version++

	if len(t.ConfirmationResults) > 0 {
		if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM test_confirmation_result WHERE test_id = $1`, t.ID); err != nil {
			return err
		}
		for _, cr := range t.ConfirmationResults {
			if _, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO test_confirmation_result (id, test_id, substance, result, note)
				VALUES ($1,$2,$3,$4,$5)`,
				uuid.New(), t.ID, cr.Substance, string(cr.Result), cr.Note); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*TestRecord, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if f.ClientID != uuid.Nil {
		args = append(args, f.ClientID)
		where += fmt.Sprintf(" AND client_id = $%d", len(args))
	}
	if f.Stage != "" {
		args = append(args, string(f.Stage))
		where += fmt.Sprintf(" AND stage = $%d", len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM test_record`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+testCols+` FROM test_record`+where+
		fmt.Sprintf(` ORDER BY collected_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*TestRecord
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListAwaitingDecisionOlderThan(ctx context.Context, cutoff time.Time) ([]*TestRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+testCols+` FROM test_record
		WHERE stage = $1 AND confirmation_decision = $2 AND decision_requested_at < $3
		ORDER BY decision_requested_at`,
		string(StageScreened), string(DecisionAwaiting), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*TestRecord
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *repoPG) AppendLedger(ctx context.Context, e *LedgerEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO test_notification_ledger (id, test_id, stage, status, attempted_at, recipients, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.TestID, string(e.Stage), string(e.Status), e.AttemptedAt, e.Recipients, e.Error)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: test %s stage %s", ErrDuplicateSent, e.TestID, e.Stage)
		}
		return err
	}
	return nil
}

func (r *repoPG) MarkLedgerFailed(ctx context.Context, id uuid.UUID, sendErr string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE test_notification_ledger SET status = $2, error = $3 WHERE id = $1`,
		id, string(LedgerFailed), sendErr)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListLedger(ctx context.Context, testID uuid.UUID) ([]LedgerEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, test_id, stage, status, attempted_at, recipients, error
		FROM test_notification_ledger WHERE test_id = $1 ORDER BY attempted_at`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var stage, status string
		if err := rows.Scan(&e.ID, &e.TestID, &stage, &status, &e.AttemptedAt, &e.Recipients, &e.Error); err != nil {
			return nil, err
		}
		e.Stage = Stage(stage)
		e.Status = LedgerStatus(status)
		items = append(items, e)
	}
	return items, rows.Err()
}
