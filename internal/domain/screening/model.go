// Package screening owns the drug test result lifecycle: the stage state
// machine, substance classification, confirmation resolution, and the
// notification dispatch ledger.
package screening

import (
	"time"

	"github.com/google/uuid"

	"github.com/clearscreen/clearscreen/internal/domain/panel"
)

// Stage is the lifecycle state of a test record. Stages only move forward.
type Stage string

const (
	StageCollected           Stage = "collected"
	StageScreened            Stage = "screened"
	StageConfirmationPending Stage = "confirmation_pending"
	StageComplete            Stage = "complete"
)

// Disposition is the clinical verdict of a screening or confirmation round.
type Disposition string

const (
	DispositionNegative                   Disposition = "negative"
	DispositionExpectedPositive           Disposition = "expected_positive"
	DispositionUnexpectedPositive         Disposition = "unexpected_positive"
	DispositionUnexpectedNegativeWarning  Disposition = "unexpected_negative_warning"
	DispositionUnexpectedNegativeCritical Disposition = "unexpected_negative_critical"
	DispositionMixedUnexpected            Disposition = "mixed_unexpected"
	DispositionInconclusive               Disposition = "inconclusive"
	// Confirmed variants preserve the audit fact that a confirmation episode
	// ran and cleared every contested substance. They never collapse back to
	// the plain labels.
	DispositionConfirmedNegative         Disposition = "confirmed_negative"
	DispositionConfirmedExpectedPositive Disposition = "confirmed_expected_positive"
)

// Clean reports whether the disposition carries no unexpected finding.
func (d Disposition) Clean() bool {
	switch d {
	case DispositionNegative, DispositionExpectedPositive,
		DispositionConfirmedNegative, DispositionConfirmedExpectedPositive:
		return true
	}
	return false
}

// Unexpected reports whether the disposition flags at least one unexpected
// positive or negative, i.e. whether the confirmation branch applies.
func (d Disposition) Unexpected() bool {
	switch d {
	case DispositionUnexpectedPositive, DispositionUnexpectedNegativeWarning,
		DispositionUnexpectedNegativeCritical, DispositionMixedUnexpected:
		return true
	}
	return false
}

// ConfirmationDecision is the staff decision on a disputed screening result.
type ConfirmationDecision string

const (
	DecisionAwaiting            ConfirmationDecision = "awaiting_decision"
	DecisionRequestConfirmation ConfirmationDecision = "request_confirmation"
	DecisionAcceptAsFinal       ConfirmationDecision = "accept_as_final"
)

// ConfirmedResult is the lab's verdict for one contested substance.
type ConfirmedResult string

const (
	ConfirmedPositive     ConfirmedResult = "confirmed_positive"
	ConfirmedNegative     ConfirmedResult = "confirmed_negative"
	ConfirmedInconclusive ConfirmedResult = "confirmed_inconclusive"
)

// BreathalyzerReading is an optional taken/result pair recorded at collection.
type BreathalyzerReading struct {
	Taken  bool    `db:"breathalyzer_taken" json:"taken"`
	Result float64 `db:"breathalyzer_result" json:"result"`
}

// ConfirmationResult maps to the test_confirmation_result table. One row per
// contested substance sent to the lab.
type ConfirmationResult struct {
	Substance string          `db:"substance" json:"substance"`
	Result    ConfirmedResult `db:"result" json:"result"`
	Note      string          `db:"note" json:"note,omitempty"`
}

// LedgerStatus is the terminal status of a notification attempt.
type LedgerStatus string

const (
	LedgerSent   LedgerStatus = "sent"
	LedgerFailed LedgerStatus = "failed"
)

// LedgerEntry maps to the test_notification_ledger table. Append-only audit
// record of notification intent. At most one sent entry may exist per
// (test, stage); the storage layer enforces it.
type LedgerEntry struct {
	ID          uuid.UUID    `db:"id" json:"id"`
	TestID      uuid.UUID    `db:"test_id" json:"test_id"`
	Stage       Stage        `db:"stage" json:"stage"`
	Status      LedgerStatus `db:"status" json:"status"`
	AttemptedAt time.Time    `db:"attempted_at" json:"attempted_at"`
	Recipients  []string     `db:"recipients" json:"recipients"`
	Error       string       `db:"error" json:"error,omitempty"`
}

// TestRecord maps to the test_record table. One row per physical sample.
// Lifecycle fields are mutated only by the transition functions in
// lifecycle.go; the substance buckets are recomputed by Classify and never
// hand-edited.
type TestRecord struct {
	ID       uuid.UUID   `db:"id" json:"id"`
	ClientID uuid.UUID   `db:"client_id" json:"client_id"`
	Panel    panel.Panel `db:"panel" json:"panel"`
	Stage    Stage       `db:"stage" json:"stage"`
	// Version guards concurrent read-modify-write; bumped on every update.
	Version int `db:"version" json:"version"`

	CollectedAt  time.Time            `db:"collected_at" json:"collected_at"`
	IsDilute     bool                 `db:"is_dilute" json:"is_dilute"`
	Breathalyzer *BreathalyzerReading `db:"-" json:"breathalyzer,omitempty"`

	Detected            []string     `db:"detected" json:"detected,omitempty"`
	ExpectedPositives   []string     `db:"expected_positives" json:"expected_positives,omitempty"`
	UnexpectedPositives []string     `db:"unexpected_positives" json:"unexpected_positives,omitempty"`
	UnexpectedNegatives []string     `db:"unexpected_negatives" json:"unexpected_negatives,omitempty"`
	CriticalNegatives   []string     `db:"critical_negatives" json:"critical_negatives,omitempty"`
	InitialDisposition  *Disposition `db:"initial_disposition" json:"initial_disposition,omitempty"`

	ConfirmationDecision   *ConfirmationDecision `db:"confirmation_decision" json:"confirmation_decision,omitempty"`
	DecisionRequestedAt    *time.Time            `db:"decision_requested_at" json:"decision_requested_at,omitempty"`
	ConfirmationSubstances []string              `db:"confirmation_substances" json:"confirmation_substances,omitempty"`
	ConfirmationResults    []ConfirmationResult  `db:"-" json:"confirmation_results,omitempty"`

	FinalDisposition *Disposition `db:"final_disposition" json:"final_disposition,omitempty"`

	ScreenedAt  *time.Time `db:"screened_at" json:"screened_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`

	Ledger []LedgerEntry `db:"-" json:"ledger,omitempty"`
}

// Shipped reports the derived in-transit phase: a lab-panel sample is
// considered shipped once the lifecycle has advanced past collection. It is
// never stored.
func (t *TestRecord) Shipped() bool {
	return t.Panel.IsLab() && t.Stage != StageCollected
}

// SentEntry returns the sent ledger entry for a stage, if one exists.
func (t *TestRecord) SentEntry(stage Stage) *LedgerEntry {
	for i := range t.Ledger {
		if t.Ledger[i].Stage == stage && t.Ledger[i].Status == LedgerSent {
			return &t.Ledger[i]
		}
	}
	return nil
}
