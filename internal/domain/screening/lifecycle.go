package screening

import (
	"time"

	"github.com/google/uuid"

	"github.com/clearscreen/clearscreen/internal/domain/medication"
	"github.com/clearscreen/clearscreen/internal/domain/panel"
)

// The functions in this file are the only code allowed to mutate lifecycle
// fields on a TestRecord. Every transition checks reachability first and
// preconditions second; a failed check leaves the record untouched.

// NewTestRecord creates a record at the collected stage.
func NewTestRecord(clientID uuid.UUID, p panel.Panel, collectedAt time.Time) (*TestRecord, error) {
	if clientID == uuid.Nil {
		return nil, &PreconditionError{Field: "client_id", Reason: "required"}
	}
	if !panel.Valid(p) {
		return nil, &PreconditionError{Field: "panel", Reason: "unknown panel " + string(p)}
	}
	if collectedAt.IsZero() {
		return nil, &PreconditionError{Field: "collected_at", Reason: "required"}
	}
	return &TestRecord{
		ID:          uuid.New(),
		ClientID:    clientID,
		Panel:       p,
		Stage:       StageCollected,
		CollectedAt: collectedAt,
	}, nil
}

// ScreeningData is the revalidated payload from the extraction collaborator.
type ScreeningData struct {
	Detected     []string
	IsDilute     bool
	Invalid      bool
	Breathalyzer *BreathalyzerReading
}

// ApplyScreening moves collected -> screened, classifying the detected set
// against the client's exemption snapshot.
func ApplyScreening(t *TestRecord, data ScreeningData, exemptions map[string]medication.Exemption, now time.Time) error {
	if t.Stage != StageCollected {
		return &IllegalTransitionError{From: t.Stage, To: StageScreened}
	}

	c, err := Classify(ClassifyInput{
		Panel:      t.Panel,
		Detected:   data.Detected,
		Exemptions: exemptions,
		Invalid:    data.Invalid,
	})
	if err != nil {
		return err
	}

	t.Detected = data.Detected
	t.IsDilute = data.IsDilute
	t.Breathalyzer = data.Breathalyzer
	t.ExpectedPositives = c.ExpectedPositives
	t.UnexpectedPositives = c.UnexpectedPositives
	t.UnexpectedNegatives = c.UnexpectedNegatives
	t.CriticalNegatives = c.CriticalNegatives
	disposition := c.Disposition
	t.InitialDisposition = &disposition

	if disposition.Unexpected() {
		awaiting := DecisionAwaiting
		t.ConfirmationDecision = &awaiting
		t.DecisionRequestedAt = &now
	}

	t.Stage = StageScreened
	t.ScreenedAt = &now
	return nil
}

// CompleteScreened moves screened -> complete for clean and inconclusive
// dispositions, where no confirmation path applies. Dilute-ness never blocks
// completion; the flag rides along on the record for downstream reporting.
func CompleteScreened(t *TestRecord, now time.Time) error {
	if t.Stage != StageScreened {
		return &IllegalTransitionError{From: t.Stage, To: StageComplete}
	}
	if t.InitialDisposition == nil {
		return &PreconditionError{Field: "initial_disposition", Reason: "screening result missing"}
	}
	d := *t.InitialDisposition
	if d.Unexpected() {
		return &PreconditionError{Field: "initial_disposition", Reason: "unexpected result requires a confirmation decision"}
	}

	t.FinalDisposition = t.InitialDisposition
	t.Stage = StageComplete
	t.CompletedAt = &now
	return nil
}

// DecideConfirmation records the staff decision on an unexpected screening
// result. acceptAsFinal completes the record immediately with the initial
// disposition; requestConfirmation freezes the contested substance set and
// moves to confirmation_pending.
func DecideConfirmation(t *TestRecord, decision ConfirmationDecision, substances []string, now time.Time) error {
	if t.Stage != StageScreened {
		return &IllegalTransitionError{From: t.Stage, To: StageConfirmationPending}
	}
	if t.InitialDisposition == nil || !t.InitialDisposition.Unexpected() {
		return &PreconditionError{Field: "initial_disposition", Reason: "no unexpected result to confirm"}
	}
	if len(t.ConfirmationSubstances) > 0 {
		return &PreconditionError{Field: "confirmation_substances", Reason: "confirmation set already frozen"}
	}

	switch decision {
	case DecisionAcceptAsFinal:
		d := DecisionAcceptAsFinal
		t.ConfirmationDecision = &d
		t.FinalDisposition = t.InitialDisposition
		t.Stage = StageComplete
		t.CompletedAt = &now
		return nil

	case DecisionRequestConfirmation:
		if len(substances) == 0 {
			return &PreconditionError{Field: "confirmation_substances", Reason: "at least one substance required"}
		}
		contestable := make(map[string]bool, len(t.UnexpectedPositives)+len(t.UnexpectedNegatives))
		for _, s := range t.UnexpectedPositives {
			contestable[s] = true
		}
		for _, s := range t.UnexpectedNegatives {
			contestable[s] = true
		}
		for _, s := range substances {
			if !contestable[s] {
				return &PreconditionError{Field: "confirmation_substances", Reason: "substance " + s + " is not contested"}
			}
		}
		d := DecisionRequestConfirmation
		t.ConfirmationDecision = &d
		t.ConfirmationSubstances = substances
		t.Stage = StageConfirmationPending
		return nil

	default:
		return &PreconditionError{Field: "confirmation_decision", Reason: "must be accept_as_final or request_confirmation"}
	}
}

// ApplyConfirmationResults moves confirmation_pending -> complete once every
// contested substance has a lab result, merging via ResolveConfirmation.
func ApplyConfirmationResults(t *TestRecord, results []ConfirmationResult, now time.Time) error {
	if t.Stage != StageConfirmationPending {
		return &IllegalTransitionError{From: t.Stage, To: StageComplete}
	}
	if t.ConfirmationDecision == nil || *t.ConfirmationDecision != DecisionRequestConfirmation {
		return &PreconditionError{Field: "confirmation_decision", Reason: "no confirmation requested"}
	}

	res, err := ResolveConfirmation(ResolveInput{
		Decision:            *t.ConfirmationDecision,
		InitialDisposition:  *t.InitialDisposition,
		ExpectedPositives:   t.ExpectedPositives,
		UnexpectedPositives: t.UnexpectedPositives,
		UnexpectedNegatives: t.UnexpectedNegatives,
		CriticalNegatives:   t.CriticalNegatives,
		Substances:          t.ConfirmationSubstances,
		Results:             results,
	})
	if err != nil {
		return err
	}

	t.ConfirmationResults = results
	t.FinalDisposition = &res.FinalDisposition
	t.Stage = StageComplete
	t.CompletedAt = &now
	return nil
}
