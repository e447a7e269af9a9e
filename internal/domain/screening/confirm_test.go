package screening

import (
	"errors"
	"reflect"
	"testing"
)

func TestResolveAcceptAsFinalKeepsInitial(t *testing.T) {
	res, err := ResolveConfirmation(ResolveInput{
		Decision:            DecisionAcceptAsFinal,
		InitialDisposition:  DispositionMixedUnexpected,
		UnexpectedPositives: []string{"cocaine"},
		UnexpectedNegatives: []string{"methadone"},
	})
	if err != nil {
		t.Fatalf("ResolveConfirmation: %v", err)
	}
	if res.FinalDisposition != DispositionMixedUnexpected {
		t.Errorf("final = %s, want initial carried over", res.FinalDisposition)
	}
}

func TestResolveAwaitingDecisionFails(t *testing.T) {
	_, err := ResolveConfirmation(ResolveInput{
		Decision:           DecisionAwaiting,
		InitialDisposition: DispositionUnexpectedPositive,
	})
	if !errors.Is(err, ErrPreconditionNotMet) {
		t.Fatalf("err = %v, want precondition", err)
	}
}

func TestResolveClearedPositiveBecomesConfirmedNegative(t *testing.T) {
	res, err := ResolveConfirmation(ResolveInput{
		Decision:            DecisionRequestConfirmation,
		InitialDisposition:  DispositionUnexpectedPositive,
		UnexpectedPositives: []string{"cocaine"},
		Substances:          []string{"cocaine"},
		Results:             []ConfirmationResult{{Substance: "cocaine", Result: ConfirmedNegative}},
	})
	if err != nil {
		t.Fatalf("ResolveConfirmation: %v", err)
	}
	if res.FinalDisposition != DispositionConfirmedNegative {
		t.Errorf("final = %s, want %s", res.FinalDisposition, DispositionConfirmedNegative)
	}
	if len(res.UnexpectedPositives) != 0 {
		t.Errorf("cleared substance still in bucket: %v", res.UnexpectedPositives)
	}
}

func TestResolveClearedWithExpectedPositivesKeepsAuditLabel(t *testing.T) {
	res, err := ResolveConfirmation(ResolveInput{
		Decision:            DecisionRequestConfirmation,
		InitialDisposition:  DispositionUnexpectedPositive,
		ExpectedPositives:   []string{"oxycodone"},
		UnexpectedPositives: []string{"thc"},
		Substances:          []string{"thc"},
		Results:             []ConfirmationResult{{Substance: "thc", Result: ConfirmedNegative}},
	})
	if err != nil {
		t.Fatalf("ResolveConfirmation: %v", err)
	}
	if res.FinalDisposition != DispositionConfirmedExpectedPositive {
		t.Errorf("final = %s, want %s", res.FinalDisposition, DispositionConfirmedExpectedPositive)
	}
}

func TestResolveConfirmedPositiveStaysUnexpected(t *testing.T) {
	res, err := ResolveConfirmation(ResolveInput{
		Decision:            DecisionRequestConfirmation,
		InitialDisposition:  DispositionUnexpectedPositive,
		UnexpectedPositives: []string{"cocaine"},
		Substances:          []string{"cocaine"},
		Results:             []ConfirmationResult{{Substance: "cocaine", Result: ConfirmedPositive}},
	})
	if err != nil {
		t.Fatalf("ResolveConfirmation: %v", err)
	}
	if res.FinalDisposition != DispositionUnexpectedPositive {
		t.Errorf("final = %s, want %s", res.FinalDisposition, DispositionUnexpectedPositive)
	}
}

func TestResolveNegativeConfirmedPositiveMovesToExpected(t *testing.T) {
	// The declared medication substance was present after all.
	res, err := ResolveConfirmation(ResolveInput{
		Decision:            DecisionRequestConfirmation,
		InitialDisposition:  DispositionUnexpectedNegativeCritical,
		UnexpectedNegatives: []string{"buprenorphine"},
		CriticalNegatives:   []string{"buprenorphine"},
		Substances:          []string{"buprenorphine"},
		Results:             []ConfirmationResult{{Substance: "buprenorphine", Result: ConfirmedPositive}},
	})
	if err != nil {
		t.Fatalf("ResolveConfirmation: %v", err)
	}
	if res.FinalDisposition != DispositionConfirmedExpectedPositive {
		t.Errorf("final = %s, want %s", res.FinalDisposition, DispositionConfirmedExpectedPositive)
	}
	if !reflect.DeepEqual(res.ExpectedPositives, []string{"buprenorphine"}) {
		t.Errorf("expected positives = %v", res.ExpectedPositives)
	}
}

func TestResolveCriticalNegativeSurvivesInconclusive(t *testing.T) {
	res, err := ResolveConfirmation(ResolveInput{
		Decision:            DecisionRequestConfirmation,
		InitialDisposition:  DispositionUnexpectedNegativeCritical,
		UnexpectedNegatives: []string{"buprenorphine"},
		CriticalNegatives:   []string{"buprenorphine"},
		Substances:          []string{"buprenorphine"},
		Results:             []ConfirmationResult{{Substance: "buprenorphine", Result: ConfirmedInconclusive}},
	})
	if err != nil {
		t.Fatalf("ResolveConfirmation: %v", err)
	}
	if res.FinalDisposition != DispositionUnexpectedNegativeCritical {
		t.Errorf("final = %s, want critical flag carried", res.FinalDisposition)
	}
}

func TestResolvePartialConfirmationKeepsUncontested(t *testing.T) {
	// Only cocaine contested; thc keeps its bucket membership.
	res, err := ResolveConfirmation(ResolveInput{
		Decision:            DecisionRequestConfirmation,
		InitialDisposition:  DispositionUnexpectedPositive,
		UnexpectedPositives: []string{"cocaine", "thc"},
		Substances:          []string{"cocaine"},
		Results:             []ConfirmationResult{{Substance: "cocaine", Result: ConfirmedNegative}},
	})
	if err != nil {
		t.Fatalf("ResolveConfirmation: %v", err)
	}
	if res.FinalDisposition != DispositionUnexpectedPositive {
		t.Errorf("final = %s, want %s", res.FinalDisposition, DispositionUnexpectedPositive)
	}
	if !reflect.DeepEqual(res.UnexpectedPositives, []string{"thc"}) {
		t.Errorf("unexpected positives = %v", res.UnexpectedPositives)
	}
}

func TestResolveMixedRoundTrip(t *testing.T) {
	// A mixed result where confirmation clears the positive and proves the
	// negative was present resolves fully clean with audit labels.
	res, err := ResolveConfirmation(ResolveInput{
		Decision:            DecisionRequestConfirmation,
		InitialDisposition:  DispositionMixedUnexpected,
		UnexpectedPositives: []string{"cocaine"},
		UnexpectedNegatives: []string{"methadone"},
		Substances:          []string{"cocaine", "methadone"},
		Results: []ConfirmationResult{
			{Substance: "cocaine", Result: ConfirmedNegative},
			{Substance: "methadone", Result: ConfirmedPositive},
		},
	})
	if err != nil {
		t.Fatalf("ResolveConfirmation: %v", err)
	}
	if res.FinalDisposition != DispositionConfirmedExpectedPositive {
		t.Errorf("final = %s, want %s", res.FinalDisposition, DispositionConfirmedExpectedPositive)
	}
}

func TestResolveResultCoverageErrors(t *testing.T) {
	base := ResolveInput{
		Decision:            DecisionRequestConfirmation,
		InitialDisposition:  DispositionUnexpectedPositive,
		UnexpectedPositives: []string{"cocaine", "thc"},
		Substances:          []string{"cocaine", "thc"},
	}

	tests := []struct {
		name    string
		results []ConfirmationResult
	}{
		{"missing result", []ConfirmationResult{{Substance: "cocaine", Result: ConfirmedNegative}}},
		{"duplicate result", []ConfirmationResult{
			{Substance: "cocaine", Result: ConfirmedNegative},
			{Substance: "cocaine", Result: ConfirmedPositive},
		}},
		{"unknown substance", []ConfirmationResult{
			{Substance: "cocaine", Result: ConfirmedNegative},
			{Substance: "fentanyl", Result: ConfirmedNegative},
		}},
		{"empty result value", []ConfirmationResult{
			{Substance: "cocaine", Result: ConfirmedNegative},
			{Substance: "thc"},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			in.Results = tc.results
			if _, err := ResolveConfirmation(in); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
