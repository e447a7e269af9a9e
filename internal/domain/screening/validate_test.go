package screening

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clearscreen/clearscreen/internal/domain/panel"
)

func TestParseCollectionValid(t *testing.T) {
	clientID := uuid.New()
	raw := []byte(fmt.Sprintf(`{
		"client_id": "%s",
		"panel": "lab-9",
		"collected_at": "2026-03-10T09:30:00Z"
	}`, clientID))

	in, err := ParseCollection(raw, testTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("ParseCollection: %v", err)
	}
	if in.ClientID != clientID || in.Panel != panel.Lab9 {
		t.Errorf("parsed = %+v", in)
	}
	if !in.CollectedAt.Equal(testTime) {
		t.Errorf("collected_at = %v", in.CollectedAt)
	}
}

func TestParseCollectionRejections(t *testing.T) {
	now := testTime
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"missing panel", fmt.Sprintf(`{"client_id":"%s","collected_at":"2026-03-01T00:00:00Z"}`, uuid.New())},
		{"extra field", fmt.Sprintf(`{"client_id":"%s","panel":"lab-9","collected_at":"2026-03-01T00:00:00Z","notes":"x"}`, uuid.New())},
		{"bad uuid", `{"client_id":"nope","panel":"lab-9","collected_at":"2026-03-01T00:00:00Z"}`},
		{"unknown panel", fmt.Sprintf(`{"client_id":"%s","panel":"lab-99","collected_at":"2026-03-01T00:00:00Z"}`, uuid.New())},
		{"future date", fmt.Sprintf(`{"client_id":"%s","panel":"lab-9","collected_at":"2026-03-11T00:00:00Z"}`, uuid.New())},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCollection([]byte(tc.raw), now)
			if !errors.Is(err, ErrPreconditionNotMet) {
				t.Fatalf("err = %v, want precondition", err)
			}
		})
	}
}

func TestParseScreeningBreathalyzer(t *testing.T) {
	tests := []struct {
		result string
		ok     bool
	}{
		{"0.000", true},
		{"0.080", true},
		{"1.000", true},
		{"0.0001", false}, // four decimals
		{"0.08", false},   // two decimals
		{"1.500", false},  // out of range
		{".080", false},
		{"-0.080", false},
	}
	for _, tc := range tests {
		t.Run(tc.result, func(t *testing.T) {
			raw := []byte(fmt.Sprintf(`{"detected":[],"breathalyzer":{"taken":true,"result":"%s"}}`, tc.result))
			data, err := ParseScreening(raw)
			if tc.ok {
				if err != nil {
					t.Fatalf("ParseScreening: %v", err)
				}
				if data.Breathalyzer == nil || !data.Breathalyzer.Taken {
					t.Fatalf("breathalyzer = %+v", data.Breathalyzer)
				}
				return
			}
			if !errors.Is(err, ErrPreconditionNotMet) {
				t.Fatalf("err = %v, want precondition", err)
			}
		})
	}
}

func TestParseScreeningBreathalyzerNotTaken(t *testing.T) {
	data, err := ParseScreening([]byte(`{"detected":[],"breathalyzer":{"taken":false}}`))
	if err != nil {
		t.Fatalf("ParseScreening: %v", err)
	}
	if data.Breathalyzer == nil || data.Breathalyzer.Taken {
		t.Errorf("breathalyzer = %+v", data.Breathalyzer)
	}

	// A reading without taken=true is contradictory.
	_, err = ParseScreening([]byte(`{"detected":[],"breathalyzer":{"taken":false,"result":"0.080"}}`))
	if !errors.Is(err, ErrPreconditionNotMet) {
		t.Fatalf("err = %v, want precondition", err)
	}
}

func TestParseScreeningFlags(t *testing.T) {
	data, err := ParseScreening([]byte(`{"detected":["cocaine"],"is_dilute":true,"invalid":false}`))
	if err != nil {
		t.Fatalf("ParseScreening: %v", err)
	}
	if !data.IsDilute || data.Invalid {
		t.Errorf("flags = %+v", data)
	}
	if len(data.Detected) != 1 || data.Detected[0] != "cocaine" {
		t.Errorf("detected = %v", data.Detected)
	}
}

func TestParseDecision(t *testing.T) {
	in, err := ParseDecision([]byte(`{"decision":"request_confirmation","substances":["cocaine"]}`))
	if err != nil {
		t.Fatalf("ParseDecision: %v", err)
	}
	if in.Decision != DecisionRequestConfirmation || len(in.Substances) != 1 {
		t.Errorf("parsed = %+v", in)
	}

	if _, err := ParseDecision([]byte(`{"decision":"request_confirmation"}`)); !errors.Is(err, ErrPreconditionNotMet) {
		t.Errorf("request without substances: err = %v", err)
	}
	if _, err := ParseDecision([]byte(`{"decision":"accept_as_final","substances":["cocaine"]}`)); !errors.Is(err, ErrPreconditionNotMet) {
		t.Errorf("accept with substances: err = %v", err)
	}
	if _, err := ParseDecision([]byte(`{"decision":"awaiting_decision"}`)); !errors.Is(err, ErrPreconditionNotMet) {
		t.Errorf("awaiting is not a staff decision: err = %v", err)
	}
}

func TestParseConfirmation(t *testing.T) {
	results, err := ParseConfirmation([]byte(`{"results":[
		{"substance":"cocaine","result":"confirmed_negative","note":"GC-MS"},
		{"substance":"methadone","result":"confirmed_positive"}
	]}`))
	if err != nil {
		t.Fatalf("ParseConfirmation: %v", err)
	}
	if len(results) != 2 || results[0].Result != ConfirmedNegative {
		t.Errorf("results = %+v", results)
	}

	if _, err := ParseConfirmation([]byte(`{"results":[]}`)); !errors.Is(err, ErrPreconditionNotMet) {
		t.Errorf("empty results: err = %v", err)
	}
	if _, err := ParseConfirmation([]byte(`{"results":[{"substance":"cocaine","result":"maybe"}]}`)); !errors.Is(err, ErrPreconditionNotMet) {
		t.Errorf("bad result enum: err = %v", err)
	}
}
