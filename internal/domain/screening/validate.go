package screening

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/clearscreen/clearscreen/internal/domain/panel"
)

// Wizard step payloads are validated twice: a compiled JSON schema rejects
// malformed shapes, then typed checks enforce what schemas cannot (date not
// in the future, panel known, breathalyzer range). Both gates must pass
// before a payload reaches the state machine.

const collectionSchema = `{
	"type": "object",
	"required": ["client_id", "panel", "collected_at"],
	"additionalProperties": false,
	"properties": {
		"client_id":    {"type": "string", "minLength": 1},
		"panel":        {"type": "string", "minLength": 1},
		"collected_at": {"type": "string", "format": "date-time"}
	}
}`

const screeningSchema = `{
	"type": "object",
	"required": ["detected"],
	"additionalProperties": false,
	"properties": {
		"detected": {
			"type": "array",
			"items": {"type": "string", "minLength": 1}
		},
		"is_dilute": {"type": "boolean"},
		"invalid":   {"type": "boolean"},
		"breathalyzer": {
			"type": "object",
			"required": ["taken"],
			"additionalProperties": false,
			"properties": {
				"taken":  {"type": "boolean"},
				"result": {"type": "string", "pattern": "^[0-9]+\\.[0-9]{3}$"}
			}
		}
	}
}`

const decisionSchema = `{
	"type": "object",
	"required": ["decision"],
	"additionalProperties": false,
	"properties": {
		"decision": {
			"type": "string",
			"enum": ["accept_as_final", "request_confirmation"]
		},
		"substances": {
			"type": "array",
			"items": {"type": "string", "minLength": 1}
		}
	}
}`

const confirmationSchema = `{
	"type": "object",
	"required": ["results"],
	"additionalProperties": false,
	"properties": {
		"results": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["substance", "result"],
				"additionalProperties": false,
				"properties": {
					"substance": {"type": "string", "minLength": 1},
					"result": {
						"type": "string",
						"enum": ["confirmed_positive", "confirmed_negative", "confirmed_inconclusive"]
					},
					"note": {"type": "string"}
				}
			}
		}
	}
}`

var (
	collectionContract   = mustCompile("collection.schema.json", collectionSchema)
	screeningContract    = mustCompile("screening.schema.json", screeningSchema)
	decisionContract     = mustCompile("decision.schema.json", decisionSchema)
	confirmationContract = mustCompile("confirmation.schema.json", confirmationSchema)
)

func mustCompile(name, raw string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.AssertFormat = true
	if err := c.AddResource(name, strings.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return c.MustCompile(name)
}

func validateAgainstSchema(s *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return &PreconditionError{Field: "payload", Reason: "invalid json: " + err.Error()}
	}
	if err := s.Validate(v); err != nil {
		return &PreconditionError{Field: "payload", Reason: err.Error()}
	}
	return nil
}

// CollectionInput is the parsed, validated collection step payload.
type CollectionInput struct {
	ClientID    uuid.UUID
	Panel       panel.Panel
	CollectedAt time.Time
}

// ParseCollection validates and parses the collection payload. The
// collection date may not be in the future.
func ParseCollection(raw []byte, now time.Time) (*CollectionInput, error) {
	if err := validateAgainstSchema(collectionContract, raw); err != nil {
		return nil, err
	}

	var wire struct {
		ClientID    string `json:"client_id"`
		Panel       string `json:"panel"`
		CollectedAt string `json:"collected_at"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &PreconditionError{Field: "payload", Reason: err.Error()}
	}

	clientID, err := uuid.Parse(wire.ClientID)
	if err != nil {
		return nil, &PreconditionError{Field: "client_id", Reason: "not a valid uuid"}
	}
	p := panel.Panel(wire.Panel)
	if !panel.Valid(p) {
		return nil, &PreconditionError{Field: "panel", Reason: "unknown panel " + wire.Panel}
	}
	collectedAt, err := time.Parse(time.RFC3339, wire.CollectedAt)
	if err != nil {
		return nil, &PreconditionError{Field: "collected_at", Reason: "not an RFC 3339 timestamp"}
	}
	if collectedAt.After(now) {
		return nil, &PreconditionError{Field: "collected_at", Reason: "collection date is in the future"}
	}

	return &CollectionInput{ClientID: clientID, Panel: p, CollectedAt: collectedAt}, nil
}

// ParseScreening validates and parses the screening step payload. The
// breathalyzer result is transmitted as a three-decimal string so that a
// trailing-zero reading like "0.080" survives the wire exactly; it must
// parse into [0, 1].
func ParseScreening(raw []byte) (*ScreeningData, error) {
	if err := validateAgainstSchema(screeningContract, raw); err != nil {
		return nil, err
	}

	var wire struct {
		Detected     []string `json:"detected"`
		IsDilute     bool     `json:"is_dilute"`
		Invalid      bool     `json:"invalid"`
		Breathalyzer *struct {
			Taken  bool   `json:"taken"`
			Result string `json:"result"`
		} `json:"breathalyzer"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &PreconditionError{Field: "payload", Reason: err.Error()}
	}

	data := &ScreeningData{
		Detected: wire.Detected,
		IsDilute: wire.IsDilute,
		Invalid:  wire.Invalid,
	}

	if wire.Breathalyzer != nil {
		b := &BreathalyzerReading{Taken: wire.Breathalyzer.Taken}
		if wire.Breathalyzer.Taken {
			if wire.Breathalyzer.Result == "" {
				return nil, &PreconditionError{Field: "breathalyzer.result", Reason: "required when taken"}
			}
			v, err := strconv.ParseFloat(wire.Breathalyzer.Result, 64)
			if err != nil {
				return nil, &PreconditionError{Field: "breathalyzer.result", Reason: "not a number"}
			}
			if v < 0 || v > 1 {
				return nil, &PreconditionError{Field: "breathalyzer.result", Reason: "must be between 0.000 and 1.000"}
			}
			b.Result = v
		} else if wire.Breathalyzer.Result != "" {
			return nil, &PreconditionError{Field: "breathalyzer.result", Reason: "present but reading not taken"}
		}
		data.Breathalyzer = b
	}

	return data, nil
}

// DecisionInput is the parsed, validated confirmation decision payload.
type DecisionInput struct {
	Decision   ConfirmationDecision
	Substances []string
}

func ParseDecision(raw []byte) (*DecisionInput, error) {
	if err := validateAgainstSchema(decisionContract, raw); err != nil {
		return nil, err
	}

	var wire struct {
		Decision   string   `json:"decision"`
		Substances []string `json:"substances"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &PreconditionError{Field: "payload", Reason: err.Error()}
	}

	d := ConfirmationDecision(wire.Decision)
	if d == DecisionRequestConfirmation && len(wire.Substances) == 0 {
		return nil, &PreconditionError{Field: "substances", Reason: "required when requesting confirmation"}
	}
	if d == DecisionAcceptAsFinal && len(wire.Substances) > 0 {
		return nil, &PreconditionError{Field: "substances", Reason: "not allowed when accepting as final"}
	}

	return &DecisionInput{Decision: d, Substances: wire.Substances}, nil
}

// ParseConfirmation validates and parses the confirmation results payload.
func ParseConfirmation(raw []byte) ([]ConfirmationResult, error) {
	if err := validateAgainstSchema(confirmationContract, raw); err != nil {
		return nil, err
	}

	var wire struct {
		Results []ConfirmationResult `json:"results"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &PreconditionError{Field: "payload", Reason: err.Error()}
	}
	return wire.Results, nil
}
