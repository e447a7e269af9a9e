package screening

import (
	"fmt"
	"sort"
)

// ResolveInput carries everything the confirmation merge needs from the
// screened record.
type ResolveInput struct {
	Decision            ConfirmationDecision
	InitialDisposition  Disposition
	ExpectedPositives   []string
	UnexpectedPositives []string
	UnexpectedNegatives []string
	CriticalNegatives   []string
	Substances          []string
	Results             []ConfirmationResult
}

// Resolution is the terminal outcome of a confirmation episode.
type Resolution struct {
	FinalDisposition Disposition
	// Merged buckets after confirmed results override initial membership.
	ExpectedPositives   []string
	UnexpectedPositives []string
	UnexpectedNegatives []string
}

// ResolveConfirmation computes the terminal disposition once a confirmation
// episode resolves. Pure function; same inputs, same resolution.
//
// acceptAsFinal short-circuits with the initial disposition. Otherwise every
// requested substance needs exactly one result; each confirmed result
// overrides the bucket its substance came from, substances never sent retain
// their initial membership, and the disposition is recomputed from the
// merged buckets. When every contested substance confirms clean the label is
// a confirmed variant, preserving the audit fact that confirmation ran.
func ResolveConfirmation(in ResolveInput) (Resolution, error) {
	switch in.Decision {
	case DecisionAcceptAsFinal:
		return Resolution{
			FinalDisposition:    in.InitialDisposition,
			ExpectedPositives:   in.ExpectedPositives,
			UnexpectedPositives: in.UnexpectedPositives,
			UnexpectedNegatives: in.UnexpectedNegatives,
		}, nil
	case DecisionRequestConfirmation:
		// fall through to the merge below
	case DecisionAwaiting:
		return Resolution{}, &PreconditionError{Field: "confirmation_decision", Reason: "still awaiting decision"}
	default:
		return Resolution{}, fmt.Errorf("unknown confirmation decision %q", in.Decision)
	}

	if len(in.Substances) == 0 {
		return Resolution{}, &PreconditionError{Field: "confirmation_substances", Reason: "empty confirmation set"}
	}
	if len(in.Results) != len(in.Substances) {
		return Resolution{}, &PreconditionError{
			Field:  "confirmation_results",
			Reason: fmt.Sprintf("have %d results for %d requested substances", len(in.Results), len(in.Substances)),
		}
	}

	requested := make(map[string]bool, len(in.Substances))
	for _, s := range in.Substances {
		requested[s] = true
	}

	resultFor := make(map[string]ConfirmedResult, len(in.Results))
	for _, r := range in.Results {
		if !requested[r.Substance] {
			return Resolution{}, fmt.Errorf("result for %q which was not sent for confirmation", r.Substance)
		}
		if r.Result == "" {
			return Resolution{}, &PreconditionError{Field: "confirmation_results", Reason: fmt.Sprintf("empty result for %q", r.Substance)}
		}
		if _, dup := resultFor[r.Substance]; dup {
			return Resolution{}, fmt.Errorf("duplicate confirmation result for %q", r.Substance)
		}
		resultFor[r.Substance] = r.Result
	}
	for s := range requested {
		if _, ok := resultFor[s]; !ok {
			return Resolution{}, &PreconditionError{Field: "confirmation_results", Reason: fmt.Sprintf("missing result for %q", s)}
		}
	}

	critical := make(map[string]bool, len(in.CriticalNegatives))
	for _, s := range in.CriticalNegatives {
		critical[s] = true
	}

	out := Resolution{ExpectedPositives: append([]string(nil), in.ExpectedPositives...)}

	var mergedCritical []string
	for _, s := range in.UnexpectedPositives {
		res, contested := resultFor[s]
		if !contested {
			out.UnexpectedPositives = append(out.UnexpectedPositives, s)
			continue
		}
		switch res {
		case ConfirmedNegative:
			// cleared: the screen was a false positive
		case ConfirmedPositive, ConfirmedInconclusive:
			out.UnexpectedPositives = append(out.UnexpectedPositives, s)
		}
	}
	for _, s := range in.UnexpectedNegatives {
		res, contested := resultFor[s]
		if !contested {
			out.UnexpectedNegatives = append(out.UnexpectedNegatives, s)
			if critical[s] {
				mergedCritical = append(mergedCritical, s)
			}
			continue
		}
		switch res {
		case ConfirmedPositive:
			// the expected substance was present after all
			out.ExpectedPositives = append(out.ExpectedPositives, s)
		case ConfirmedNegative, ConfirmedInconclusive:
			out.UnexpectedNegatives = append(out.UnexpectedNegatives, s)
			if critical[s] {
				mergedCritical = append(mergedCritical, s)
			}
		}
	}

	sort.Strings(out.ExpectedPositives)
	sort.Strings(out.UnexpectedPositives)
	sort.Strings(out.UnexpectedNegatives)

	out.FinalDisposition = dispositionFor(out.ExpectedPositives, out.UnexpectedPositives, out.UnexpectedNegatives, mergedCritical)

	// Confirmation cleared everything: keep the audit distinction instead of
	// reverting to the plain clean labels.
	if len(out.UnexpectedPositives) == 0 && len(out.UnexpectedNegatives) == 0 {
		if len(out.ExpectedPositives) > 0 {
			out.FinalDisposition = DispositionConfirmedExpectedPositive
		} else {
			out.FinalDisposition = DispositionConfirmedNegative
		}
	}

	return out, nil
}
