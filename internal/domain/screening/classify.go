package screening

import (
	"fmt"
	"sort"

	"github.com/clearscreen/clearscreen/internal/domain/medication"
	"github.com/clearscreen/clearscreen/internal/domain/panel"
)

// ClassifyInput is the raw screening data plus the medication exemption
// snapshot as of the collection date.
type ClassifyInput struct {
	Panel      panel.Panel
	Detected   []string
	Exemptions map[string]medication.Exemption
	// Invalid marks a sample the collaborator flagged unscreenable. It
	// short-circuits every other rule.
	Invalid bool
}

// Classification is the verdict and the substance partition. The three
// buckets are disjoint; ExpectedPositives and UnexpectedPositives together
// are exactly the detected set.
type Classification struct {
	Disposition         Disposition
	ExpectedPositives   []string
	UnexpectedPositives []string
	UnexpectedNegatives []string
	// CriticalNegatives is the subset of UnexpectedNegatives whose exempting
	// medication is under strict monitoring (require_confirmation).
	CriticalNegatives []string
}

// Classify turns detected substances, the client's exemption snapshot, and
// the panel's governed list into a disposition and substance buckets. Pure:
// same inputs always produce the same output. Malformed input (unknown
// panel, substance outside the panel) fails loudly; an ambiguous result is
// never defaulted to negative.
func Classify(in ClassifyInput) (Classification, error) {
	governed, err := panel.Substances(in.Panel)
	if err != nil {
		return Classification{}, err
	}

	if in.Invalid {
		return Classification{Disposition: DispositionInconclusive}, nil
	}

	governedSet := make(map[string]bool, len(governed))
	for _, s := range governed {
		governedSet[s] = true
	}

	detectedSet := make(map[string]bool, len(in.Detected))
	for _, s := range in.Detected {
		if !governedSet[s] {
			return Classification{}, fmt.Errorf("substance %q is not governed by panel %q", s, in.Panel)
		}
		detectedSet[s] = true
	}

	var c Classification
	for _, s := range governed {
		_, expected := in.Exemptions[s]
		detected := detectedSet[s]

		switch {
		case detected && expected:
			c.ExpectedPositives = append(c.ExpectedPositives, s)
		case detected && !expected:
			c.UnexpectedPositives = append(c.UnexpectedPositives, s)
		case !detected && expected:
			c.UnexpectedNegatives = append(c.UnexpectedNegatives, s)
			if in.Exemptions[s].RequireConfirmation {
				c.CriticalNegatives = append(c.CriticalNegatives, s)
			}
		}
	}

	sort.Strings(c.ExpectedPositives)
	sort.Strings(c.UnexpectedPositives)
	sort.Strings(c.UnexpectedNegatives)
	sort.Strings(c.CriticalNegatives)

	c.Disposition = dispositionFor(c.ExpectedPositives, c.UnexpectedPositives, c.UnexpectedNegatives, c.CriticalNegatives)
	return c, nil
}

// dispositionFor applies the bucket rules shared by initial classification
// and the confirmation merge.
func dispositionFor(expectedPos, unexpectedPos, unexpectedNeg, criticalNeg []string) Disposition {
	switch {
	case len(unexpectedPos) > 0 && len(unexpectedNeg) > 0:
		return DispositionMixedUnexpected
	case len(unexpectedPos) > 0:
		return DispositionUnexpectedPositive
	case len(criticalNeg) > 0:
		return DispositionUnexpectedNegativeCritical
	case len(unexpectedNeg) > 0:
		return DispositionUnexpectedNegativeWarning
	case len(expectedPos) > 0:
		return DispositionExpectedPositive
	default:
		return DispositionNegative
	}
}
