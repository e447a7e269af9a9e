// Package panel defines the test panel catalog: which substances each panel
// screens for and which lifecycle branches apply.
package panel

import "fmt"

// Panel identifies one of the fixed panel configurations offered by the
// clinic.
type Panel string

const (
	Instant5  Panel = "instant-5"
	Instant12 Panel = "instant-12"
	Lab9      Panel = "lab-9"
	Lab14     Panel = "lab-14"
	LabEtG    Panel = "lab-etg"
)

// ErrUnknownPanel is returned for panel codes outside the catalog. An unknown
// panel is a data error and must fail loudly, never default to a panel.
var ErrUnknownPanel = fmt.Errorf("unknown panel")

var governed = map[Panel][]string{
	Instant5: {
		"amphetamine", "cocaine", "opiates", "pcp", "thc",
	},
	Instant12: {
		"amphetamine", "barbiturates", "benzodiazepines", "buprenorphine",
		"cocaine", "methadone", "methamphetamine", "mdma", "opiates",
		"oxycodone", "pcp", "thc",
	},
	Lab9: {
		"amphetamine", "benzodiazepines", "buprenorphine", "cocaine",
		"fentanyl", "methadone", "opiates", "oxycodone", "thc",
	},
	Lab14: {
		"amphetamine", "barbiturates", "benzodiazepines", "buprenorphine",
		"cocaine", "fentanyl", "gabapentin", "kratom", "methadone",
		"methamphetamine", "mdma", "opiates", "oxycodone", "thc",
	},
	LabEtG: {
		"etg", "ets",
	},
}

// Valid reports whether p is a known panel code.
func Valid(p Panel) bool {
	_, ok := governed[p]
	return ok
}

// Substances returns the governed substance list for the panel.
func Substances(p Panel) ([]string, error) {
	subs, ok := governed[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPanel, p)
	}
	out := make([]string, len(subs))
	copy(out, subs)
	return out, nil
}

// Governs reports whether the panel screens for the given substance.
func Governs(p Panel, substance string) (bool, error) {
	subs, ok := governed[p]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownPanel, p)
	}
	for _, s := range subs {
		if s == substance {
			return true, nil
		}
	}
	return false, nil
}

// IsLab reports whether the panel is processed by an external laboratory.
// Lab panels have a shipped/in-transit phase between collection and
// screening, and notify referral parties at collection time.
func (p Panel) IsLab() bool {
	switch p {
	case Lab9, Lab14, LabEtG:
		return true
	}
	return false
}

// All returns the panel catalog in a stable order.
func All() []Panel {
	return []Panel{Instant5, Instant12, Lab9, Lab14, LabEtG}
}
