package medication

import (
	"time"

	"github.com/google/uuid"
)

// Status of a declared medication.
const (
	StatusActive       = "active"
	StatusDiscontinued = "discontinued"
)

// Medication maps to the medication table. A client-declared medication whose
// substance tags exempt detected substances from being flagged unexpected.
type Medication struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	ClientID            uuid.UUID  `db:"client_id" json:"client_id"`
	Name                string     `db:"name" json:"name"`
	SubstanceTags       []string   `db:"substance_tags" json:"substance_tags"`
	Status              string     `db:"status" json:"status"`
	RequireConfirmation bool       `db:"require_confirmation" json:"require_confirmation"`
	StartDate           time.Time  `db:"start_date" json:"start_date"`
	EndDate             *time.Time `db:"end_date" json:"end_date,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// EditWindow is how long after creation a medication may still be edited or
// discontinued by the client. Past it the row is append-only history.
const EditWindow = 7 * 24 * time.Hour

// Editable reports whether the medication is still inside its edit window at
// the given time. A discontinued medication is never editable.
func (m *Medication) Editable(now time.Time) bool {
	if m.Status == StatusDiscontinued {
		return false
	}
	return now.Sub(m.CreatedAt) <= EditWindow
}

// Exemption is one substance the client's medication history excuses at a
// given collection date.
type Exemption struct {
	Substance           string
	MedicationName      string
	RequireConfirmation bool
}

// ExemptionsAsOf computes the substance exemption map for a collection date.
// A medication exempts its tagged substances when it was in effect at the
// collection date: started on or before it, and either still active or
// discontinued with an end date on or after it. A strict-monitoring
// medication (RequireConfirmation) stays a monitored expectation even past
// its end date, so its absence keeps classifying as a critical negative.
// This is the single exemption lookup used by classification, the wizard,
// and result rendering.
func ExemptionsAsOf(meds []*Medication, collectedAt time.Time) map[string]Exemption {
	out := make(map[string]Exemption)
	for _, m := range meds {
		if m.StartDate.After(collectedAt) {
			continue
		}
		if m.Status == StatusDiscontinued && !m.RequireConfirmation {
			if m.EndDate == nil || m.EndDate.Before(collectedAt) {
				continue
			}
		}
		for _, tag := range m.SubstanceTags {
			ex, seen := out[tag]
			if !seen {
				out[tag] = Exemption{
					Substance:           tag,
					MedicationName:      m.Name,
					RequireConfirmation: m.RequireConfirmation,
				}
				continue
			}
			// A strict-monitoring medication dominates an ordinary one for
			// the same substance.
			if m.RequireConfirmation && !ex.RequireConfirmation {
				ex.RequireConfirmation = true
				ex.MedicationName = m.Name
				out[tag] = ex
			}
		}
	}
	return out
}
