package screening

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clearscreen/clearscreen/internal/domain/client"
	"github.com/clearscreen/clearscreen/internal/platform/mail"
)

// Dispatcher sends stage notifications and records every attempt in the
// append-only ledger. The sent guarantee is at-most-once per (test, stage):
// a repeat call that finds a sent entry returns it without sending, and the
// storage layer's unique index settles concurrent races.
type Dispatcher struct {
	repo    Repository
	clients client.Repository
	sender  mail.Sender
	log     zerolog.Logger
	now     func() time.Time
}

func NewDispatcher(repo Repository, clients client.Repository, sender mail.Sender, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		repo:    repo,
		clients: clients,
		sender:  sender,
		log:     log.With().Str("component", "dispatcher").Logger(),
		now:     time.Now,
	}
}

// Dispatch sends the notification for a stage the record has reached. It
// returns the sent ledger entry, or (nil, nil) when the stage carries no
// notification for this record. A send failure is recorded as a failed
// entry and surfaced as a DispatchError; the caller's lifecycle transition
// has already committed and must not be rolled back.
func (d *Dispatcher) Dispatch(ctx context.Context, t *TestRecord, stage Stage) (*LedgerEntry, error) {
	if existing := t.SentEntry(stage); existing != nil {
		d.log.Debug().
			Str("test_id", t.ID.String()).
			Str("stage", string(stage)).
			Msg("notification already sent, skipping")
		return existing, nil
	}

	recipients, err := d.recipients(ctx, t, stage)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		d.log.Debug().
			Str("test_id", t.ID.String()).
			Str("stage", string(stage)).
			Msg("no recipients for stage, nothing to send")
		return nil, nil
	}

	// Claim the sent slot before touching the mail channel. The unique
	// index admits one sent row per (test, stage), so when two dispatchers
	// race only the claim winner proceeds to send; the loser observes the
	// winner's entry and delivers nothing.
	entry := &LedgerEntry{
		ID:          uuid.New(),
		TestID:      t.ID,
		Stage:       stage,
		Status:      LedgerSent,
		AttemptedAt: d.now(),
		Recipients:  recipients,
	}
	if appendErr := d.repo.AppendLedger(ctx, entry); appendErr != nil {
		if winner, ok := d.sentByRace(ctx, t.ID, stage, appendErr); ok {
			d.log.Warn().
				Str("test_id", t.ID.String()).
				Str("stage", string(stage)).
				Msg("lost dispatch race, keeping the winning sent entry")
			return winner, nil
		}
		return nil, fmt.Errorf("claim sent notification: %w", appendErr)
	}

	msg := buildMessage(t, stage, recipients)
	if sendErr := d.sender.Send(ctx, msg); sendErr != nil {
		// Demote the claim so a retry can take the slot again.
		entry.Status = LedgerFailed
		entry.Error = sendErr.Error()
		if markErr := d.repo.MarkLedgerFailed(ctx, entry.ID, entry.Error); markErr != nil {
			d.log.Error().Err(markErr).
				Str("test_id", t.ID.String()).
				Str("stage", string(stage)).
				Msg("failed to demote claimed notification entry")
		}
		t.Ledger = append(t.Ledger, *entry)
		return nil, &DispatchError{Stage: stage, Err: sendErr}
	}
	t.Ledger = append(t.Ledger, *entry)

	d.log.Info().
		Str("test_id", t.ID.String()).
		Str("stage", string(stage)).
		Int("recipients", len(recipients)).
		Msg("notification sent")
	return entry, nil
}

// sentByRace resolves a unique-index violation on the sent entry by loading
// the entry the concurrent winner recorded.
func (d *Dispatcher) sentByRace(ctx context.Context, testID uuid.UUID, stage Stage, appendErr error) (*LedgerEntry, bool) {
	if !errors.Is(appendErr, ErrDuplicateSent) {
		return nil, false
	}
	entries, err := d.repo.ListLedger(ctx, testID)
	if err != nil {
		d.log.Error().Err(err).Str("test_id", testID.String()).Msg("failed to load ledger after dispatch race")
		return nil, false
	}
	for i := range entries {
		if entries[i].Stage == stage && entries[i].Status == LedgerSent {
			return &entries[i], true
		}
	}
	return nil, false
}

// recipients resolves who is notified at a stage. At collection only the
// referral parties of a lab sample hear about it; clients are told nothing
// until a result exists. Screening and completion go to the client and
// every referral contact, deduplicated case-insensitively.
func (d *Dispatcher) recipients(ctx context.Context, t *TestRecord, stage Stage) ([]string, error) {
	switch stage {
	case StageCollected:
		if !t.Panel.IsLab() {
			return nil, nil
		}
		contacts, err := d.clients.ListReferralContacts(ctx, t.ClientID)
		if err != nil {
			return nil, fmt.Errorf("load referral contacts: %w", err)
		}
		var out []string
		seen := map[string]bool{}
		for _, rc := range contacts {
			key := strings.ToLower(rc.Email)
			if rc.Email == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, rc.Email)
		}
		return out, nil

	case StageScreened, StageComplete:
		c, err := d.clients.GetByID(ctx, t.ClientID)
		if err != nil {
			return nil, fmt.Errorf("load client: %w", err)
		}
		contacts, err := d.clients.ListReferralContacts(ctx, t.ClientID)
		if err != nil {
			return nil, fmt.Errorf("load referral contacts: %w", err)
		}
		var out []string
		seen := map[string]bool{}
		if c.Email != "" {
			seen[strings.ToLower(c.Email)] = true
			out = append(out, c.Email)
		}
		for _, rc := range contacts {
			key := strings.ToLower(rc.Email)
			if rc.Email == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, rc.Email)
		}
		return out, nil

	default:
		return nil, nil
	}
}

func buildMessage(t *TestRecord, stage Stage, recipients []string) mail.Message {
	msg := mail.Message{
		To:     recipients,
		Stage:  string(stage),
		TestID: t.ID,
		Fields: map[string]string{
			"panel":        string(t.Panel),
			"collected_at": t.CollectedAt.Format(time.RFC3339),
		},
	}
	switch stage {
	case StageCollected:
		msg.Subject = "Drug test sample collected"
	case StageScreened:
		msg.Subject = "Drug test screening results ready"
		if t.InitialDisposition != nil {
			msg.Fields["disposition"] = string(*t.InitialDisposition)
		}
	case StageComplete:
		msg.Subject = "Drug test complete"
		if t.FinalDisposition != nil {
			msg.Fields["disposition"] = string(*t.FinalDisposition)
		}
	}
	if t.IsDilute {
		msg.Fields["dilute"] = "true"
	}
	return msg
}
