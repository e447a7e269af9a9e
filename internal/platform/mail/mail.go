// Package mail is the outbound notification channel. The lifecycle engine
// decides whether, to whom, and once; this package only carries the message.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Message is a rendering-ready notification intent. The engine fills in the
// recipient list and the fields the template layer needs; it never renders
// content itself.
type Message struct {
	To      []string
	Subject string
	Stage   string
	TestID  uuid.UUID
	Fields  map[string]string
}

// Sender delivers a message over the external channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers messages over plain SMTP.
type SMTPSender struct {
	Host string
	Port string
	From string
}

func NewSMTPSender(host, port, from string) *SMTPSender {
	return &SMTPSender{Host: host, Port: port, From: from}
}

func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", s.From)
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&body, "Subject: %s\r\n\r\n", msg.Subject)
	fmt.Fprintf(&body, "Test %s has reached stage %q.\r\n", msg.TestID, msg.Stage)
	for k, v := range msg.Fields {
		fmt.Fprintf(&body, "%s: %s\r\n", k, v)
	}

	addr := s.Host + ":" + s.Port
	if err := smtp.SendMail(addr, nil, s.From, msg.To, []byte(body.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// SendCall records a single call to Send.
type SendCall struct {
	Msg Message
}

// MockSender is a test double for Sender.
type MockSender struct {
	mu         sync.Mutex
	calls      []SendCall
	ShouldFail bool
	FailError  string
}

// Send records the call and optionally returns an error.
func (m *MockSender) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SendCall{Msg: msg})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded send calls.
func (m *MockSender) Calls() []SendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SendCall, len(m.calls))
	copy(out, m.calls)
	return out
}
