package client

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type memRepo struct {
	clients  map[uuid.UUID]*Client
	contacts map[uuid.UUID][]*ReferralContact
}

func newMemRepo() *memRepo {
	return &memRepo{
		clients:  map[uuid.UUID]*Client{},
		contacts: map[uuid.UUID][]*ReferralContact{},
	}
}

func (m *memRepo) Create(_ context.Context, c *Client) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.clients[c.ID] = c
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return nil, errors.New("client not found")
	}
	return c, nil
}

func (m *memRepo) Update(_ context.Context, c *Client) error {
	m.clients[c.ID] = c
	return nil
}

func (m *memRepo) List(_ context.Context, limit, offset int) ([]*Client, int, error) {
	var out []*Client
	for _, c := range m.clients {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *memRepo) AddReferralContact(_ context.Context, rc *ReferralContact) error {
	if rc.ID == uuid.Nil {
		rc.ID = uuid.New()
	}
	m.contacts[rc.ClientID] = append(m.contacts[rc.ClientID], rc)
	return nil
}

func (m *memRepo) ListReferralContacts(_ context.Context, clientID uuid.UUID) ([]*ReferralContact, error) {
	return m.contacts[clientID], nil
}

func (m *memRepo) RemoveReferralContact(_ context.Context, id uuid.UUID) error {
	for clientID, list := range m.contacts {
		for i, rc := range list {
			if rc.ID == id {
				m.contacts[clientID] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemRepo())

	tests := []struct {
		name   string
		client Client
		ok     bool
	}{
		{"valid", Client{FirstName: "Sam", LastName: "Ortiz", Email: "sam@example.com"}, true},
		{"missing first name", Client{LastName: "Ortiz", Email: "sam@example.com"}, false},
		{"missing last name", Client{FirstName: "Sam", Email: "sam@example.com"}, false},
		{"bad email", Client{FirstName: "Sam", LastName: "Ortiz", Email: "nope"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.client
			err := svc.Create(context.Background(), &c)
			if tc.ok && err != nil {
				t.Fatalf("Create: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestReferralContactKinds(t *testing.T) {
	svc := NewService(newMemRepo())
	c := &Client{FirstName: "Sam", LastName: "Ortiz", Email: "sam@example.com"}
	if err := svc.Create(context.Background(), c); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, kind := range []string{"court", "employer", "case-manager", "other"} {
		rc := &ReferralContact{ClientID: c.ID, Name: "contact", Email: "x@example.com", Kind: kind}
		if err := svc.AddReferralContact(context.Background(), rc); err != nil {
			t.Errorf("kind %s: %v", kind, err)
		}
	}

	bad := &ReferralContact{ClientID: c.ID, Name: "contact", Email: "x@example.com", Kind: "friend"}
	if err := svc.AddReferralContact(context.Background(), bad); err == nil {
		t.Error("expected error for unknown contact kind")
	}

	contacts, err := svc.ListReferralContacts(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("ListReferralContacts: %v", err)
	}
	if len(contacts) != 4 {
		t.Errorf("contacts = %d, want 4", len(contacts))
	}
}
