// Package notify fans lifecycle events out to other processes on the appliance
// network. Publishing is best effort: the audit trail is the record of truth.
package notify

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/forpostctl/internal/eventstore"
	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
)

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e eventstore.Event) error
	Close() error
}

// Message is the wire envelope of a published event.
type Message struct {
	OperationID string            `json:"operation_id"`
	Type        string            `json:"type"`
	Timestamp   time.Time         `json:"timestamp"`
	Host        string            `json:"host,omitempty"`
	Payload     json.RawMessage   `json:"payload"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Encode builds the JSON envelope for e.
func Encode(e eventstore.Event, host string) ([]byte, error) {
	payload := e.Payload()
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	data, err := json.Marshal(Message{
		OperationID: e.OperationID(),
		Type:        e.Type(),
		Timestamp:   e.Timestamp().UTC(),
		Host:        host,
		Payload:     payload,
		Metadata:    e.Metadata(),
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to encode event").
			WithContext("type", e.Type()).
			Build()
	}
	return data, nil
}

// SubjectFor returns "<base>.<event type in snake case>".
func SubjectFor(base, eventType string) string {
	var b strings.Builder
	for i, r := range eventType {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return base + "." + b.String()
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, eventstore.Event) error { return nil }
func (Noop) Close() error                                    { return nil }

// Memory keeps published messages in order. Used by tests.
type Memory struct {
	Subject string

	mu       sync.Mutex
	messages []Published
	err      error
}

// Published is one message captured by Memory.
type Published struct {
	Subject string
	Message Message
}

// FailWith makes every following Publish return err.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Memory) Publish(_ context.Context, e eventstore.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	data, err := Encode(e, "")
	if err != nil {
		return err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	subject := m.Subject
	if subject == "" {
		subject = "forpost.events"
	}
	m.messages = append(m.messages, Published{Subject: SubjectFor(subject, e.Type()), Message: msg})
	return nil
}

func (m *Memory) Close() error { return nil }

// Messages returns a copy of everything published so far.
func (m *Memory) Messages() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Published(nil), m.messages...)
}
