package eventstore

import (
	"encoding/json"
	"time"
)

// Event is one audit record.
type Event interface {
	// ID returns the store-assigned identifier.
	ID() int64
	// OperationID groups the events of one operator action.
	OperationID() string
	Type() string
	Timestamp() time.Time
	// Payload returns the event data as JSON.
	Payload() []byte
	Metadata() map[string]string
}

// BaseEvent provides a default implementation of Event.
type BaseEvent struct {
	EventID          int64
	EventOperationID string
	EventType        string
	EventTimestamp   time.Time
	EventPayload     []byte
	EventMetadata    map[string]string
}

func (e *BaseEvent) ID() int64                   { return e.EventID }
func (e *BaseEvent) OperationID() string         { return e.EventOperationID }
func (e *BaseEvent) Type() string                { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time        { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte             { return e.EventPayload }
func (e *BaseEvent) Metadata() map[string]string { return e.EventMetadata }

// Record is the JSON view of an Event.
type Record struct {
	ID          int64             `json:"id"`
	OperationID string            `json:"operation_id"`
	Type        string            `json:"type"`
	Timestamp   time.Time         `json:"timestamp"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Records converts events for display.
func Records(events []Event) []Record {
	out := make([]Record, 0, len(events))
	for _, e := range events {
		var payload json.RawMessage
		if json.Valid(e.Payload()) {
			payload = e.Payload()
		}
		out = append(out, Record{
			ID:          e.ID(),
			OperationID: e.OperationID(),
			Type:        e.Type(),
			Timestamp:   e.Timestamp(),
			Payload:     payload,
			Metadata:    e.Metadata(),
		})
	}
	return out
}
