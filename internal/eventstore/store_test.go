package eventstore

import (
	"bytes"
	"testing"
	"time"
)

const testOperationID = "op-123"

func TestEventStoreAppendAndRetrieve(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	payload := []byte(`{"test": "data"}`)
	metadata := map[string]string{"key": "value"}

	if err := store.Append(ctx, testOperationID, "TestEvent", payload, metadata); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	events, err := store.GetByOperationID(ctx, testOperationID)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	event := events[0]
	if event.OperationID() != testOperationID {
		t.Errorf("expected operation_id %s, got %s", testOperationID, event.OperationID())
	}
	if event.Type() != "TestEvent" {
		t.Errorf("expected event_type TestEvent, got %s", event.Type())
	}
	if !bytes.Equal(event.Payload(), payload) {
		t.Errorf("expected payload %s, got %s", payload, event.Payload())
	}
	if event.Metadata()["key"] != "value" {
		t.Errorf("expected metadata key=value, got %v", event.Metadata())
	}
}

func TestEventStoreGetRange(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	before := time.Now().Add(-time.Second)
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Append(ctx, id, "TestEvent", nil, nil); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := store.GetRange(ctx, before, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("get range: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	events, err = store.GetRange(ctx, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("get range: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events in future range, got %d", len(events))
	}
}

func TestEventStoreRecentNewestFirst(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	for _, id := range []string{"first", "second", "third"} {
		if err := store.Append(ctx, id, "TestEvent", nil, nil); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].OperationID() != "third" || events[1].OperationID() != "second" {
		t.Errorf("unexpected order: %s, %s", events[0].OperationID(), events[1].OperationID())
	}
}

func TestEventStorePersistsToFile(t *testing.T) {
	path := t.TempDir() + "/audit.db"
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Append(t.Context(), testOperationID, "TestEvent", nil, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = store.Close()

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	events, err := reopened.GetByOperationID(t.Context(), testOperationID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 persisted event, got %d", len(events))
	}
}

func TestRecordsDropsInvalidPayload(t *testing.T) {
	events := []Event{
		&BaseEvent{EventID: 1, EventOperationID: "op-a", EventType: "A", EventPayload: []byte(`{"x":1}`)},
		&BaseEvent{EventID: 2, EventOperationID: "op-b", EventType: "B", EventPayload: []byte("not json")},
	}
	records := Records(events)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if string(records[0].Payload) != `{"x":1}` {
		t.Errorf("unexpected payload %s", records[0].Payload)
	}
	if records[1].Payload != nil {
		t.Errorf("expected invalid payload to be dropped, got %s", records[1].Payload)
	}
	if records[1].OperationID != "op-b" || records[1].ID != 2 {
		t.Errorf("unexpected record %+v", records[1])
	}
}
