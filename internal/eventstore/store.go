// Package eventstore keeps an append-only audit trail of lifecycle operations
// (config saves and restores, artifact swaps, stream control) in SQLite.
package eventstore

import (
	"context"
	"time"
)

// Store defines the interface for persisting and retrieving events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, operationID, eventType string, payload []byte, metadata map[string]string) error

	// GetByOperationID retrieves all events recorded for one operation.
	GetByOperationID(ctx context.Context, operationID string) ([]Event, error)

	// GetRange retrieves events within a time range.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// Recent returns the newest events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)

	// Close closes the store and releases resources.
	Close() error
}

// AppendEvent stores an already constructed event.
func AppendEvent(ctx context.Context, s Store, e Event) error {
	return s.Append(ctx, e.OperationID(), e.Type(), e.Payload(), e.Metadata())
}
