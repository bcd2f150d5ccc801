package eventstore

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"
)

// AuditStatus is the read model derived from the audit trail.
type AuditStatus struct {
	RestartPending bool       `json:"restart_pending"`
	PendingKeys    []string   `json:"pending_keys,omitempty"`
	PendingSince   *time.Time `json:"pending_since,omitempty"`

	LastConfigChange   *time.Time `json:"last_config_change,omitempty"`
	LastArtifact       string     `json:"last_artifact_checksum,omitempty"`
	LastArtifactAt     *time.Time `json:"last_artifact_at,omitempty"`
	LastFailure        string     `json:"last_failure,omitempty"`
	LastFailureAt      *time.Time `json:"last_failure_at,omitempty"`
	LastStreamAction   string     `json:"last_stream_action,omitempty"`
	LastStreamActionAt *time.Time `json:"last_stream_action_at,omitempty"`

	EventCount int `json:"event_count"`
}

// StatusProjection folds audit events into an AuditStatus. A critical config
// change marks a restart as pending until the stream is next started or
// restarted.
type StatusProjection struct {
	mu       sync.RWMutex
	store    Store
	status   AuditStatus
	lastSync time.Time
}

// NewStatusProjection creates a projection backed by store.
func NewStatusProjection(store Store) *StatusProjection {
	return &StatusProjection{store: store}
}

// Rebuild reconstructs the projection from every stored event.
func (p *StatusProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = AuditStatus{}
	for _, event := range events {
		p.applyEventLocked(event)
	}
	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event.
func (p *StatusProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
}

func (p *StatusProjection) applyEventLocked(event Event) {
	s := &p.status
	s.EventCount++
	ts := event.Timestamp()

	switch event.Type() {
	case TypeConfigChanged:
		var data ConfigChangedData
		if err := json.Unmarshal(event.Payload(), &data); err != nil {
			return
		}
		s.LastConfigChange = &ts
		if !data.RestartRequired {
			return
		}
		if !s.RestartPending {
			s.RestartPending = true
			s.PendingSince = &ts
		}
		for _, k := range data.CriticalKeys {
			if !slices.Contains(s.PendingKeys, k) {
				s.PendingKeys = append(s.PendingKeys, k)
			}
		}

	case TypeArtifactUploaded, TypeArtifactRestored:
		var data struct {
			Checksum string `json:"checksum"`
		}
		if err := json.Unmarshal(event.Payload(), &data); err == nil {
			s.LastArtifact = data.Checksum
			s.LastArtifactAt = &ts
		}

	case TypeArtifactReplaceFailed:
		var data struct {
			Operation string `json:"operation"`
			State     string `json:"state"`
		}
		if err := json.Unmarshal(event.Payload(), &data); err == nil {
			s.LastFailure = data.Operation + " failed in " + data.State
			s.LastFailureAt = &ts
		}

	case TypeStreamControl:
		var data struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(event.Payload(), &data); err != nil {
			return
		}
		s.LastStreamAction = data.Action
		s.LastStreamActionAt = &ts
		if data.Action == ActionStart || data.Action == ActionRestart {
			s.RestartPending = false
			s.PendingKeys = nil
			s.PendingSince = nil
		}
	}
}

// Status returns a copy of the current read model.
func (p *StatusProjection) Status() AuditStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := p.status
	out.PendingKeys = slices.Clone(p.status.PendingKeys)
	return out
}

// LastSyncTime returns when the projection was last rebuilt.
func (p *StatusProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}
