package eventstore

import (
	"testing"
)

func mustApply(t *testing.T, p *StatusProjection, e Event, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	p.Apply(e)
}

func TestStatusProjectionRestartPending(t *testing.T) {
	p := NewStatusProjection(nil)

	e1, err := NewConfigChanged("op-1", ConfigChangedData{Source: SourceSave, RestartRequired: false})
	mustApply(t, p, e1, err)
	if p.Status().RestartPending {
		t.Fatal("non-critical change must not require a restart")
	}

	e2, err := NewConfigChanged("op-2", ConfigChangedData{Source: SourceSave, RestartRequired: true, CriticalKeys: []string{"RTMP_URL"}})
	mustApply(t, p, e2, err)
	e3, err := NewConfigChanged("op-3", ConfigChangedData{Source: SourceRaw, RestartRequired: true, CriticalKeys: []string{"RTMP_URL", "VIDEO_BITRATE"}})
	mustApply(t, p, e3, err)

	status := p.Status()
	if !status.RestartPending {
		t.Fatal("expected restart to be pending")
	}
	if len(status.PendingKeys) != 2 {
		t.Errorf("expected 2 pending keys, got %v", status.PendingKeys)
	}
	if status.PendingSince == nil || !status.PendingSince.Equal(e2.Timestamp()) {
		t.Errorf("pending since should be the first critical change")
	}

	e4, err := NewStreamControl("op-4", ActionStop, "forpost-stream")
	mustApply(t, p, e4, err)
	if !p.Status().RestartPending {
		t.Error("stop must not clear a pending restart")
	}

	e5, err := NewStreamControl("op-5", ActionRestart, "forpost-stream")
	mustApply(t, p, e5, err)
	status = p.Status()
	if status.RestartPending || status.PendingKeys != nil {
		t.Errorf("restart should clear pending state, got %+v", status)
	}
	if status.EventCount != 5 {
		t.Errorf("expected 5 events, got %d", status.EventCount)
	}
}

func TestStatusProjectionRebuild(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	up, err := NewArtifactUploaded("op-1", "deadbeef", 10, "")
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	failed, err := NewArtifactReplaceFailed("op-2", "restore", "starting", nil)
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	for _, e := range []Event{up, failed} {
		if err := AppendEvent(t.Context(), store, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	p := NewStatusProjection(store)
	if err := p.Rebuild(t.Context()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	status := p.Status()
	if status.LastArtifact != "deadbeef" {
		t.Errorf("expected last artifact deadbeef, got %q", status.LastArtifact)
	}
	if status.LastFailure != "restore failed in starting" {
		t.Errorf("unexpected last failure %q", status.LastFailure)
	}
	if p.LastSyncTime().IsZero() {
		t.Error("expected last sync time to be set")
	}
}
