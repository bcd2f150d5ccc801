package manager

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/forpostctl/internal/artifact"
	"git.home.luguber.info/inful/forpostctl/internal/backup"
	"git.home.luguber.info/inful/forpostctl/internal/eventstore"
	"git.home.luguber.info/inful/forpostctl/internal/logfields"
	"git.home.luguber.info/inful/forpostctl/internal/stream"
	"git.home.luguber.info/inful/forpostctl/internal/version"
)

// Status is the combined read-only view served by `forpostctl status` and the
// daemon's /status endpoint.
type Status struct {
	Version  version.Info           `json:"version"`
	Ready    bool                   `json:"ready"`
	Stream   *stream.Status         `json:"stream,omitempty"`
	Artifact *artifact.Info         `json:"artifact,omitempty"`
	Backups  []backup.Slot          `json:"backups"`
	Audit    eventstore.AuditStatus `json:"audit"`
}

// Status gathers the view. Stream and artifact sections are left out, with a
// warning, when their collaborators fail; config errors are returned.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	ready, err := m.Ready()
	if err != nil {
		return Status{}, err
	}
	slots, err := m.backups.List()
	if err != nil {
		return Status{}, err
	}
	m.metrics.SetConfigBackups(len(slots))

	st := Status{
		Version: version.Get(),
		Ready:   ready,
		Backups: slots,
		Audit:   m.AuditStatus(),
	}
	if m.stream != nil {
		if s, err := m.StreamStatus(ctx); err != nil {
			slog.Warn("Stream status unavailable", logfields.Error(err))
		} else {
			st.Stream = &s
		}
	}
	if m.deployer != nil {
		if info, err := m.ArtifactInfo(ctx); err != nil {
			slog.Warn("Artifact status unavailable", logfields.Error(err))
		} else {
			st.Artifact = &info
		}
	}
	return st, nil
}
