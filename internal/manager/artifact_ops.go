package manager

import (
	"context"

	"git.home.luguber.info/inful/forpostctl/internal/artifact"
	"git.home.luguber.info/inful/forpostctl/internal/eventstore"
	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
)

func notConfigured(what string) error {
	return errors.InternalError(what + " is not configured").Build()
}

// UploadArtifact installs payload as the live binary.
func (m *Manager) UploadArtifact(ctx context.Context, payload []byte) (artifact.UploadResult, string, error) {
	if m.deployer == nil {
		return artifact.UploadResult{}, "", notConfigured("artifact deployer")
	}
	var res artifact.UploadResult
	opID, err := m.mutate(ctx, "artifact.upload", func(ctx context.Context, opID string) error {
		var err error
		res, err = m.deployer.Upload(ctx, payload)
		if err != nil {
			m.recordReplaceFailure(ctx, opID, "upload", err)
			return err
		}
		if e, err := eventstore.NewArtifactUploaded(opID, res.Checksum, res.Size, res.Backup); err == nil {
			m.record(ctx, e)
		}
		m.refreshArtifactGauge()
		return nil
	})
	return res, opID, err
}

// RestoreArtifact makes a named backup the live binary.
func (m *Manager) RestoreArtifact(ctx context.Context, name string) (artifact.RestoreResult, string, error) {
	if m.deployer == nil {
		return artifact.RestoreResult{}, "", notConfigured("artifact deployer")
	}
	var res artifact.RestoreResult
	opID, err := m.mutate(ctx, "artifact.restore", func(ctx context.Context, opID string) error {
		var err error
		res, err = m.deployer.Restore(ctx, name)
		if err != nil {
			m.recordReplaceFailure(ctx, opID, "restore", err)
			return err
		}
		if e, err := eventstore.NewArtifactRestored(opID, res.Name, res.Checksum); err == nil {
			m.record(ctx, e)
		}
		return nil
	})
	return res, opID, err
}

// DeleteArtifactBackup removes a named binary backup.
func (m *Manager) DeleteArtifactBackup(ctx context.Context, name string) (string, error) {
	if m.deployer == nil {
		return "", notConfigured("artifact deployer")
	}
	return m.mutate(ctx, "artifact.delete", func(ctx context.Context, opID string) error {
		if err := m.deployer.Delete(ctx, name); err != nil {
			return err
		}
		if e, err := eventstore.NewArtifactDeleted(opID, name); err == nil {
			m.record(ctx, e)
		}
		m.refreshArtifactGauge()
		return nil
	})
}

// ArtifactInfo describes the live binary, its backups and its service.
func (m *Manager) ArtifactInfo(ctx context.Context) (artifact.Info, error) {
	if m.deployer == nil {
		return artifact.Info{}, notConfigured("artifact deployer")
	}
	info, err := m.deployer.Info(ctx)
	if err == nil {
		m.metrics.SetArtifactBackups(len(info.Backups))
	}
	return info, err
}

// recordReplaceFailure audits a replace transaction that failed after it started.
// Failures before the transaction (validation, missing backup) carry no state.
func (m *Manager) recordReplaceFailure(ctx context.Context, opID, operation string, err error) {
	ce, ok := errors.AsClassified(err)
	if !ok {
		return
	}
	state, ok := ce.Context().GetString("txn_state")
	if !ok {
		return
	}
	m.metrics.IncReplaceFailure(state)
	if comp, _ := ce.Context().GetString("compensation"); comp == string(artifact.CompensateStart) {
		compensated, _ := ce.Context().Get("compensated")
		done, _ := compensated.(bool)
		m.metrics.IncCompensation(done)
	}
	if e, eerr := eventstore.NewArtifactReplaceFailed(opID, operation, state, err); eerr == nil {
		m.record(ctx, e)
	}
}

func (m *Manager) refreshArtifactGauge() {
	backups, err := m.deployer.Backups()
	if err != nil {
		return
	}
	m.metrics.SetArtifactBackups(len(backups))
}
