package manager

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"git.home.luguber.info/inful/forpostctl/internal/artifact"
	"git.home.luguber.info/inful/forpostctl/internal/backup"
	"git.home.luguber.info/inful/forpostctl/internal/eventstore"
	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/kvconfig"
)

// Keys written by the installer.
const (
	KeyEndpoint    = "RTMP_URL"
	KeyOverlayText = "OVERLAY_TEXT"
)

// contentSumKey is the audit metadata key holding the sha256 of the config
// text an event left behind.
const contentSumKey = "content_sha256"

// ChangeReport is the outcome of a config mutation.
type ChangeReport struct {
	OperationID     string             `json:"operation_id"`
	Changes         kvconfig.ChangeSet `json:"changes"`
	CriticalKeys    []string           `json:"critical_keys,omitempty"`
	RestartRequired bool               `json:"restart_required"`
	Slot            int                `json:"slot,omitempty"`
}

// Config returns the effective config: persisted values layered over defaults.
func (m *Manager) Config() (*kvconfig.Set, error) {
	return m.loader.Load()
}

// Raw returns the persisted config text.
func (m *Manager) Raw() (string, error) {
	return m.loader.Raw()
}

// Ready reports whether the stream endpoint is configured.
func (m *Manager) Ready() (bool, error) {
	set, err := m.loader.Load()
	if err != nil {
		return false, err
	}
	return m.gate.IsReady(set), nil
}

// Save applies structured updates to the persisted config.
func (m *Manager) Save(ctx context.Context, updates kvconfig.Updates) (ChangeReport, error) {
	return m.saveAs(ctx, "config.save", eventstore.SourceSave, updates)
}

// Install is the first-run save of the stream endpoint and overlay text. A
// blank endpoint is rejected by the readiness check in checkUpdates.
func (m *Manager) Install(ctx context.Context, endpoint, overlay string) (ChangeReport, error) {
	endpoint = strings.TrimSpace(endpoint)
	return m.saveAs(ctx, "config.install", eventstore.SourceInstall, kvconfig.Updates{
		{Key: KeyEndpoint, Value: endpoint},
		{Key: KeyOverlayText, Value: overlay},
	})
}

func (m *Manager) saveAs(ctx context.Context, op, source string, updates kvconfig.Updates) (ChangeReport, error) {
	var rep ChangeReport
	opID, err := m.mutate(ctx, op, func(ctx context.Context, opID string) error {
		if err := m.checkUpdates(updates); err != nil {
			return err
		}
		changes, err := m.writer.Apply(ctx, updates)
		if err != nil {
			return err
		}
		rep = m.report(changes, 0)
		m.recordConfigChange(ctx, opID, source, rep)
		return nil
	})
	rep.OperationID = opID
	return rep, err
}

// checkUpdates rejects keys and values that would not survive a round trip
// through the file, and an endpoint that would leave the appliance unready.
func (m *Manager) checkUpdates(updates kvconfig.Updates) error {
	for _, u := range updates {
		if u.Key == "" || strings.ContainsAny(u.Key, "=#\"' \t\r\n") {
			return errors.ValidationError(fmt.Sprintf("invalid config key %q", u.Key)).
				WithContext("key", u.Key).
				Build()
		}
		if strings.ContainsAny(u.Value, "\r\n#") {
			return errors.ValidationError("config value must be a single line without '#'").
				WithContext("key", u.Key).
				Build()
		}
	}
	if v, ok := updates.Lookup(m.gate.Key); ok {
		probe := kvconfig.NewSet()
		probe.Put(m.gate.Key, v)
		if !m.gate.IsReady(probe) {
			return errors.ValidationError("stream endpoint must be set to a real value").
				WithContext("key", m.gate.Key).
				Build()
		}
	}
	return nil
}

// SaveRaw replaces the persisted text, keeping the previous text in backup slot 1.
func (m *Manager) SaveRaw(ctx context.Context, content string) (ChangeReport, error) {
	var rep ChangeReport
	opID, err := m.mutate(ctx, "config.save_raw", func(ctx context.Context, opID string) error {
		before, err := m.persistedValues()
		if err != nil {
			return err
		}
		if err := m.backups.SaveRaw(ctx, content); err != nil {
			return err
		}
		rep = m.report(kvconfig.Diff(before, kvconfig.ParseValues(content)), 0)
		m.recordConfigChange(ctx, opID, eventstore.SourceRaw, rep)
		m.refreshBackupGauge()
		return nil
	})
	rep.OperationID = opID
	return rep, err
}

// Backups lists the occupied backup slots, newest first.
func (m *Manager) Backups() ([]backup.Slot, error) {
	return m.backups.List()
}

// Backup returns one slot with its content.
func (m *Manager) Backup(slot int) (backup.Snapshot, error) {
	return m.backups.Get(slot)
}

// BackupDepth is the number of slots in the ring.
func (m *Manager) BackupDepth() int { return m.backups.Depth() }

// RestoreBackup makes a backup slot the persisted config.
func (m *Manager) RestoreBackup(ctx context.Context, slot int) (ChangeReport, error) {
	var rep ChangeReport
	opID, err := m.mutate(ctx, "config.restore", func(ctx context.Context, opID string) error {
		before, err := m.persistedValues()
		if err != nil {
			return err
		}
		snap, err := m.backups.Restore(ctx, slot)
		if err != nil {
			return err
		}
		rep = m.report(kvconfig.Diff(before, kvconfig.ParseValues(snap.Content)), slot)
		m.recordConfigChange(ctx, opID, eventstore.SourceRestore, rep)
		m.refreshBackupGauge()
		return nil
	})
	rep.OperationID = opID
	return rep, err
}

// DeleteBackup empties a backup slot.
func (m *Manager) DeleteBackup(ctx context.Context, slot int) (string, error) {
	return m.mutate(ctx, "config.backup_delete", func(ctx context.Context, opID string) error {
		if err := m.backups.Delete(slot); err != nil {
			return err
		}
		if e, err := eventstore.NewConfigBackupDeleted(opID, slot); err == nil {
			m.record(ctx, e)
		}
		m.refreshBackupGauge()
		return nil
	})
}

// RecordExternalChange audits an edit made outside forpostctl. before is the
// caller's last known view of the persisted values. It reports false when the
// current text is the one the latest audited change left behind.
func (m *Manager) RecordExternalChange(ctx context.Context, before *kvconfig.Set) (ChangeReport, bool, error) {
	var (
		rep      ChangeReport
		recorded bool
	)
	opID, err := m.mutate(ctx, "config.external", func(ctx context.Context, opID string) error {
		raw, err := m.rawOrEmpty()
		if err != nil {
			return err
		}
		if sum, ok := m.lastAuditedSum(ctx); ok && sum == artifact.Checksum([]byte(raw)) {
			return nil
		}
		rep = m.report(kvconfig.Diff(before, kvconfig.ParseValues(raw)), 0)
		if len(rep.Changes) == 0 {
			return nil
		}
		m.recordConfigChange(ctx, opID, eventstore.SourceExternal, rep)
		recorded = true
		return nil
	})
	rep.OperationID = opID
	return rep, recorded, err
}

// PersistedValues returns the values currently in the persisted file, without
// defaults. A missing file yields an empty set.
func (m *Manager) PersistedValues() (*kvconfig.Set, error) {
	return m.persistedValues()
}

func (m *Manager) persistedValues() (*kvconfig.Set, error) {
	raw, err := m.rawOrEmpty()
	if err != nil {
		return nil, err
	}
	return kvconfig.ParseValues(raw), nil
}

func (m *Manager) rawOrEmpty() (string, error) {
	raw, err := m.loader.Raw()
	if errors.IsNotFound(err) {
		return "", nil
	}
	return raw, err
}

func (m *Manager) report(changes kvconfig.ChangeSet, slot int) ChangeReport {
	rep := ChangeReport{Changes: changes, Slot: slot}
	for _, ch := range changes {
		if slices.Contains(m.critical, ch.Key) {
			rep.CriticalKeys = append(rep.CriticalKeys, ch.Key)
		}
	}
	rep.RestartRequired = len(rep.CriticalKeys) > 0
	return rep
}

func (m *Manager) recordConfigChange(ctx context.Context, opID, source string, rep ChangeReport) {
	data := eventstore.ConfigChangedData{
		Source:          source,
		CriticalKeys:    rep.CriticalKeys,
		RestartRequired: rep.RestartRequired,
		Slot:            rep.Slot,
	}
	for _, ch := range rep.Changes {
		data.Changes = append(data.Changes, eventstore.KeyChange{Key: ch.Key, Old: ch.Old, New: ch.New, Existed: ch.Existed})
	}
	e, err := eventstore.NewConfigChanged(opID, data)
	if err != nil {
		return
	}
	if raw, err := m.rawOrEmpty(); err == nil {
		e.EventMetadata = map[string]string{contentSumKey: artifact.Checksum([]byte(raw))}
	}
	m.record(ctx, e)
}

// lastAuditedSum returns the content checksum of the newest ConfigChanged event.
func (m *Manager) lastAuditedSum(ctx context.Context) (string, bool) {
	if m.store == nil {
		return "", false
	}
	events, err := m.store.Recent(ctx, 100)
	if err != nil {
		return "", false
	}
	for _, e := range events {
		if e.Type() != eventstore.TypeConfigChanged {
			continue
		}
		sum, ok := e.Metadata()[contentSumKey]
		return sum, ok
	}
	return "", false
}

func (m *Manager) refreshBackupGauge() {
	slots, err := m.backups.List()
	if err != nil {
		return
	}
	m.metrics.SetConfigBackups(len(slots))
}
