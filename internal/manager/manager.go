// Package manager is the single entry point for operator actions. It
// serializes mutations with a cross-process lock, routes them through the
// lifecycle packages and records each outcome in the audit trail, the metrics
// and the event publisher.
package manager

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/forpostctl/internal/artifact"
	"git.home.luguber.info/inful/forpostctl/internal/backup"
	"git.home.luguber.info/inful/forpostctl/internal/eventstore"
	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/kvconfig"
	"git.home.luguber.info/inful/forpostctl/internal/logfields"
	"git.home.luguber.info/inful/forpostctl/internal/metrics"
	"git.home.luguber.info/inful/forpostctl/internal/notify"
	"git.home.luguber.info/inful/forpostctl/internal/readiness"
	"git.home.luguber.info/inful/forpostctl/internal/storage"
	"git.home.luguber.info/inful/forpostctl/internal/stream"
)

// Options wires a Manager. FS, ConfigPath and DefaultsPath are required.
type Options struct {
	FS           *storage.FS
	ConfigPath   string
	DefaultsPath string
	Owner        kvconfig.Reassigner
	Backup       backup.Options
	Gate         readiness.Gate
	CriticalKeys []string

	// DynamicOverlayPath is the text file the encoder re-reads for the live
	// overlay; ScanningStatePath is written by the frequency scanner. Empty
	// disables the dynamic overlay.
	DynamicOverlayPath string
	ScanningStatePath  string

	// Deployer and Stream are optional; operations on them fail when unset.
	Deployer *artifact.Deployer
	Stream   *stream.Controller

	// Store is the audit trail. Nil disables auditing.
	Store     eventstore.Store
	Publisher notify.Publisher
	Metrics   metrics.Recorder
	Locker    Locker
	NewID     func() string
}

// Manager coordinates config, backups, the artifact and the stream.
type Manager struct {
	fs         *storage.FS
	loader     *kvconfig.Loader
	writer     *kvconfig.Writer
	backups    *backup.Store
	gate       readiness.Gate
	critical   []string
	overlay    overlayPaths
	deployer   *artifact.Deployer
	stream     *stream.Controller
	store      eventstore.Store
	projection *eventstore.StatusProjection
	publisher  notify.Publisher
	metrics    metrics.Recorder
	locker     Locker
	newID      func() string
}

// New builds a Manager and replays the audit trail into its status projection.
func New(ctx context.Context, opts Options) (*Manager, error) {
	if opts.FS == nil || opts.ConfigPath == "" {
		return nil, errors.InternalError("manager requires a filesystem and a config path").Build()
	}
	m := &Manager{
		fs:     opts.FS,
		loader: &kvconfig.Loader{FS: opts.FS, Path: opts.ConfigPath, DefaultsPath: opts.DefaultsPath},
		writer: &kvconfig.Writer{
			FS:           opts.FS,
			Path:         opts.ConfigPath,
			DefaultsPath: opts.DefaultsPath,
			Owner:        opts.Owner,
		},
		backups:   backup.NewStore(opts.FS, opts.ConfigPath, opts.Owner, opts.Backup),
		gate:      opts.Gate,
		critical:  opts.CriticalKeys,
		overlay:   overlayPaths{text: opts.DynamicOverlayPath, scanning: opts.ScanningStatePath},
		deployer:  opts.Deployer,
		stream:    opts.Stream,
		store:     opts.Store,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		locker:    opts.Locker,
		newID:     opts.NewID,
	}
	if m.gate.Key == "" {
		m.gate = readiness.NewGate("", "")
	}
	if m.publisher == nil {
		m.publisher = notify.Noop{}
	}
	if m.metrics == nil {
		m.metrics = metrics.NoopRecorder{}
	}
	if m.locker == nil {
		m.locker = NopLocker{}
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}

	if m.store != nil {
		m.projection = eventstore.NewStatusProjection(m.store)
		if err := m.projection.Rebuild(ctx); err != nil {
			return nil, err
		}
		m.metrics.SetRestartPending(m.projection.Status().RestartPending)
	}
	return m, nil
}

// Close releases the audit store and the publisher.
func (m *Manager) Close() error {
	pubErr := m.publisher.Close()
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return err
		}
	}
	return pubErr
}

// mutate runs fn under the lock with a fresh operation id and records timing
// and outcome.
func (m *Manager) mutate(ctx context.Context, op string, fn func(ctx context.Context, opID string) error) (string, error) {
	opID := m.newID()
	start := time.Now()

	unlock, err := m.locker.Lock(ctx)
	if err == nil {
		err = fn(ctx, opID)
		unlock()
	}
	m.finish(op, opID, start, err)
	return opID, err
}

func (m *Manager) finish(op, opID string, start time.Time, err error) {
	elapsed := time.Since(start)
	m.metrics.ObserveOperationDuration(op, elapsed)

	attrs := []any{
		logfields.Operation(op),
		logfields.OperationID(opID),
		logfields.DurationMS(float64(elapsed.Microseconds()) / 1000),
	}
	switch {
	case err == nil:
		m.metrics.IncOperationResult(op, metrics.ResultSuccess)
		slog.Info("Operation completed", attrs...)
	case rejected(err):
		m.metrics.IncOperationResult(op, metrics.ResultRejected)
		slog.Warn("Operation rejected", append(attrs, logfields.Error(err))...)
	default:
		m.metrics.IncOperationResult(op, metrics.ResultFailed)
		slog.Error("Operation failed", append(attrs, logfields.Error(err))...)
	}
}

func rejected(err error) bool {
	return errors.IsInvalidInput(err) || errors.IsNotReady(err) || errors.IsNotFound(err)
}

// record appends e to the audit trail, updates the projection and publishes e.
// Failures here never undo or fail the operation that already happened.
func (m *Manager) record(ctx context.Context, e eventstore.Event) {
	if m.store != nil {
		if err := eventstore.AppendEvent(ctx, m.store, e); err != nil {
			slog.Error("Failed to append audit event",
				logfields.OperationID(e.OperationID()),
				slog.String("type", e.Type()),
				logfields.Error(err))
		}
		m.projection.Apply(e)
		m.metrics.SetRestartPending(m.projection.Status().RestartPending)
	}
	if err := m.publisher.Publish(ctx, e); err != nil {
		slog.Warn("Failed to publish event",
			logfields.OperationID(e.OperationID()),
			slog.String("type", e.Type()),
			logfields.Error(err))
	}
}

// AuditStatus returns the read model of the audit trail.
func (m *Manager) AuditStatus() eventstore.AuditStatus {
	if m.projection == nil {
		return eventstore.AuditStatus{}
	}
	return m.projection.Status()
}

// History returns the newest audit events, newest first.
func (m *Manager) History(ctx context.Context, limit int) ([]eventstore.Event, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.Recent(ctx, limit)
}

// Operation returns every event recorded for one operation.
func (m *Manager) Operation(ctx context.Context, opID string) ([]eventstore.Event, error) {
	if m.store == nil {
		return nil, errors.NotFoundError("audit trail is disabled").Build()
	}
	events, err := m.store.GetByOperationID(ctx, opID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, errors.NotFoundError("no events for operation").
			WithContext("operation_id", opID).
			Build()
	}
	return events, nil
}
