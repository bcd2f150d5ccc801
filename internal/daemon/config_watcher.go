package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/kvconfig"
	"git.home.luguber.info/inful/forpostctl/internal/logfields"
	"git.home.luguber.info/inful/forpostctl/internal/manager"
	"git.home.luguber.info/inful/forpostctl/internal/metrics"
)

// Reconciler audits changes found in the persisted config.
type Reconciler interface {
	PersistedValues() (*kvconfig.Set, error)
	RecordExternalChange(ctx context.Context, before *kvconfig.Set) (manager.ChangeReport, bool, error)
}

// ConfigWatcher watches the persisted stream config and audits every settled change.
type ConfigWatcher struct {
	configPath   string
	reconciler   Reconciler
	metrics      metrics.Recorder
	debounceTime time.Duration
	// OnChange runs after a change was reconciled, recorded or not.
	OnChange func(ctx context.Context)

	watcher    *fsnotify.Watcher
	mu         sync.Mutex
	baseline   *kvconfig.Set
	stopChan   chan struct{}
	stopOnce   sync.Once
	reloadChan chan struct{}
	wg         sync.WaitGroup
}

// NewConfigWatcher creates a watcher for configPath.
func NewConfigWatcher(configPath string, r Reconciler, rec metrics.Recorder, debounce time.Duration) (*ConfigWatcher, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryDaemon, "failed to resolve config path").
			WithContext("path", configPath).
			Build()
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &ConfigWatcher{
		configPath:   absPath,
		reconciler:   r,
		metrics:      rec,
		debounceTime: debounce,
		stopChan:     make(chan struct{}),
		reloadChan:   make(chan struct{}, 1),
	}, nil
}

// Start captures the current values as the baseline and begins watching.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	baseline, err := cw.reconciler.PersistedValues()
	if err != nil {
		return err
	}
	cw.mu.Lock()
	cw.baseline = baseline
	cw.mu.Unlock()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapError(err, errors.CategoryDaemon, "failed to create file watcher").Build()
	}
	// The directory is watched because the config is replaced by rename.
	configDir := filepath.Dir(cw.configPath)
	if err := w.Add(configDir); err != nil {
		_ = w.Close()
		return errors.WrapError(err, errors.CategoryDaemon, "failed to watch config directory").
			WithContext("path", configDir).
			Build()
	}
	cw.watcher = w

	slog.Info("Starting configuration watcher", logfields.Path(cw.configPath))
	cw.wg.Add(2)
	go cw.watchLoop(ctx)
	go cw.reloadLoop(ctx)
	return nil
}

// Stop ends watching and waits for the loops to exit. Only the first call does
// any work; concurrent callers wait for it and return nil.
func (cw *ConfigWatcher) Stop() error {
	var err error
	cw.stopOnce.Do(func() {
		close(cw.stopChan)
		if cw.watcher != nil {
			err = cw.watcher.Close()
		}
		cw.wg.Wait()
	})
	return err
}

func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	defer cw.wg.Done()
	configFile := filepath.Base(cw.configPath)

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopChan:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFile {
				continue
			}
			kind := eventKind(event.Op)
			if kind == "" {
				continue
			}
			cw.metrics.IncConfigFileEvent(kind)
			slog.Debug("Config file event", logfields.Path(event.Name), slog.String("op", kind))
			cw.triggerReload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Config watcher error", logfields.Error(err))
		}
	}
}

func eventKind(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Remove):
		return "remove"
	default:
		return ""
	}
}

func (cw *ConfigWatcher) reloadLoop(ctx context.Context) {
	defer cw.wg.Done()
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return
		case <-cw.stopChan:
			stopTimer(timer)
			return
		case <-cw.reloadChan:
			stopTimer(timer)
			timer = time.NewTimer(cw.debounceTime)
			fire = timer.C
		case <-fire:
			fire = nil
			if err := cw.Reconcile(ctx); err != nil {
				slog.Error("Failed to audit config change", logfields.Error(err))
			}
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (cw *ConfigWatcher) triggerReload() {
	select {
	case cw.reloadChan <- struct{}{}:
	default:
	}
}

// Reconcile audits the difference between the baseline and the file, then
// moves the baseline forward.
func (cw *ConfigWatcher) Reconcile(ctx context.Context) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	rep, recorded, err := cw.reconciler.RecordExternalChange(ctx, cw.baseline)
	if err != nil {
		return err
	}
	if recorded {
		slog.Info("External config change audited",
			logfields.OperationID(rep.OperationID),
			slog.Any("keys", rep.Changes.Keys()),
			slog.Bool("restart_required", rep.RestartRequired))
	}
	current, err := cw.reconciler.PersistedValues()
	if err != nil {
		return err
	}
	cw.baseline = current

	if cw.OnChange != nil {
		cw.OnChange(ctx)
	}
	return nil
}
