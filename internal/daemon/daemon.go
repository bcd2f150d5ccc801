package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/logfields"
	"git.home.luguber.info/inful/forpostctl/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// Manager is everything the daemon needs from the lifecycle manager.
type Manager interface {
	Reconciler
	Restarter
	StatusSource
}

// Options configures a Daemon.
type Options struct {
	ListenAddr string
	ConfigPath string
	Debounce   time.Duration
	// Registry backs /metrics; nil disables the endpoint.
	Registry *prometheus.Registry
	Metrics  metrics.Recorder
}

// Daemon ties the config watcher, the auto-restart scheduler and the HTTP
// endpoints to one manager.
type Daemon struct {
	mgr       Manager
	opts      Options
	health    *Health
	watcher   *ConfigWatcher
	scheduler *Scheduler
	http      *HTTPServer
}

// New wires the daemon components without starting them.
func New(mgr Manager, opts Options) (*Daemon, error) {
	if mgr == nil {
		return nil, errors.DaemonError("daemon requires a manager").Build()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopRecorder{}
	}
	watcher, err := NewConfigWatcher(opts.ConfigPath, mgr, opts.Metrics, opts.Debounce)
	if err != nil {
		return nil, err
	}
	sched, err := NewScheduler(mgr)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		mgr:       mgr,
		opts:      opts,
		health:    NewHealth(),
		watcher:   watcher,
		scheduler: sched,
	}
	d.health.Register("config", func() error {
		_, err := mgr.PersistedValues()
		return err
	})
	d.http = NewHTTPServer(opts.ListenAddr, mgr, opts.Registry, d.health)
	watcher.OnChange = d.syncSchedule
	return d, nil
}

// Health exposes the daemon's health aggregator.
func (d *Daemon) Health() *Health { return d.health }

// Addr returns the HTTP listen address.
func (d *Daemon) Addr() string { return d.http.Addr() }

// Run starts every component and blocks until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return d.Stop(stopCtx)
}

// Start brings the components up in dependency order.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("Starting forpostctl daemon",
		logfields.Path(d.opts.ConfigPath),
		slog.String("listen_addr", d.opts.ListenAddr))

	if err := d.watcher.Start(ctx); err != nil {
		return err
	}
	d.scheduler.Start()
	d.syncSchedule(ctx)
	if err := d.http.Start(); err != nil {
		_ = d.watcher.Stop()
		_ = d.scheduler.Stop()
		return err
	}
	d.health.SetRunning(true)
	return nil
}

// Stop shuts the components down in reverse order and returns the first error.
func (d *Daemon) Stop(ctx context.Context) error {
	slog.Info("Stopping forpostctl daemon")
	d.health.SetRunning(false)

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	keep(d.http.Stop(ctx))
	keep(d.scheduler.Stop())
	keep(d.watcher.Stop())
	return first
}

func (d *Daemon) syncSchedule(ctx context.Context) {
	if err := d.scheduler.Sync(ctx); err != nil {
		slog.Warn("Failed to sync auto-restart schedule", logfields.Error(err))
	}
}
