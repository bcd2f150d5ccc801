package commands

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/forpostctl/internal/artifact"
	"git.home.luguber.info/inful/forpostctl/internal/backup"
	"git.home.luguber.info/inful/forpostctl/internal/config"
	"git.home.luguber.info/inful/forpostctl/internal/eventstore"
	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/kvconfig"
	"git.home.luguber.info/inful/forpostctl/internal/logfields"
	"git.home.luguber.info/inful/forpostctl/internal/manager"
	"git.home.luguber.info/inful/forpostctl/internal/metrics"
	"git.home.luguber.info/inful/forpostctl/internal/notify"
	"git.home.luguber.info/inful/forpostctl/internal/privops"
	"git.home.luguber.info/inful/forpostctl/internal/readiness"
	"git.home.luguber.info/inful/forpostctl/internal/storage"
	"git.home.luguber.info/inful/forpostctl/internal/stream"
	"git.home.luguber.info/inful/forpostctl/internal/svcctl"
)

// Env is a manager wired from the configuration, with its metrics registry.
type Env struct {
	Config   *config.Config
	Manager  *manager.Manager
	Registry *prometheus.Registry
	Metrics  *metrics.PrometheusRecorder
}

// Open builds the production collaborators described by cfg.
func Open(ctx context.Context, cfg *config.Config) (*Env, error) {
	mode, err := cfg.ArtifactMode()
	if err != nil {
		return nil, err
	}

	fs := storage.NewOS()
	ops := privops.NewExec(cfg.Service.UseSudo)
	svc := svcctl.NewSystemctl(cfg.Service.SystemctlPath, cfg.Service.UseSudo)
	identity, elevated := privops.DetectIdentity(privops.Identity{User: cfg.Identity.User, Group: cfg.Identity.Group})
	owner := &privops.Reassigner{Ops: ops, Identity: identity, Elevated: elevated}
	gate := readiness.NewGate(cfg.Readiness.Key, cfg.Readiness.Placeholder)

	if err := fs.MkdirAll(cfg.Paths.StateDir, 0o750); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to create state directory").
			WithContext("path", cfg.Paths.StateDir).
			Build()
	}
	store, err := eventstore.NewSQLiteStore(cfg.AuditDBPath())
	if err != nil {
		return nil, err
	}

	reg := metrics.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)

	deployer := artifact.NewDeployer(fs, ops, svc, artifact.Config{
		Path:       cfg.Artifact.Path,
		BackupDir:  cfg.Artifact.BackupDir,
		StagingDir: cfg.Artifact.StagingDir,
		Unit:       cfg.ArtifactUnit(),
		Fallback:   privops.Ownership{Owner: cfg.Artifact.Owner, Group: cfg.Artifact.Group, Mode: mode},
	})
	settings := &kvconfig.Loader{FS: fs, Path: cfg.Paths.ConfigFile, DefaultsPath: cfg.Paths.DefaultsFile}
	ctrl := stream.New(svc, settings, gate, stream.Units{
		Stream:      cfg.Service.StreamUnit,
		UDPProxy:    cfg.Service.UDPProxyUnit,
		AutoRestart: cfg.Service.AutoRestartUnit,
	})

	mgr, err := manager.New(ctx, manager.Options{
		FS:           fs,
		ConfigPath:   cfg.Paths.ConfigFile,
		DefaultsPath: cfg.Paths.DefaultsFile,
		Owner:        owner,
		Backup: backup.Options{
			Depth:                 cfg.Backup.Depth,
			SnapshotBeforeRestore: cfg.Backup.SnapshotBeforeRestore,
		},
		Gate:               gate,
		CriticalKeys:       cfg.Stream.CriticalKeys,
		DynamicOverlayPath: cfg.Paths.DynamicOverlayFile,
		ScanningStatePath:  cfg.Paths.ScanningStateFile,
		Deployer:           deployer,
		Stream:             ctrl,
		Store:              store,
		Publisher:          openPublisher(cfg.Notify),
		Metrics:            rec,
		Locker:             manager.NewFileLock(cfg.LockPath()),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &Env{Config: cfg, Manager: mgr, Registry: reg, Metrics: rec}, nil
}

// Close releases the manager's resources.
func (e *Env) Close() error {
	return e.Manager.Close()
}

// openPublisher connects to NATS when configured. A broker that cannot be
// reached disables notifications for this process.
func openPublisher(cfg config.NotifyConfig) notify.Publisher {
	if cfg.NATSURL == "" {
		return notify.Noop{}
	}
	pub, err := notify.NewNATSPublisher(notify.NATSOptions{
		URL:       cfg.NATSURL,
		Subject:   cfg.Subject,
		JetStream: cfg.JetStream,
	})
	if err != nil {
		slog.Warn("Event notifications disabled", logfields.Error(err))
		return notify.Noop{}
	}
	return pub
}

// withManager loads the configuration, opens the environment and runs fn.
func withManager(g *Global, root *CLI, fn func(ctx context.Context, env *Env) error) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	env, err := Open(g.Ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			slog.Warn("Failed to close manager", logfields.Error(err))
		}
	}()
	return fn(g.Ctx, env)
}
