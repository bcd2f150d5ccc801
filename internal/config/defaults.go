package config

import (
	"fmt"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// DefaultCriticalKeys are the stream keys whose change needs an encoder restart.
var DefaultCriticalKeys = []string{
	"RTMP_URL",
	"VIDEO_DEVICE",
	"VIDEO_RESOLUTION",
	"VIDEO_FRAMERATE",
	"VIDEO_BITRATE",
	"AUDIO_DEVICE",
	"USE_UDP_PROXY",
}

// PathsDefaultApplier handles file locations.
type PathsDefaultApplier struct{}

func (p *PathsDefaultApplier) Domain() string { return "paths" }

func (p *PathsDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Paths.ConfigFile == "" {
		cfg.Paths.ConfigFile = "/opt/forpost/config/stream.conf"
	}
	if cfg.Paths.DefaultsFile == "" {
		cfg.Paths.DefaultsFile = "/opt/forpost/config/stream.conf.template"
	}
	if cfg.Paths.StateDir == "" {
		cfg.Paths.StateDir = "/var/lib/forpostctl"
	}
	if cfg.Paths.DynamicOverlayFile == "" {
		cfg.Paths.DynamicOverlayFile = "/tmp/forpost_dynamic_overlay.txt"
	}
	if cfg.Paths.ScanningStateFile == "" {
		cfg.Paths.ScanningStateFile = "/tmp/forpost_scanning_state.txt"
	}
	return nil
}

// BackupDefaultApplier handles the config backup rotation.
type BackupDefaultApplier struct{}

func (b *BackupDefaultApplier) Domain() string { return "backup" }

func (b *BackupDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Backup.Depth == 0 {
		cfg.Backup.Depth = 3
	}
	return nil
}

// ArtifactDefaultApplier handles the encoder binary.
type ArtifactDefaultApplier struct{}

func (a *ArtifactDefaultApplier) Domain() string { return "artifact" }

func (a *ArtifactDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Artifact.Path == "" {
		cfg.Artifact.Path = "/usr/local/bin/forpost-encoder"
	}
	if cfg.Artifact.BackupDir == "" {
		cfg.Artifact.BackupDir = "/var/lib/forpostctl/binaries"
	}
	if cfg.Artifact.Owner == "" {
		cfg.Artifact.Owner = "root"
	}
	if cfg.Artifact.Group == "" {
		cfg.Artifact.Group = "root"
	}
	if cfg.Artifact.Mode == "" {
		cfg.Artifact.Mode = "0755"
	}
	return nil
}

// ServiceDefaultApplier handles unit names and systemctl invocation.
type ServiceDefaultApplier struct{}

func (s *ServiceDefaultApplier) Domain() string { return "service" }

func (s *ServiceDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Service.StreamUnit == "" {
		cfg.Service.StreamUnit = "forpost-stream"
	}
	if cfg.Service.UDPProxyUnit == "" {
		cfg.Service.UDPProxyUnit = "forpost-udp-proxy"
	}
	if cfg.Service.AutoRestartUnit == "" {
		cfg.Service.AutoRestartUnit = "forpost-stream-autorestart.timer"
	}
	if cfg.Service.SystemctlPath == "" {
		cfg.Service.SystemctlPath = "systemctl"
	}
	if !cfg.Service.useSudoSpecified {
		cfg.Service.UseSudo = true
	}
	return nil
}

// ReadinessDefaultApplier handles the readiness gate.
type ReadinessDefaultApplier struct{}

func (r *ReadinessDefaultApplier) Domain() string { return "readiness" }

func (r *ReadinessDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Readiness.Key == "" {
		cfg.Readiness.Key = "RTMP_URL"
	}
	if cfg.Readiness.Placeholder == "" {
		cfg.Readiness.Placeholder = "__RTMP_URL__"
	}
	return nil
}

// StreamDefaultApplier handles the critical key list.
type StreamDefaultApplier struct{}

func (s *StreamDefaultApplier) Domain() string { return "stream" }

func (s *StreamDefaultApplier) ApplyDefaults(cfg *Config) error {
	if len(cfg.Stream.CriticalKeys) == 0 {
		cfg.Stream.CriticalKeys = append([]string(nil), DefaultCriticalKeys...)
	}
	return nil
}

// DaemonDefaultApplier handles the watcher daemon.
type DaemonDefaultApplier struct{}

func (d *DaemonDefaultApplier) Domain() string { return "daemon" }

func (d *DaemonDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Daemon.ListenAddr == "" {
		cfg.Daemon.ListenAddr = "127.0.0.1:9464"
	}
	if cfg.Daemon.WatchDebounce == "" {
		cfg.Daemon.WatchDebounce = "500ms"
	}
	return nil
}

// NotifyDefaultApplier handles the NATS publisher.
type NotifyDefaultApplier struct{}

func (n *NotifyDefaultApplier) Domain() string { return "notify" }

func (n *NotifyDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = "forpost.events"
	}
	return nil
}

// LoggingDefaultApplier handles log level and format.
type LoggingDefaultApplier struct{}

func (l *LoggingDefaultApplier) Domain() string { return "logging" }

func (l *LoggingDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
	return nil
}

// CompositeDefaultApplier applies defaults across all configuration domains.
type CompositeDefaultApplier struct {
	appliers []DefaultApplier
}

// NewDefaultApplier creates a composite default applier with all domain appliers.
func NewDefaultApplier() *CompositeDefaultApplier {
	return &CompositeDefaultApplier{
		appliers: []DefaultApplier{
			&PathsDefaultApplier{},
			&BackupDefaultApplier{},
			&ArtifactDefaultApplier{},
			&ServiceDefaultApplier{},
			&ReadinessDefaultApplier{},
			&StreamDefaultApplier{},
			&DaemonDefaultApplier{},
			&NotifyDefaultApplier{},
			&LoggingDefaultApplier{},
		},
	}
}

// ApplyDefaults applies defaults for all configuration domains.
func (c *CompositeDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, applier := range c.appliers {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("applying defaults for %s: %w", applier.Domain(), err)
		}
	}
	return nil
}

// GetApplierByDomain returns a specific domain applier (useful for testing).
func (c *CompositeDefaultApplier) GetApplierByDomain(domain string) DefaultApplier {
	for _, applier := range c.appliers {
		if applier.Domain() == domain {
			return applier
		}
	}
	return nil
}
