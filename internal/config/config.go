package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
)

// DefaultPath is where the manager looks for its own configuration.
const DefaultPath = "/etc/forpostctl/forpostctl.yaml"

// Config is the forpostctl manager configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	Backup    BackupConfig    `yaml:"backup"`
	Artifact  ArtifactConfig  `yaml:"artifact"`
	Service   ServiceConfig   `yaml:"service"`
	Identity  IdentityConfig  `yaml:"identity"`
	Readiness ReadinessConfig `yaml:"readiness"`
	Stream    StreamConfig    `yaml:"stream"`
	Daemon    DaemonConfig    `yaml:"daemon"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PathsConfig locates the appliance config, its defaults and manager state.
type PathsConfig struct {
	ConfigFile         string `yaml:"config_file"`          // persisted KEY=VALUE stream config
	DefaultsFile       string `yaml:"defaults_file"`        // read-only template
	StateDir           string `yaml:"state_dir"`            // lock file and audit database live here
	AuditDB            string `yaml:"audit_db"`             // empty: <state_dir>/audit.db
	DynamicOverlayFile string `yaml:"dynamic_overlay_file"` // live overlay text re-read by the encoder
	ScanningStateFile  string `yaml:"scanning_state_file"`  // written by the frequency scanner
}

// BackupConfig controls the config backup rotation.
type BackupConfig struct {
	Depth                 int  `yaml:"depth"`
	SnapshotBeforeRestore bool `yaml:"snapshot_before_restore"`
}

// ArtifactConfig describes the managed encoder binary.
type ArtifactConfig struct {
	Path       string `yaml:"path"`
	BackupDir  string `yaml:"backup_dir"`
	StagingDir string `yaml:"staging_dir"`
	Unit       string `yaml:"unit"` // service stopped around a replace; empty: service.stream_unit
	Owner      string `yaml:"owner"`
	Group      string `yaml:"group"`
	Mode       string `yaml:"mode"` // octal, e.g. "0755"
}

// ServiceConfig names the systemd units the manager coordinates.
type ServiceConfig struct {
	StreamUnit      string `yaml:"stream_unit"`
	UDPProxyUnit    string `yaml:"udp_proxy_unit"`
	AutoRestartUnit string `yaml:"autorestart_unit"`
	UseSudo         bool   `yaml:"use_sudo"`
	SystemctlPath   string `yaml:"systemctl_path"`

	useSudoSpecified bool
}

// UnmarshalYAML records whether use_sudo was given so the default only fills omissions.
func (s *ServiceConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain ServiceConfig
	var raw plain
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*s = ServiceConfig(raw)
	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "use_sudo" {
			s.useSudoSpecified = true
		}
	}
	return nil
}

// IdentityConfig is the primary operating identity that owns the config files.
type IdentityConfig struct {
	User  string `yaml:"user"`
	Group string `yaml:"group"`
}

// ReadinessConfig parameterizes the readiness gate.
type ReadinessConfig struct {
	Key         string `yaml:"key"`
	Placeholder string `yaml:"placeholder"`
}

// StreamConfig lists the keys whose change requires a stream restart.
type StreamConfig struct {
	CriticalKeys []string `yaml:"critical_keys"`
}

// DaemonConfig configures the long-running watcher.
type DaemonConfig struct {
	ListenAddr    string `yaml:"listen_addr"`
	WatchDebounce string `yaml:"watch_debounce"`
}

// NotifyConfig configures the optional NATS publisher. Empty URL disables it.
type NotifyConfig struct {
	NATSURL   string `yaml:"nats_url"`
	Subject   string `yaml:"subject"`
	JetStream bool   `yaml:"jetstream"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// AuditDBPath returns the audit database location.
func (c *Config) AuditDBPath() string {
	if c.Paths.AuditDB != "" {
		return c.Paths.AuditDB
	}
	return filepath.Join(c.Paths.StateDir, "audit.db")
}

// LockPath returns the path of the cross-process mutation lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "forpostctl.lock")
}

// ArtifactUnit returns the unit stopped around an artifact replace.
func (c *Config) ArtifactUnit() string {
	if c.Artifact.Unit != "" {
		return c.Artifact.Unit
	}
	return c.Service.StreamUnit
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the manager configuration. A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	var cfg Config
	data, err := os.ReadFile(configPath)
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		slog.Debug("configuration file not found, using defaults", "path", configPath)
	case err != nil:
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	default:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse config file").
				WithContext("path", configPath).
				Build()
		}
	}

	if err := finish(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finish runs normalization, defaults and validation in that order.
func finish(cfg *Config) error {
	for _, w := range normalize(cfg) {
		slog.Warn("config normalization", "warning", w)
	}
	if err := NewDefaultApplier().ApplyDefaults(cfg); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "failed to apply defaults").Build()
	}
	return ValidateConfig(cfg)
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ValidationError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", configPath)).
			WithContext("path", configPath).
			Build()
	}

	example, err := Default()
	if err != nil {
		return err
	}
	example.Identity = IdentityConfig{User: "forpost", Group: "forpost"}
	example.Notify = NotifyConfig{NATSURL: "${FORPOST_NATS_URL}", Subject: example.Notify.Subject}

	data, err := yaml.Marshal(example)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal example config").Build()
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create config directory").
			WithContext("path", configPath).
			Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write config file").
			WithContext("path", configPath).
			Build()
	}
	return nil
}
