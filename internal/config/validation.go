package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
)

// ValidateConfig checks a fully defaulted configuration.
func ValidateConfig(cfg *Config) error {
	v := &configurationValidator{config: cfg}
	for _, check := range []func() error{
		v.validatePaths,
		v.validateBackup,
		v.validateArtifact,
		v.validateDaemon,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

type configurationValidator struct {
	config *Config
}

func invalid(field, msg string) error {
	return errors.ConfigError(fmt.Sprintf("%s: %s", field, msg)).
		WithContext("field", field).
		Build()
}

func (cv *configurationValidator) validatePaths() error {
	p := cv.config.Paths
	if p.ConfigFile == p.DefaultsFile {
		return invalid("paths.defaults_file", "must differ from paths.config_file")
	}
	for field, path := range map[string]string{
		"paths.config_file":   p.ConfigFile,
		"paths.defaults_file": p.DefaultsFile,
		"paths.state_dir":     p.StateDir,
	} {
		if !filepath.IsAbs(path) {
			return invalid(field, fmt.Sprintf("must be an absolute path, got %q", path))
		}
	}
	return nil
}

func (cv *configurationValidator) validateBackup() error {
	if cv.config.Backup.Depth < 1 {
		return invalid("backup.depth", fmt.Sprintf("must be at least 1, got %d", cv.config.Backup.Depth))
	}
	return nil
}

func (cv *configurationValidator) validateArtifact() error {
	a := cv.config.Artifact
	if !filepath.IsAbs(a.Path) {
		return invalid("artifact.path", fmt.Sprintf("must be an absolute path, got %q", a.Path))
	}
	if !filepath.IsAbs(a.BackupDir) {
		return invalid("artifact.backup_dir", fmt.Sprintf("must be an absolute path, got %q", a.BackupDir))
	}
	if filepath.Clean(filepath.Dir(a.Path)) == filepath.Clean(a.BackupDir) {
		return invalid("artifact.backup_dir", "must not be the directory of artifact.path")
	}
	if _, err := cv.config.ArtifactMode(); err != nil {
		return invalid("artifact.mode", err.Error())
	}
	return nil
}

func (cv *configurationValidator) validateDaemon() error {
	d := cv.config.Daemon
	if _, _, err := net.SplitHostPort(d.ListenAddr); err != nil {
		return invalid("daemon.listen_addr", err.Error())
	}
	if _, err := cv.config.WatchDebounce(); err != nil {
		return invalid("daemon.watch_debounce", err.Error())
	}
	return nil
}

// ArtifactMode parses the configured fallback mode.
func (c *Config) ArtifactMode() (os.FileMode, error) {
	m, err := strconv.ParseUint(c.Artifact.Mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid octal mode %q", c.Artifact.Mode)
	}
	if m == 0 || m > 0o7777 {
		return 0, fmt.Errorf("mode %q out of range", c.Artifact.Mode)
	}
	return os.FileMode(m), nil
}

// WatchDebounce parses the configured debounce window.
func (c *Config) WatchDebounce() (time.Duration, error) {
	d, err := time.ParseDuration(c.Daemon.WatchDebounce)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", d)
	}
	return d, nil
}
