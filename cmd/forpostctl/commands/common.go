// Package commands implements the forpostctl command tree.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/forpostctl/internal/config"
)

// Global carries process-wide state into every command.
type Global struct {
	Ctx context.Context
	Out io.Writer
}

// CLI is the root command and its global flags.
type CLI struct {
	ConfigFile string           `name:"config" short:"c" help:"Manager configuration file" default:"${config_path}" env:"FORPOSTCTL_CONFIG"`
	Verbose    bool             `short:"v" help:"Enable debug logging"`
	LogFormat  string           `help:"Log output format (text or json); overrides the config file"`
	JSON       bool             `help:"Print results as JSON"`
	Version    kong.VersionFlag `name:"version" help:"Show version and exit"`

	Config      ConfigCmd      `cmd:"" help:"Read and edit the stream configuration"`
	Backup      BackupCmd      `cmd:"" help:"Inspect and restore configuration backups"`
	Artifact    ArtifactCmd    `cmd:"" help:"Manage the encoder binary and its backups"`
	Stream      StreamCmd      `cmd:"" help:"Control the stream service"`
	Install     InstallCmd     `cmd:"" help:"Set the stream endpoint and overlay text in one step"`
	AutoRestart AutoRestartCmd `cmd:"" name:"autorestart" help:"Show or set the periodic stream restart policy"`
	Power       PowerCmd       `cmd:"" help:"Show or set the power-save policy"`
	Overlay     OverlayCmd     `cmd:"" help:"Show or change the live overlay text without restarting the stream"`
	Status      StatusCmd      `cmd:"" help:"Show the combined appliance status"`
	History     HistoryCmd     `cmd:"" help:"Show the audit trail"`
	Daemon      DaemonCmd      `cmd:"" help:"Run the watcher, scheduler and metrics endpoint"`
	VersionCmd  VersionCmd     `cmd:"" name:"version" help:"Print version information"`
}

// Vars are the kong interpolation variables used by CLI.
func Vars(versionString string) kong.Vars {
	return kong.Vars{
		"config_path": config.DefaultPath,
		"version":     versionString,
	}
}

// AfterApply runs after flag parsing; it sets up logging from the flags. The
// config file may refine it once loaded.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	setupLogging(c.level(""), c.format(""))
	return nil
}

func (c *CLI) level(configured config.LogLevel) slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	return configured.SlogLevel()
}

func (c *CLI) format(configured config.LogFormat) config.LogFormat {
	if f := config.NormalizeLogFormat(c.LogFormat); f != "" {
		return f
	}
	if configured != "" {
		return configured
	}
	return config.LogFormatText
}

// loadConfig reads the manager configuration and applies its logging section.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.ConfigFile)
	if err != nil {
		return nil, err
	}
	setupLogging(c.level(cfg.Logging.Level), c.format(cfg.Logging.Format))
	return cfg, nil
}

func setupLogging(level slog.Level, format config.LogFormat) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == config.LogFormatJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// printJSON writes v indented, followed by a newline.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// emit prints v as JSON when requested, otherwise calls text.
func emit(g *Global, root *CLI, v any, text func(w io.Writer)) error {
	if root.JSON {
		return printJSON(g.Out, v)
	}
	text(g.Out)
	return nil
}

func printOpID(w io.Writer, opID string) {
	if opID != "" {
		fmt.Fprintf(w, "operation: %s\n", opID)
	}
}
