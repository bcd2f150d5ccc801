// Package stream starts and stops the encoder pipeline: the optional UDP proxy,
// the stream unit itself and the periodic auto-restart timer.
package stream

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/forpostctl/internal/kvconfig"
	"git.home.luguber.info/inful/forpostctl/internal/logfields"
	"git.home.luguber.info/inful/forpostctl/internal/readiness"
	"git.home.luguber.info/inful/forpostctl/internal/svcctl"
)

// Config keys read by the controller.
const (
	KeyUseUDPProxy         = "USE_UDP_PROXY"
	KeyAutoRestartEnabled  = "AUTO_RESTART_ENABLED"
	KeyAutoRestartInterval = "AUTO_RESTART_INTERVAL"
)

// DefaultAutoRestartInterval is used when the interval is missing or not a positive integer.
const DefaultAutoRestartInterval = 2

// Units names the systemd units making up the pipeline.
type Units struct {
	Stream      string
	UDPProxy    string
	AutoRestart string
}

// Settings supplies the current config set.
type Settings interface {
	Load() (*kvconfig.Set, error)
}

// AutoRestart is the periodic restart policy.
type AutoRestart struct {
	Enabled       bool `json:"enabled"`
	IntervalHours int  `json:"interval_hours"`
}

// Status is the pipeline state reported to operators.
type Status struct {
	State       string      `json:"state"`
	Active      bool        `json:"active"`
	Autostart   bool        `json:"autostart"`
	Ready       bool        `json:"ready"`
	AutoRestart AutoRestart `json:"auto_restart"`
	TimerActive bool        `json:"timer_active"`
}

// Controller coordinates the pipeline units.
type Controller struct {
	svc      svcctl.Controller
	settings Settings
	gate     readiness.Gate
	units    Units
}

// New returns a Controller.
func New(svc svcctl.Controller, settings Settings, gate readiness.Gate, units Units) *Controller {
	return &Controller{svc: svc, settings: settings, gate: gate, units: units}
}

// Units returns the configured unit names.
func (c *Controller) Units() Units { return c.units }

// UDPProxyEnabled reports whether USE_UDP_PROXY is "true"; missing means true.
func UDPProxyEnabled(values readiness.Values) bool {
	v, ok := values.Get(KeyUseUDPProxy)
	if !ok {
		return true
	}
	return strings.TrimSpace(v) == "true"
}

// AutoRestartFrom reads the auto-restart policy.
func AutoRestartFrom(values readiness.Values) AutoRestart {
	out := AutoRestart{IntervalHours: DefaultAutoRestartInterval}
	if v, ok := values.Get(KeyAutoRestartEnabled); ok {
		out.Enabled = strings.TrimSpace(v) == "true"
	}
	if v, ok := values.Get(KeyAutoRestartInterval); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			out.IntervalHours = n
		}
	}
	return out
}

func (c *Controller) readyConfig() (*kvconfig.Set, error) {
	set, err := c.settings.Load()
	if err != nil {
		return nil, err
	}
	if err := c.gate.Check(set); err != nil {
		return nil, err
	}
	return set, nil
}

// Start brings the pipeline up. It refuses to start an unconfigured stream.
func (c *Controller) Start(ctx context.Context) error {
	set, err := c.readyConfig()
	if err != nil {
		return err
	}

	if UDPProxyEnabled(set) {
		c.bestEffort(ctx, "start", c.units.UDPProxy, c.svc.Start)
	}
	if err := c.svc.Start(ctx, c.units.Stream); err != nil {
		return err
	}
	if AutoRestartFrom(set).Enabled {
		c.bestEffort(ctx, "start", c.units.AutoRestart, c.svc.Start)
	}
	slog.Info("Stream started", logfields.Unit(c.units.Stream))
	return nil
}

// Stop takes the pipeline down. Only the stream unit's result is reported.
func (c *Controller) Stop(ctx context.Context) error {
	c.bestEffort(ctx, "stop", c.units.AutoRestart, c.svc.Stop)
	err := c.svc.Stop(ctx, c.units.Stream)
	c.bestEffort(ctx, "stop", c.units.UDPProxy, c.svc.Stop)
	if err != nil {
		return err
	}
	slog.Info("Stream stopped", logfields.Unit(c.units.Stream))
	return nil
}

// Restart restarts the proxy (when enabled) and the stream.
func (c *Controller) Restart(ctx context.Context) error {
	set, err := c.readyConfig()
	if err != nil {
		return err
	}
	if UDPProxyEnabled(set) {
		c.bestEffort(ctx, "restart", c.units.UDPProxy, c.svc.Restart)
	}
	if err := c.svc.Restart(ctx, c.units.Stream); err != nil {
		return err
	}
	slog.Info("Stream restarted", logfields.Unit(c.units.Stream))
	return nil
}

// SetAutostart enables or disables the stream unit at boot.
func (c *Controller) SetAutostart(ctx context.Context, enable bool) error {
	if enable {
		return c.svc.Enable(ctx, c.units.Stream)
	}
	return c.svc.Disable(ctx, c.units.Stream)
}

// ApplyAutoRestart brings the timer unit in line with the policy. An enabled
// timer is only started while the stream runs; Start picks it up otherwise.
func (c *Controller) ApplyAutoRestart(ctx context.Context, enabled bool) error {
	if c.units.AutoRestart == "" {
		return nil
	}
	if !enabled {
		return c.svc.Stop(ctx, c.units.AutoRestart)
	}
	active, err := c.svc.IsActive(ctx, c.units.Stream)
	if err != nil || !active {
		return err
	}
	return c.svc.Start(ctx, c.units.AutoRestart)
}

// Status queries the service manager and the current settings.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	state, err := c.svc.ActiveState(ctx, c.units.Stream)
	if err != nil {
		return Status{}, err
	}
	enabled, err := c.svc.IsEnabled(ctx, c.units.Stream)
	if err != nil {
		return Status{}, err
	}
	set, err := c.settings.Load()
	if err != nil {
		return Status{}, err
	}
	st := Status{
		State:       state,
		Active:      state == "active",
		Autostart:   enabled,
		Ready:       c.gate.IsReady(set),
		AutoRestart: AutoRestartFrom(set),
	}
	if c.units.AutoRestart != "" {
		timer, err := c.svc.IsActive(ctx, c.units.AutoRestart)
		if err != nil {
			slog.Warn("Failed to query auto-restart timer", logfields.Unit(c.units.AutoRestart), logfields.Error(err))
		}
		st.TimerActive = timer
	}
	return st, nil
}

func (c *Controller) bestEffort(ctx context.Context, verb, unit string, fn func(context.Context, string) error) {
	if unit == "" {
		return
	}
	if err := fn(ctx, unit); err != nil {
		slog.Warn("Auxiliary unit "+verb+" failed", logfields.Unit(unit), logfields.Error(err))
	}
}
