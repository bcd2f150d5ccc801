package commands

import (
	"context"
	"fmt"
	"io"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/manager"
)

// InstallCmd implements 'install'.
type InstallCmd struct {
	Endpoint string `arg:"" help:"RTMP endpoint URL including the stream key"`
	Overlay  string `help:"Overlay text burnt into the video"`
}

func (c *InstallCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		rep, err := env.Manager.Install(ctx, c.Endpoint, c.Overlay)
		if err != nil {
			return err
		}
		return emitReport(g, root, rep)
	})
}

// AutoRestartCmd implements 'autorestart'. Without flags it prints the policy.
type AutoRestartCmd struct {
	Enable   bool `help:"Turn periodic restarts on" xor:"state"`
	Disable  bool `help:"Turn periodic restarts off" xor:"state"`
	Interval int  `help:"Hours between restarts" default:"0"`
}

func (c *AutoRestartCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		current, err := env.Manager.AutoRestart()
		if err != nil {
			return err
		}
		if !c.Enable && !c.Disable && c.Interval == 0 {
			return emit(g, root, current, func(w io.Writer) {
				fmt.Fprintf(w, "enabled: %t\ninterval: %dh\n", current.Enabled, current.IntervalHours)
			})
		}

		enabled := current.Enabled
		switch {
		case c.Enable:
			enabled = true
		case c.Disable:
			enabled = false
		}
		interval := current.IntervalHours
		if c.Interval != 0 {
			interval = c.Interval
		}
		rep, err := env.Manager.SetAutoRestart(ctx, enabled, interval)
		if err != nil {
			return err
		}
		return emitReport(g, root, rep)
	})
}

// PowerCmd implements 'power'. Without flags it prints the policy.
type PowerCmd struct {
	WiFi       string `name:"wifi" help:"Power down WiFi (on, off)"`
	Bluetooth  string `help:"Power down Bluetooth (on, off)"`
	HDMI       string `name:"hdmi" help:"Power down HDMI output (on, off)"`
	EthSpeed   string `help:"Ethernet speed (auto, 10, 100, 1000)"`
	EthAutoneg string `help:"Ethernet auto-negotiation (on, off)"`
}

func (c *PowerCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		p, err := env.Manager.PowerSettings()
		if err != nil {
			return err
		}
		changed, err := c.apply(&p)
		if err != nil {
			return err
		}
		if !changed {
			return emit(g, root, p, func(w io.Writer) { printPower(w, p) })
		}
		rep, err := env.Manager.SetPowerSettings(ctx, p)
		if err != nil {
			return err
		}
		return emitReport(g, root, rep)
	})
}

// apply overlays the given flags on p and reports whether any was set.
func (c *PowerCmd) apply(p *manager.PowerSettings) (bool, error) {
	changed := false
	toggles := []struct {
		flag string
		raw  string
		dst  *bool
	}{
		{"wifi", c.WiFi, &p.WiFi},
		{"bluetooth", c.Bluetooth, &p.Bluetooth},
		{"hdmi", c.HDMI, &p.HDMI},
	}
	for _, t := range toggles {
		switch t.raw {
		case "":
			continue
		case "on":
			*t.dst = true
		case "off":
			*t.dst = false
		default:
			return false, errors.ValidationError(fmt.Sprintf("--%s must be on or off, got %q", t.flag, t.raw)).Build()
		}
		changed = true
	}
	if c.EthSpeed != "" {
		p.EthSpeed = c.EthSpeed
		changed = true
	}
	if c.EthAutoneg != "" {
		p.EthAutoneg = c.EthAutoneg
		changed = true
	}
	return changed, nil
}

func printPower(w io.Writer, p manager.PowerSettings) {
	fmt.Fprintf(w, "wifi: %t\nbluetooth: %t\nhdmi: %t\neth speed: %s\neth autoneg: %s\n",
		p.WiFi, p.Bluetooth, p.HDMI, p.EthSpeed, p.EthAutoneg)
}
