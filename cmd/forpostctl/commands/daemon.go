package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/forpostctl/internal/daemon"
)

// DaemonCmd implements 'daemon'.
type DaemonCmd struct {
	Listen string `help:"Override daemon.listen_addr"`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(g.Ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	g = &Global{Ctx: ctx, Out: g.Out}

	return withManager(g, root, func(ctx context.Context, env *Env) error {
		debounce, err := env.Config.WatchDebounce()
		if err != nil {
			return err
		}
		addr := env.Config.Daemon.ListenAddr
		if d.Listen != "" {
			addr = d.Listen
		}
		dm, err := daemon.New(env.Manager, daemon.Options{
			ListenAddr: addr,
			ConfigPath: env.Config.Paths.ConfigFile,
			Debounce:   debounce,
			Registry:   env.Registry,
			Metrics:    env.Metrics,
		})
		if err != nil {
			return err
		}
		if err := dm.Run(ctx); err != nil {
			return err
		}
		slog.Info("Daemon stopped")
		return nil
	})
}
