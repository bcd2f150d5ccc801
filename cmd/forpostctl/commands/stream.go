package commands

import (
	"context"
	"fmt"
	"io"

	"git.home.luguber.info/inful/forpostctl/internal/stream"
)

// StreamCmd groups the stream service commands.
type StreamCmd struct {
	Status    StreamStatusCmd    `cmd:"" default:"1" help:"Show the stream service state"`
	Start     StreamStartCmd     `cmd:"" help:"Start the stream (requires a configured endpoint)"`
	Stop      StreamStopCmd      `cmd:"" help:"Stop the stream"`
	Restart   StreamRestartCmd   `cmd:"" help:"Restart the stream (requires a configured endpoint)"`
	Autostart StreamAutostartCmd `cmd:"" help:"Enable or disable starting the stream at boot"`
}

// StreamStatusCmd implements 'stream status'.
type StreamStatusCmd struct{}

func (c *StreamStatusCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		st, err := env.Manager.StreamStatus(ctx)
		if err != nil {
			return err
		}
		return emit(g, root, st, func(w io.Writer) { printStreamStatus(w, st) })
	})
}

func printStreamStatus(w io.Writer, st stream.Status) {
	fmt.Fprintf(w, "state: %s\n", st.State)
	fmt.Fprintf(w, "ready: %t\n", st.Ready)
	fmt.Fprintf(w, "autostart: %t\n", st.Autostart)
	if st.AutoRestart.Enabled {
		fmt.Fprintf(w, "auto-restart: every %dh (timer active: %t)\n", st.AutoRestart.IntervalHours, st.TimerActive)
	} else {
		fmt.Fprintln(w, "auto-restart: off")
	}
}

// StreamStartCmd implements 'stream start'.
type StreamStartCmd struct{}

func (c *StreamStartCmd) Run(g *Global, root *CLI) error {
	return streamAction(g, root, "started", func(ctx context.Context, env *Env) (string, error) {
		return env.Manager.StartStream(ctx)
	})
}

// StreamStopCmd implements 'stream stop'.
type StreamStopCmd struct{}

func (c *StreamStopCmd) Run(g *Global, root *CLI) error {
	return streamAction(g, root, "stopped", func(ctx context.Context, env *Env) (string, error) {
		return env.Manager.StopStream(ctx)
	})
}

// StreamRestartCmd implements 'stream restart'.
type StreamRestartCmd struct{}

func (c *StreamRestartCmd) Run(g *Global, root *CLI) error {
	return streamAction(g, root, "restarted", func(ctx context.Context, env *Env) (string, error) {
		return env.Manager.RestartStream(ctx)
	})
}

// StreamAutostartCmd implements 'stream autostart'.
type StreamAutostartCmd struct {
	State string `arg:"" enum:"on,off" help:"on or off"`
}

func (c *StreamAutostartCmd) Run(g *Global, root *CLI) error {
	enable := c.State == "on"
	return streamAction(g, root, "autostart "+c.State, func(ctx context.Context, env *Env) (string, error) {
		return env.Manager.SetAutostart(ctx, enable)
	})
}

func streamAction(g *Global, root *CLI, done string, fn func(ctx context.Context, env *Env) (string, error)) error {
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		opID, err := fn(ctx, env)
		if err != nil {
			return err
		}
		return emit(g, root, map[string]string{"result": done, "operation_id": opID}, func(w io.Writer) {
			fmt.Fprintf(w, "stream %s\n", done)
			printOpID(w, opID)
		})
	})
}
