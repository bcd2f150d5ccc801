package commands

import (
	"context"
	"fmt"
	"io"
)

// OverlayCmd groups the dynamic overlay commands.
type OverlayCmd struct {
	Show  OverlayShowCmd  `cmd:"" default:"1" help:"Print the live overlay text and the scanner state"`
	Set   OverlaySetCmd   `cmd:"" help:"Replace the live overlay text"`
	Clear OverlayClearCmd `cmd:"" help:"Remove the live overlay text"`
}

// OverlayShowCmd implements 'overlay show'.
type OverlayShowCmd struct{}

func (c *OverlayShowCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(_ context.Context, env *Env) error {
		ov, err := env.Manager.DynamicOverlay()
		if err != nil {
			return err
		}
		return emit(g, root, ov, func(w io.Writer) {
			fmt.Fprintf(w, "text: %q\nscanning: %s\n", ov.Text, ov.Scanning)
		})
	})
}

// OverlaySetCmd implements 'overlay set'.
type OverlaySetCmd struct {
	Text string `arg:"" help:"New overlay text"`
}

func (c *OverlaySetCmd) Run(g *Global, root *CLI) error {
	return setOverlay(g, root, c.Text)
}

// OverlayClearCmd implements 'overlay clear'.
type OverlayClearCmd struct{}

func (c *OverlayClearCmd) Run(g *Global, root *CLI) error {
	return setOverlay(g, root, "")
}

func setOverlay(g *Global, root *CLI, text string) error {
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		opID, err := env.Manager.SetDynamicOverlay(ctx, text)
		if err != nil {
			return err
		}
		return emit(g, root, map[string]string{"text": text, "operation_id": opID}, func(w io.Writer) {
			fmt.Fprintln(w, "overlay updated")
			printOpID(w, opID)
		})
	})
}
