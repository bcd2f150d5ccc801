package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"git.home.luguber.info/inful/forpostctl/internal/config"
	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/kvconfig"
	"git.home.luguber.info/inful/forpostctl/internal/manager"
)

// ConfigCmd groups the stream configuration commands.
type ConfigCmd struct {
	Show    ConfigShowCmd    `cmd:"" default:"1" help:"Print the effective configuration (persisted values over defaults)"`
	Get     ConfigGetCmd     `cmd:"" help:"Print one value"`
	Set     ConfigSetCmd     `cmd:"" help:"Set one or more KEY=VALUE pairs"`
	Raw     ConfigRawCmd     `cmd:"" help:"Print the persisted file verbatim"`
	SaveRaw ConfigSaveRawCmd `cmd:"" name:"save-raw" help:"Replace the persisted file, keeping a backup"`
	Init    ConfigInitCmd    `cmd:"" help:"Write a default manager configuration file"`
}

// ConfigShowCmd implements 'config show'.
type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(_ context.Context, env *Env) error {
		set, err := env.Manager.Config()
		if err != nil {
			return err
		}
		return emit(g, root, set.Values(), func(w io.Writer) {
			for _, e := range set.Entries() {
				fmt.Fprintf(w, "%s=%s\n", e.Key, e.Value)
			}
		})
	})
}

// ConfigGetCmd implements 'config get'.
type ConfigGetCmd struct {
	Key string `arg:"" help:"Key to print"`
}

func (c *ConfigGetCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(_ context.Context, env *Env) error {
		set, err := env.Manager.Config()
		if err != nil {
			return err
		}
		v, ok := set.Get(c.Key)
		if !ok {
			return errors.NotFoundError(fmt.Sprintf("key %s is not set", c.Key)).
				WithContext("key", c.Key).
				Build()
		}
		return emit(g, root, map[string]string{c.Key: v}, func(w io.Writer) {
			fmt.Fprintln(w, v)
		})
	})
}

// ConfigSetCmd implements 'config set'.
type ConfigSetCmd struct {
	Pairs []string `arg:"" name:"key=value" help:"Assignments to apply, in order"`
}

func (c *ConfigSetCmd) Run(g *Global, root *CLI) error {
	updates, err := ParseAssignments(c.Pairs)
	if err != nil {
		return err
	}
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		rep, err := env.Manager.Save(ctx, updates)
		if err != nil {
			return err
		}
		return emitReport(g, root, rep)
	})
}

// ParseAssignments turns KEY=VALUE arguments into updates. The value may be
// empty and may itself contain '='.
func ParseAssignments(pairs []string) (kvconfig.Updates, error) {
	updates := make(kvconfig.Updates, 0, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, errors.ValidationError(fmt.Sprintf("expected KEY=VALUE, got %q", p)).Build()
		}
		updates = append(updates, kvconfig.Update{Key: key, Value: value})
	}
	return updates, nil
}

// ConfigRawCmd implements 'config raw'.
type ConfigRawCmd struct{}

func (c *ConfigRawCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(_ context.Context, env *Env) error {
		raw, err := env.Manager.Raw()
		if err != nil {
			return err
		}
		return emit(g, root, map[string]string{"content": raw}, func(w io.Writer) {
			_, _ = io.WriteString(w, raw)
		})
	})
}

// ConfigSaveRawCmd implements 'config save-raw'.
type ConfigSaveRawCmd struct {
	File string `arg:"" optional:"" type:"existingfile" help:"File with the new content; stdin when omitted"`
}

func (c *ConfigSaveRawCmd) Run(g *Global, root *CLI) error {
	content, err := readInput(c.File)
	if err != nil {
		return err
	}
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		rep, err := env.Manager.SaveRaw(ctx, string(content))
		if err != nil {
			return err
		}
		return emitReport(g, root, rep)
	})
}

// ConfigInitCmd implements 'config init'.
type ConfigInitCmd struct {
	Force bool `help:"Overwrite an existing configuration file"`
}

func (c *ConfigInitCmd) Run(g *Global, root *CLI) error {
	fmt.Fprintf(g.Out, "Writing configuration to %s\n", root.ConfigFile)
	if err := config.Init(root.ConfigFile, c.Force); err != nil {
		return err
	}
	fmt.Fprintln(g.Out, "initialized successfully")
	return nil
}

func readInput(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read input").
			WithContext("path", path).
			Build()
	}
	return data, nil
}

func emitReport(g *Global, root *CLI, rep manager.ChangeReport) error {
	return emit(g, root, rep, func(w io.Writer) {
		if len(rep.Changes) == 0 {
			fmt.Fprintln(w, "no changes")
		}
		for _, c := range rep.Changes {
			fmt.Fprintf(w, "%s: %q -> %q\n", c.Key, c.Old, c.New)
		}
		if rep.Slot > 0 {
			fmt.Fprintf(w, "restored from slot %d\n", rep.Slot)
		}
		if rep.RestartRequired {
			fmt.Fprintf(w, "restart required (critical: %s)\n", strings.Join(rep.CriticalKeys, ", "))
		}
		printOpID(w, rep.OperationID)
	})
}
