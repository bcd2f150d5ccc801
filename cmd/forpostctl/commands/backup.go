package commands

import (
	"context"
	"fmt"
	"io"
	"time"
)

// BackupCmd groups the config backup commands.
type BackupCmd struct {
	List    BackupListCmd    `cmd:"" default:"1" help:"List occupied backup slots"`
	Show    BackupShowCmd    `cmd:"" help:"Print the content of one slot"`
	Restore BackupRestoreCmd `cmd:"" help:"Make a slot the persisted configuration"`
	Delete  BackupDeleteCmd  `cmd:"" help:"Remove one slot"`
}

// BackupListCmd implements 'backup list'.
type BackupListCmd struct{}

func (c *BackupListCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(_ context.Context, env *Env) error {
		slots, err := env.Manager.Backups()
		if err != nil {
			return err
		}
		return emit(g, root, slots, func(w io.Writer) {
			if len(slots) == 0 {
				fmt.Fprintln(w, "no backups")
			}
			for _, s := range slots {
				fmt.Fprintf(w, "%d  %s  %6d bytes  %s\n", s.Slot, s.ModTime.Format(time.RFC3339), s.Size, s.Filename)
			}
		})
	})
}

// BackupShowCmd implements 'backup show'.
type BackupShowCmd struct {
	Slot int `arg:"" help:"Slot number, 1 is the newest"`
}

func (c *BackupShowCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(_ context.Context, env *Env) error {
		snap, err := env.Manager.Backup(c.Slot)
		if err != nil {
			return err
		}
		return emit(g, root, snap, func(w io.Writer) {
			_, _ = io.WriteString(w, snap.Content)
		})
	})
}

// BackupRestoreCmd implements 'backup restore'.
type BackupRestoreCmd struct {
	Slot int `arg:"" help:"Slot number, 1 is the newest"`
}

func (c *BackupRestoreCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		rep, err := env.Manager.RestoreBackup(ctx, c.Slot)
		if err != nil {
			return err
		}
		return emitReport(g, root, rep)
	})
}

// BackupDeleteCmd implements 'backup delete'.
type BackupDeleteCmd struct {
	Slot int `arg:"" help:"Slot number, 1 is the newest"`
}

func (c *BackupDeleteCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		opID, err := env.Manager.DeleteBackup(ctx, c.Slot)
		if err != nil {
			return err
		}
		return emit(g, root, map[string]any{"slot": c.Slot, "operation_id": opID}, func(w io.Writer) {
			fmt.Fprintf(w, "deleted slot %d\n", c.Slot)
			printOpID(w, opID)
		})
	})
}
