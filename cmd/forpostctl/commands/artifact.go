package commands

import (
	"context"
	"fmt"
	"io"
	"time"
)

// ArtifactCmd groups the encoder binary commands.
type ArtifactCmd struct {
	Info    ArtifactInfoCmd    `cmd:"" default:"1" help:"Describe the live binary, its backups and its service"`
	Upload  ArtifactUploadCmd  `cmd:"" help:"Install a new binary, stopping the service around the swap"`
	Restore ArtifactRestoreCmd `cmd:"" help:"Make a named backup the live binary"`
	Delete  ArtifactDeleteCmd  `cmd:"" help:"Remove a named backup"`
}

// ArtifactInfoCmd implements 'artifact info'.
type ArtifactInfoCmd struct{}

func (c *ArtifactInfoCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		info, err := env.Manager.ArtifactInfo(ctx)
		if err != nil {
			return err
		}
		return emit(g, root, info, func(w io.Writer) {
			if !info.Exists {
				fmt.Fprintf(w, "%s: not installed\n", info.Path)
			} else {
				fmt.Fprintf(w, "%s  %d bytes  %s:%s %s\n", info.Path, info.Size, info.Owner, info.Group, info.Mode)
				fmt.Fprintf(w, "sha256 %s\n", info.Checksum)
			}
			fmt.Fprintf(w, "service %s: %s\n", info.Unit, info.ServiceState)
			for _, b := range info.Backups {
				fmt.Fprintf(w, "  %s  %d bytes  %s\n", b.Name, b.Size, b.ModTime.Format(time.RFC3339))
			}
		})
	})
}

// ArtifactUploadCmd implements 'artifact upload'.
type ArtifactUploadCmd struct {
	File string `arg:"" optional:"" type:"existingfile" help:"New binary; stdin when omitted"`
}

func (c *ArtifactUploadCmd) Run(g *Global, root *CLI) error {
	payload, err := readInput(c.File)
	if err != nil {
		return err
	}
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		res, opID, err := env.Manager.UploadArtifact(ctx, payload)
		if err != nil {
			return err
		}
		return emit(g, root, map[string]any{"result": res, "operation_id": opID}, func(w io.Writer) {
			fmt.Fprintf(w, "installed %d bytes, sha256 %s\n", res.Size, res.Checksum)
			if res.Backup != "" {
				fmt.Fprintf(w, "previous binary kept as %s\n", res.Backup)
			}
			printOpID(w, opID)
		})
	})
}

// ArtifactRestoreCmd implements 'artifact restore'.
type ArtifactRestoreCmd struct {
	Name string `arg:"" help:"Backup name as listed by 'artifact info'"`
}

func (c *ArtifactRestoreCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		res, opID, err := env.Manager.RestoreArtifact(ctx, c.Name)
		if err != nil {
			return err
		}
		return emit(g, root, map[string]any{"result": res, "operation_id": opID}, func(w io.Writer) {
			fmt.Fprintf(w, "restored %s (%d bytes, sha256 %s)\n", res.Name, res.Size, res.Checksum)
			printOpID(w, opID)
		})
	})
}

// ArtifactDeleteCmd implements 'artifact delete'.
type ArtifactDeleteCmd struct {
	Name string `arg:"" help:"Backup name as listed by 'artifact info'"`
}

func (c *ArtifactDeleteCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		opID, err := env.Manager.DeleteArtifactBackup(ctx, c.Name)
		if err != nil {
			return err
		}
		return emit(g, root, map[string]any{"name": c.Name, "operation_id": opID}, func(w io.Writer) {
			fmt.Fprintf(w, "deleted %s\n", c.Name)
			printOpID(w, opID)
		})
	})
}
