package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"git.home.luguber.info/inful/forpostctl/internal/eventstore"
	"git.home.luguber.info/inful/forpostctl/internal/manager"
)

// StatusCmd implements 'status'.
type StatusCmd struct{}

func (c *StatusCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		st, err := env.Manager.Status(ctx)
		if err != nil {
			return err
		}
		return emit(g, root, st, func(w io.Writer) { printStatus(w, st) })
	})
}

func printStatus(w io.Writer, st manager.Status) {
	fmt.Fprintln(w, st.Version.String())
	fmt.Fprintf(w, "ready: %t\n", st.Ready)
	if st.Stream != nil {
		printStreamStatus(w, *st.Stream)
	}
	if st.Artifact != nil {
		fmt.Fprintf(w, "artifact: %s (%d backups)\n", shortSum(st.Artifact.Checksum), len(st.Artifact.Backups))
	}
	fmt.Fprintf(w, "config backups: %d\n", len(st.Backups))
	if st.Audit.RestartPending {
		fmt.Fprintf(w, "restart pending: %s\n", strings.Join(st.Audit.PendingKeys, ", "))
	}
	if st.Audit.LastFailure != "" {
		fmt.Fprintf(w, "last failure: %s\n", st.Audit.LastFailure)
	}
}

func shortSum(sum string) string {
	if sum == "" {
		return "not installed"
	}
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

// HistoryCmd implements 'history'.
type HistoryCmd struct {
	Limit     int    `short:"n" help:"Number of events to show" default:"20"`
	Operation string `help:"Show every event of one operation instead"`
}

func (c *HistoryCmd) Run(g *Global, root *CLI) error {
	return withManager(g, root, func(ctx context.Context, env *Env) error {
		var (
			events []eventstore.Event
			err    error
		)
		if c.Operation != "" {
			events, err = env.Manager.Operation(ctx, c.Operation)
		} else {
			events, err = env.Manager.History(ctx, c.Limit)
		}
		if err != nil {
			return err
		}
		records := eventstore.Records(events)
		return emit(g, root, records, func(w io.Writer) {
			for _, r := range records {
				fmt.Fprintf(w, "%s  %-22s %s  %s\n", r.Timestamp.Format(time.RFC3339), r.Type, r.OperationID, r.Payload)
			}
		})
	})
}
