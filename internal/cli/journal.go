package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/deleteaudit/internal/audit"
	"github.com/roach88/deleteaudit/internal/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Database string
	Limit    int
	Lost     string
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recorded flush cycles",
		Long: `List the flush cycles recorded in the local journal, newest first.

With --lost, print the deletion events of a batch that could not be
appended to the shared deletion log.

Examples:
  deleteaudit journal --db %LOCALAPPDATA%/deleteaudit/journal.db
  deleteaudit journal --config audit.yaml --limit 5
  deleteaudit journal --db journal.db --lost 0190c2a4-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (default: journal_path from config)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum cycles to list (0 for all)")
	cmd.Flags().StringVar(&opts.Lost, "lost", "", "cycle id whose lost events to print")

	return cmd
}

func runJournal(ctx context.Context, opts *JournalOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	path := opts.Database
	if path == "" {
		path = opts.Config.JournalPath
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no journal: pass --db or set journal_path in the config")
	}

	st, err := journal.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	if opts.Lost != "" {
		events, err := st.LostEvents(ctx, opts.Lost)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read lost events", err)
		}
		var text strings.Builder
		for _, ev := range events {
			fmt.Fprintf(&text, "%s\t%d\t%s\t%s\n", ev.Project, ev.ElementID, ev.Time.Format(audit.TimeLayout), ev.User)
		}
		if len(events) == 0 {
			fmt.Fprintf(&text, "no lost events for cycle %s\n", opts.Lost)
		}
		return out.Success(events, text.String())
	}

	cycles, err := st.Cycles(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list cycles", err)
	}

	var text strings.Builder
	if len(cycles) == 0 {
		text.WriteString("no cycles recorded\n")
	}
	for _, c := range cycles {
		fmt.Fprintf(&text, "%5d  %s  %-12s %-18s %-20s drained=%d report=%d unresolved=%d  %s\n",
			c.Seq, c.StartedAt.Local().Format(audit.TimeLayout), c.Cause, c.Outcome, c.Project,
			c.Drained, c.ReportRows, c.Unresolved, c.ID)
	}
	return out.Success(cycles, text.String())
}
