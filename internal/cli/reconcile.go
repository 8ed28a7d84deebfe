package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/deleteaudit/internal/persist"
	"github.com/roach88/deleteaudit/internal/reconcile"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	Root    string
	Project string
	Prefix  string
	Date    string
	// NoCarryForward disables carry-forward regardless of the config.
	NoCarryForward bool
}

// ReconcileResult is the JSON payload of the reconcile command.
type ReconcileResult struct {
	Report         string `json:"report"`
	Rows           int    `json:"rows"`
	Resolved       int    `json:"resolved"`
	CarriedForward int    `json:"carried_forward"`
	Unresolved     int    `json:"unresolved"`
	Malformed      int    `json:"malformed"`
	Attempts       int    `json:"attempts"`
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild a deleted-elements report from the shared folder",
		Long: `Join a project's deletion log with its latest snapshot and rewrite the
deleted-elements report, exactly as a flush cycle does.

The output folder is <root>/<project>_<date>/<project>_<prefix>. Locked
files are retried with the configured back-off.

Examples:
  deleteaudit reconcile --root //fs01/BIM/DeleteLog --project Tower --prefix ar
  deleteaudit reconcile --config audit.yaml --project Tower --prefix ar --date 14-05-2024`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Root, "root", "", "shared output folder (default: shared_root from config)")
	cmd.Flags().StringVar(&opts.Project, "project", "", "project name (required)")
	_ = cmd.MarkFlagRequired("project")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "identity prefix (required)")
	_ = cmd.MarkFlagRequired("prefix")
	cmd.Flags().StringVar(&opts.Date, "date", "", "folder date dd-mm-yyyy (default: today)")
	cmd.Flags().BoolVar(&opts.NoCarryForward, "no-carry-forward", false, "drop ids missing from the current snapshot")

	return cmd
}

func runReconcile(ctx context.Context, opts *ReconcileOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)
	log := opts.logger(cmd.ErrOrStderr())

	root := opts.Root
	if root == "" {
		root = opts.Config.SharedRoot
	}
	if root == "" {
		return NewExitError(ExitCommandError, "no shared root: pass --root or set shared_root in the config")
	}

	day := opts.Now()
	if opts.Date != "" {
		var err error
		day, err = time.ParseInLocation(persist.DateLayout, opts.Date, time.Local)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --date", err)
		}
	}

	p := persist.New(opts.Fs, append(opts.Config.PersistOptions(), persist.WithLogger(log))...)
	r := reconcile.New(p,
		reconcile.WithCarryForward(opts.Config.CarryForward && !opts.NoCarryForward),
		reconcile.WithLogger(log),
	)
	paths := persist.Layout{Root: root, Prefix: opts.Prefix}.For(opts.Project, day)

	outcome := r.Reconcile(ctx, paths)
	switch {
	case outcome.Skipped:
		details := map[string]string{"deletion_log": paths.DeletionLog, "snapshot": paths.Snapshot}
		if err := out.Error(ErrCodeReconcile, "deletion log or snapshot missing", details); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "reconcile skipped")
	case outcome.Err != nil:
		return WrapExitError(ExitCommandError, "reconcile failed", outcome.Err)
	case !outcome.Write.OK():
		return WrapExitError(ExitFailure, fmt.Sprintf("report not written after %d attempts", outcome.Write.Attempts), outcome.Write.Err)
	}

	result := ReconcileResult{
		Report:         paths.Report,
		Rows:           outcome.Rows,
		Resolved:       outcome.Resolved,
		CarriedForward: outcome.CarriedForward,
		Unresolved:     outcome.Unresolved,
		Malformed:      outcome.Malformed,
		Attempts:       outcome.Write.Attempts,
	}
	text := fmt.Sprintf("%s: %d rows (%d resolved, %d carried forward, %d unresolved)\n",
		paths.Report, result.Rows, result.Resolved, result.CarriedForward, result.Unresolved)
	if result.Malformed > 0 {
		text += fmt.Sprintf("skipped %d malformed rows\n", result.Malformed)
	}
	return out.Success(result, text)
}
