package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/deleteaudit/internal/harness"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
}

// SimulateResult is the JSON payload of the simulate command.
type SimulateResult struct {
	Scenario string   `json:"scenario"`
	Passed   bool     `json:"passed"`
	Failures []string `json:"failures,omitempty"`
	Cycles   int      `json:"cycles"`
	Pending  bool     `json:"pending"`
	Lost     int      `json:"lost"`
	Report   string   `json:"report,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>...",
		Short: "Replay scripted host sessions",
		Long: `Replay one or more scripted host sessions against the audit pipeline.

Each scenario runs over an in-memory filesystem with a fake clock; nothing
is written to disk. Text output prints the resulting tables and cycles.
The command fails when any scenario's expectations are unmet.

Examples:
  deleteaudit simulate internal/harness/testdata/scenarios/delete_then_tick.yaml
  deleteaudit simulate --format json scenarios/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), opts, args, cmd)
		},
	}

	return cmd
}

func runSimulate(ctx context.Context, opts *SimulateOptions, paths []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)
	log := opts.logger(cmd.ErrOrStderr())

	var (
		results []SimulateResult
		text    strings.Builder
		failed  int
	)
	for _, path := range paths {
		s, err := harness.LoadScenario(opts.Fs, path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load scenario", err)
		}

		res, err := harness.Run(ctx, s, harness.WithLogger(log))
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("scenario %s", s.Name), err)
		}
		if !res.Passed() {
			failed++
		}

		results = append(results, SimulateResult{
			Scenario: s.Name,
			Passed:   res.Passed(),
			Failures: res.Failures,
			Cycles:   len(res.Cycles),
			Pending:  res.Pending,
			Lost:     len(res.Lost),
			Report:   string(res.Report),
		})

		fmt.Fprintf(&text, "# %s\n", s.Name)
		text.Write(harness.Render(res))
		for _, f := range res.Failures {
			fmt.Fprintf(&text, "FAIL: %s\n", f)
		}
		text.WriteString("\n")
	}

	if failed > 0 {
		if err := out.Error(ErrCodeScenarioFailed, fmt.Sprintf("%d of %d scenarios failed", failed, len(paths)), results); err != nil {
			return err
		}
		if opts.Format != "json" {
			fmt.Fprint(out.Writer, text.String())
		}
		return NewExitError(ExitFailure, "scenario expectations unmet")
	}
	return out.Success(results, text.String())
}
