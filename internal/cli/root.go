package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/deleteaudit/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Config is loaded in PersistentPreRunE. Without --config it holds
	// config.Default().
	Config config.Config

	// Fs is the filesystem commands read and write. Defaults to the OS.
	Fs afero.Fs
	// Now reads the wall clock. Defaults to time.Now.
	Now func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the deleteaudit CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cmd := &cobra.Command{
		Use:   "deleteaudit",
		Short: "Deletion audit tooling",
		Long: `Offline tooling for the deletion audit of shared design documents.

The audit itself runs inside the host application. These commands check
allow-list access, rebuild deleted-element reports from the shared folder,
replay scripted host sessions, and inspect the local cycle journal.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.loadConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML configuration")

	cmd.AddCommand(NewAccessCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))

	return cmd
}

func (o *RootOptions) loadConfig() error {
	if o.ConfigPath == "" {
		o.Config = config.Default()
		return nil
	}
	cfg, err := config.Load(o.Fs, o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	o.Config = cfg
	return nil
}

// logger builds the diagnostic logger. --verbose forces debug; otherwise
// the configured level and format apply.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := o.Config.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(w, hopts)
	if o.Config.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, hopts)
	}
	return slog.New(handler)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout(), Verbose: o.Verbose}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
