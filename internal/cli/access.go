package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/deleteaudit/internal/gate"
)

// AccessOptions holds flags for the access command.
type AccessOptions struct {
	*RootOptions
	UsersDir string
	Pattern  string
	User     string
	Machine  string
}

// AccessResult is the JSON payload of the access command.
type AccessResult struct {
	User       string `json:"user"`
	Machine    string `json:"machine"`
	Authorized bool   `json:"authorized"`
	Prefix     string `json:"prefix,omitempty"`
	Source     string `json:"source,omitempty"`
}

// NewAccessCommand creates the access command.
func NewAccessCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccessOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "access",
		Short: "Check whether an operator is on an allow-list",
		Long: `Resolve the allow-list decision the host would make at startup.

Allow-list files are <prefix>_users.<ext> files in the users directory, one
user or machine name per line. The first file that lists the operator
supplies the identity prefix. An unreadable directory denies access.

Without --user and --machine the current login and host name are used.

Examples:
  deleteaudit access --users-dir //fs01/BIM/DeleteLog
  deleteaudit access --config audit.yaml --user ivanov --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccess(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.UsersDir, "users-dir", "", "allow-list directory (default: users_dir from config)")
	cmd.Flags().StringVar(&opts.Pattern, "pattern", "", "allow-list file glob (default: allow_list_pattern from config)")
	cmd.Flags().StringVar(&opts.User, "user", "", "operator login name")
	cmd.Flags().StringVar(&opts.Machine, "machine", "", "workstation name")

	return cmd
}

func runAccess(ctx context.Context, opts *AccessOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	dir := opts.UsersDir
	if dir == "" {
		dir = opts.Config.UsersDir
	}
	if dir == "" {
		return NewExitError(ExitCommandError, "no users directory: pass --users-dir or set users_dir in the config")
	}
	pattern := opts.Pattern
	if pattern == "" {
		pattern = opts.Config.AllowListPattern
	}

	id := gate.Identity{User: opts.User, Machine: opts.Machine}
	if id.User == "" && id.Machine == "" {
		id = gate.CurrentIdentity()
	}

	g := gate.New(gate.NewDirAllowList(opts.Fs, dir, pattern), opts.logger(cmd.ErrOrStderr()))
	d := g.Authorize(ctx, id)

	result := AccessResult{
		User:       id.User,
		Machine:    id.Machine,
		Authorized: d.Authorized,
		Prefix:     d.Prefix,
		Source:     d.Source,
	}
	if !d.Authorized {
		if err := out.Error(ErrCodeDenied, fmt.Sprintf("%s@%s is not on any allow-list in %s", id.User, id.Machine, dir), result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "access denied")
	}

	return out.Success(result, fmt.Sprintf("authorized: %s@%s prefix=%s (%s)\n", id.User, id.Machine, d.Prefix, d.Source))
}
