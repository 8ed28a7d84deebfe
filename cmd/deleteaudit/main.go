// Command deleteaudit is the offline tooling for the deletion audit.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/deleteaudit/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
