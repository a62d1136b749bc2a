package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/backoffice/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "backoffice",
		Short: "Edge gateway for the backoffice web application",
		Long: `backoffice sits in front of the page application and the upstream API.

It exchanges credentials for a session cookie, guards page routes by
session state and role, and forwards /backend/* calls to the upstream
with the session token as a bearer credential.

Configuration comes from the environment and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		tokenCmd(),
		versionCmd(),
	)
	return rootCmd
}

// printError prints err, using the detailed format for gateway errors.
func printError(w io.Writer, err error) {
	if ge, ok := errors.As(err); ok {
		fmt.Fprintln(w, ge.Format())
		return
	}
	fmt.Fprintf(w, "\033[31mError:\033[0m %s\n", err)
}
