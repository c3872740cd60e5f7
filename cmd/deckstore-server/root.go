// Command deckstore-server runs the deck store as a standalone HTTP
// service, and doubles as the operator's tool for migrating legacy decks
// into the manifest format.
//
// It is grounded on the teacher's registry/root.go: one cobra RootCmd with
// subcommands attached in init(), each subcommand resolving its own
// configuration file argument rather than sharing global flags.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opendeck/deckstore/version"
)

var showVersion bool

func init() {
	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(MigrateCmd)
	MigrateCmd.Flags().BoolVar(&deleteLegacy, "delete-legacy", false, "remove each legacy blob after it converts cleanly")
	RootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "show the version and exit")
	RootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
}

// RootCmd is the main command for the deckstore-server binary.
var RootCmd = &cobra.Command{
	Use:   "deckstore-server",
	Short: "deckstore-server serves and migrates deck documents",
	Long:  "deckstore-server serves and migrates deck documents",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			version.PrintVersion()
			return
		}
		// nolint:errcheck
		cmd.Usage()
	},
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(usageExitCode(err))
	}
}

// usageExitCode maps a top-level Execute error onto the exit codes an
// operator script can branch on: 2 for a usageError (a flag cobra could not
// parse, or a missing configuration path), 1 for everything else.
func usageExitCode(err error) int {
	if _, ok := err.(usageError); ok {
		return 2
	}
	return 1
}

// usageError marks an error as a command-line usage mistake rather than a
// runtime failure, so main can choose exit code 2 over 1.
type usageError struct{ error }
