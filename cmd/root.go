// Package cmd wires Fidelio's command-line surface: one Cobra command per
// spec §6 external interface (start, stop, restart, status, inspect,
// validate, broker) plus the version/self-update commands every teacher-
// shaped CLI carries.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands, per spec §6 "Exit codes": Fidelio only
// distinguishes clean exit from unrecoverable failure, unlike the richer
// exit-code taxonomies some CLIs expose.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeFatal indicates an unrecoverable boot failure or an
	// interrupted run (spec §6).
	ExitCodeFatal = -1
)

// rootCmd is the entry point when fidelio is invoked without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "fidelio",
	Short: "Coordinate a multi-container application through Brokers and a Master",
	Long: `Fidelio starts, stops, and inspects a multi-container application whose
containers discover and wait on each other through a hierarchical,
watch-based coordination store. One Broker runs inside each container;
one Master per application lays out the coordination-store tree and
launches the containers that make it up.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command, typically called from
// main with a build-time-injected value.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the CLI's entry point, called from main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "fidelio version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps any non-nil error to §6's single failure exit code.
// Fidelio's exit-code taxonomy is deliberately flat (unlike the teacher's
// richer per-error-kind dispatch): every RunE error — a *broker.FatalError,
// a *master.InvalidSchemaError, or anything else — is an unrecoverable
// boot failure or an interrupted run, both of which exit -1 per spec §6.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	return ExitCodeFatal
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newRestartCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newBrokerCmd())
	rootCmd.AddCommand(newValidateCmd())
}
