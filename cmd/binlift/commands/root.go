// Package commands provides the CLI commands for binlift.
package commands

import (
	"github.com/spf13/cobra"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "binlift",
	Short: "binlift - ELF loading and linking for binary analysis",
	Long: `binlift loads an ELF executable into a simulated address space, resolving
its shared-library dependencies, and reports what a lifter would see.

Commands:
  load        Link a binary and summarize the result
  segments    List mapped memory segments
  functions   List discovered function entry points
  needed      List DT_NEEDED entries of a single file
  snapshot    Write the linked image to a msgpack file
  init        Create a configuration file interactively

Use "binlift [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (default: ~/.binlift/config.yaml, ./.binlift/config.yaml)")
	RootCmd.PersistentFlags().Bool("verbose", false, "Verbose logging")
	RootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (default from config)")
	RootCmd.PersistentFlags().StringSliceP("search-path", "L", nil, "Additional library search directory (repeatable)")
	RootCmd.PersistentFlags().Bool("no-cache", false, "Do not use the file image cache")

	RootCmd.AddCommand(loadCmd)
	RootCmd.AddCommand(segmentsCmd)
	RootCmd.AddCommand(functionsCmd)
	RootCmd.AddCommand(neededCmd)
	RootCmd.AddCommand(snapshotCmd)
	RootCmd.AddCommand(initCmd)
}
