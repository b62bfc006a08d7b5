// Package main implements the binlift CLI.
// It loads ELF binaries together with their shared libraries and reports the
// resulting memory layout and function entry points.
package main

import (
	"os"

	"github.com/l3aro/binlift/cmd/binlift/commands"
)

var version = "dev"

func main() {
	commands.RootCmd.Flags().BoolP("version", "v", false, "Print version information")
	commands.RootCmd.SetVersionTemplate(`binlift version {{.Version}}
`)
	commands.RootCmd.Version = version

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
