package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/l3aro/binlift/pkg/loader"
)

// snapshotCmd represents the snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot <file>",
	Short: "Write the linked image to a msgpack file",
	Long: `Links the binary and writes its memory image, libraries and function
entries to a single msgpack file that other tools can load without the
original binaries.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = filepath.Base(args[0]) + ".msgpack"
		}
		return withLinker(cmd, args[0], func(_ *settings, l *loader.ElfLinker) error {
			return runSnapshot(cmd.OutOrStdout(), l, output)
		})
	},
}

func runSnapshot(w io.Writer, l *loader.ElfLinker, output string) error {
	snap, err := loader.NewSnapshot(l)
	if err != nil {
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating %s: %w", output, err)
	}
	if err := snap.Write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", output, err)
	}

	info, err := os.Stat(output)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %s (%s, %d libraries, %d functions)\n",
		output, humanize.Bytes(uint64(info.Size())), len(snap.Libraries), len(snap.Functions))
	return nil
}

func init() {
	snapshotCmd.Flags().StringP("output", "o", "", "Output file (default: <file>.msgpack)")
}
