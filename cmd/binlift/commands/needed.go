package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/binlift/pkg/loader"
)

// neededCmd represents the needed command
var neededCmd = &cobra.Command{
	Use:   "needed <file>",
	Short: "List DT_NEEDED entries of a single file",
	Long: `Parses one ELF file without resolving anything and prints the libraries
named in its dynamic section, in file order.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return runNeeded(cmd.OutOrStdout(), args[0], jsonOutput)
	},
}

func runNeeded(w io.Writer, path string, jsonOutput bool) error {
	e, err := loader.ElfFromFile(path)
	if err != nil {
		return err
	}
	needed, err := e.DtNeeded()
	if err != nil {
		return fmt.Errorf("reading dependencies of %s: %w", path, err)
	}

	if jsonOutput {
		return printJSON(w, needed)
	}
	if len(needed) == 0 {
		fmt.Fprintln(w, "No dependencies.")
		return nil
	}
	for _, name := range needed {
		fmt.Fprintln(w, name)
	}
	return nil
}

func init() {
	neededCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
