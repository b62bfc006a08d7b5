package commands

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/l3aro/binlift/pkg/loader"
	"github.com/l3aro/binlift/pkg/memory"
)

// loadCmd represents the load command
var loadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Link a binary and summarize the result",
	Long: `Loads the binary at base address 0, then every library it needs
(transitively) at its own base address, and prints a summary.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return withLinker(cmd, args[0], func(_ *settings, l *loader.ElfLinker) error {
			return runLoad(cmd.OutOrStdout(), l, jsonOutput)
		})
	},
}

// LoadSummary is the result of the load command.
type LoadSummary struct {
	Architecture loader.Architecture  `json:"architecture"`
	ProgramEntry uint64               `json:"program_entry"`
	Libraries    []loader.LibraryInfo `json:"libraries"`
	Segments     int                  `json:"segments"`
	MappedBytes  uint64               `json:"mapped_bytes"`
	Functions    int                  `json:"functions"`
	Named        int                  `json:"named_functions"`
}

func summarize(l *loader.ElfLinker) (*LoadSummary, error) {
	arch, err := l.Architecture()
	if err != nil {
		return nil, err
	}
	mem, err := l.Memory()
	if err != nil {
		return nil, err
	}
	entries, err := l.FunctionEntries()
	if err != nil {
		return nil, err
	}

	return &LoadSummary{
		Architecture: arch,
		ProgramEntry: l.ProgramEntry(),
		Libraries:    l.LibraryInfos(),
		Segments:     mem.Len(),
		MappedBytes:  lo.SumBy(mem.Segments(), func(s memory.Segment) uint64 { return s.Len() }),
		Functions:    len(entries),
		Named:        lo.CountBy(entries, loader.FunctionEntry.HasName),
	}, nil
}

func runLoad(w io.Writer, l *loader.ElfLinker, jsonOutput bool) error {
	summary, err := summarize(l)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(w, summary)
	}

	fmt.Fprintf(w, "Architecture: %s\n", summary.Architecture)
	fmt.Fprintf(w, "Entry point:  0x%x\n", summary.ProgramEntry)
	fmt.Fprintf(w, "\nLibraries (%d):\n", len(summary.Libraries))
	for _, lib := range summary.Libraries {
		fmt.Fprintf(w, "  0x%08x  %-24s %s\n", lib.BaseAddress, lib.Name, lib.Path)
	}
	fmt.Fprintf(w, "\nSegments:  %d (%s mapped)\n", summary.Segments, humanize.Bytes(summary.MappedBytes))
	fmt.Fprintf(w, "Functions: %s (%s named)\n",
		humanize.Comma(int64(summary.Functions)), humanize.Comma(int64(summary.Named)))
	return nil
}

func init() {
	loadCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
