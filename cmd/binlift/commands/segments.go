package commands

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/l3aro/binlift/pkg/loader"
)

// segmentsCmd represents the segments command
var segmentsCmd = &cobra.Command{
	Use:   "segments <file>",
	Short: "List mapped memory segments",
	Long: `Links the binary and lists every memory segment in address order with
its permissions and size.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return withLinker(cmd, args[0], func(_ *settings, l *loader.ElfLinker) error {
			return runSegments(cmd.OutOrStdout(), l, jsonOutput)
		})
	},
}

// SegmentInfo is one row of the segments command.
type SegmentInfo struct {
	Address     uint64 `json:"address"`
	End         uint64 `json:"end"`
	Size        uint64 `json:"size"`
	Permissions string `json:"permissions"`
}

func runSegments(w io.Writer, l loader.Loader, jsonOutput bool) error {
	mem, err := l.Memory()
	if err != nil {
		return err
	}

	segs := mem.Segments()
	infos := make([]SegmentInfo, 0, len(segs))
	for _, s := range segs {
		infos = append(infos, SegmentInfo{
			Address:     s.Address(),
			End:         s.End(),
			Size:        s.Len(),
			Permissions: s.Permissions().String(),
		})
	}

	if jsonOutput {
		return printJSON(w, infos)
	}

	fmt.Fprintf(w, "Segments (%d):\n", len(infos))
	for _, s := range infos {
		fmt.Fprintf(w, "  0x%08x-0x%08x  %s  %s\n", s.Address, s.End, s.Permissions, humanize.IBytes(s.Size))
	}
	return nil
}

func init() {
	segmentsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
