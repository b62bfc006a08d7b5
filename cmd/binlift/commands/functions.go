package commands

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/l3aro/binlift/pkg/loader"
)

// functionsCmd represents the functions command
var functionsCmd = &cobra.Command{
	Use:   "functions <file>",
	Short: "List discovered function entry points",
	Long: `Links the binary and lists every function entry point found in the
symbol tables of all loaded objects, plus the program entry point.

Addresses passed with --function are declared as extra function starts in the
main binary; entries not already known are named user_function_<hex>.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		named, _ := cmd.Flags().GetBool("named")
		rawAddrs, _ := cmd.Flags().GetStringSlice("function")

		addrs, err := parseAddresses(rawAddrs)
		if err != nil {
			return err
		}

		return withLinker(cmd, args[0], func(s *settings, l *loader.ElfLinker) error {
			demangle := s.cfg.Demangle
			if cmd.Flags().Changed("demangle") {
				demangle, _ = cmd.Flags().GetBool("demangle")
			}
			return runFunctions(cmd.OutOrStdout(), l, args[0], functionsOptions{
				Demangle:      demangle,
				Named:         named,
				UserFunctions: addrs,
				JSON:          jsonOutput,
			})
		})
	},
}

type functionsOptions struct {
	Demangle      bool
	Named         bool
	UserFunctions []uint64
	JSON          bool
}

// FunctionInfo is one row of the functions command.
type FunctionInfo struct {
	Address uint64 `json:"address"`
	Name    string `json:"name,omitempty"`
}

func parseAddresses(raw []string) ([]uint64, error) {
	addrs := make([]uint64, 0, len(raw))
	for _, r := range raw {
		a, err := strconv.ParseUint(r, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid function address %q: %w", r, err)
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

func runFunctions(w io.Writer, l *loader.ElfLinker, path string, opts functionsOptions) error {
	if len(opts.UserFunctions) > 0 {
		root, ok := l.Elf(filepath.Base(path))
		if !ok {
			return fmt.Errorf("%s is not loaded", path)
		}
		for _, a := range opts.UserFunctions {
			root.AddUserFunction(a)
		}
	}

	entries, err := l.FunctionEntries()
	if err != nil {
		return err
	}
	if opts.Named {
		entries = lo.Filter(entries, func(e loader.FunctionEntry, _ int) bool { return e.HasName() })
	}

	infos := lo.Map(entries, func(e loader.FunctionEntry, _ int) FunctionInfo {
		name := e.Name
		if opts.Demangle {
			name = e.DemangledName()
		}
		return FunctionInfo{Address: e.Address, Name: name}
	})

	if opts.JSON {
		return printJSON(w, infos)
	}

	fmt.Fprintf(w, "Functions (%d):\n", len(infos))
	for _, f := range infos {
		if f.Name == "" {
			fmt.Fprintf(w, "  0x%08x\n", f.Address)
			continue
		}
		fmt.Fprintf(w, "  0x%08x  %s\n", f.Address, f.Name)
	}
	return nil
}

func init() {
	functionsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	functionsCmd.Flags().Bool("demangle", false, "Demangle C++ symbol names (default from config)")
	functionsCmd.Flags().Bool("named", false, "Only list entries with a symbol name")
	functionsCmd.Flags().StringSliceP("function", "f", nil, "Declare an extra function start in the main binary (hex or decimal)")
}
