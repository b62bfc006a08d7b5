package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/binlift/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file interactively",
	Long: `Guides you through setting up binlift configuration step by step:
library base addresses, library search paths, the image cache and output
preferences.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func validateHex(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := strconv.ParseUint(s, 0, 64); err != nil {
		return fmt.Errorf("not a number: %s", s)
	}
	return nil
}

func runInit() error {
	cfg := config.DefaultConfig()

	// === SECTION 1: Address layout ===
	libBase := fmt.Sprintf("0x%x", cfg.LibBase)
	libBaseStep := fmt.Sprintf("0x%x", cfg.LibBaseStep)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Library base address").
				Description("The first shared library is placed one step above this address").
				Placeholder(libBase).
				Validate(validateHex).
				Value(&libBase),
			huh.NewInput().
				Title("Library base step").
				Description("Distance between consecutive library base addresses").
				Placeholder(libBaseStep).
				Validate(validateHex).
				Value(&libBaseStep),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	if v, err := strconv.ParseUint(libBase, 0, 64); err == nil {
		cfg.LibBase = v
	}
	if v, err := strconv.ParseUint(libBaseStep, 0, 64); err == nil {
		cfg.LibBaseStep = v
	}

	// === SECTION 2: Library search paths ===
	searchPaths := ""
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Library search paths (optional, separated by " + string(os.PathListSeparator) + ")").
				Description("Searched after the directory of the binary being loaded").
				Placeholder("/usr/lib/i386-linux-gnu").
				Value(&searchPaths),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	if strings.TrimSpace(searchPaths) != "" {
		cfg.SearchPaths = filepath.SplitList(searchPaths)
	}

	// === SECTION 3: Cache and output ===
	useCache := true
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Image cache").
				Description("Keep parsed file images between runs?").
				Affirmative("Yes").
				Negative("No").
				Value(&useCache),
			huh.NewConfirm().
				Title("Demangle C++ names").
				Description("Show demangled names in function listings by default?").
				Affirmative("Yes").
				Negative("No").
				Value(&cfg.Demangle),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	if !useCache {
		cfg.CacheSize = 0
	}

	// === SECTION 4: Config location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Global (~/.binlift/config.yaml)", "global"),
					huh.NewOption("Project (./.binlift/config.yaml)", "project"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalConfigFilePath()
	}

	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	fmt.Printf("Library base: 0x%x (step 0x%x)\n", cfg.LibBase, cfg.LibBaseStep)
	if len(cfg.SearchPaths) > 0 {
		fmt.Printf("Search paths: %s\n", strings.Join(cfg.SearchPaths, ", "))
	}
	if cfg.CacheEnabled() {
		fmt.Printf("Image cache: %s (%d entries)\n", cfg.CachePath, cfg.CacheSize)
	} else {
		fmt.Println("Image cache: disabled")
	}
	fmt.Printf("Demangle: %v\n", cfg.Demangle)
	fmt.Println("================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)
	return nil
}
