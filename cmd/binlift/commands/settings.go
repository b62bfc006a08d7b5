package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/binlift/internal/config"
	"github.com/l3aro/binlift/internal/log"
	"github.com/l3aro/binlift/pkg/cache"
	"github.com/l3aro/binlift/pkg/loader"
)

// settings carries what every linking command needs.
type settings struct {
	cfg    *config.Config
	logger log.Logger
	cache  *cache.FileCache
}

// loadSettings merges the config file with the persistent flags.
func loadSettings(cmd *cobra.Command) (*settings, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if _, err := log.ParseLevel(level); err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Verbose = true
	}
	if paths, _ := cmd.Flags().GetStringSlice("search-path"); len(paths) > 0 {
		cfg.SearchPaths = append(paths, cfg.SearchPaths...)
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		cfg.CacheSize = 0
	}

	return newSettings(cfg, os.Stderr)
}

// newSettings builds the logger and, when enabled, restores the file cache.
func newSettings(cfg *config.Config, logOut io.Writer) (*settings, error) {
	s := &settings{
		cfg: cfg,
		logger: log.New(log.LoggerConfig{
			Level:      cfg.Level(),
			JSONOutput: cfg.LogJSON,
			Output:     logOut,
		}),
	}

	if cfg.CacheEnabled() {
		c, err := cache.New(cache.Options{
			MaxSize:  cfg.CacheSize,
			MaxBytes: cfg.CacheMaxBytes,
			OnEvict: func(path string, size int64) {
				s.logger.Debug("evicting cached image", "path", path, "size", size)
			},
		})
		if err != nil {
			return nil, err
		}
		if err := cache.LoadFromFile(c, cfg.CachePath); err != nil {
			s.logger.Warn("ignoring unreadable image cache", "path", cfg.CachePath, "error", err)
			c.Clear()
		}
		s.cache = c
	}

	return s, nil
}

// link loads path and its dependencies according to the settings.
func (s *settings) link(path string) (*loader.ElfLinker, error) {
	opts := loader.LinkerOptions{
		LibBase:        s.cfg.LibBase,
		LibBaseStep:    s.cfg.LibBaseStep,
		MaxSegmentSize: s.cfg.MaxSegmentSize,
		SearchPaths:    s.cfg.SearchPaths,
		Logger:         s.logger,
	}
	if s.cache != nil {
		opts.Reader = s.cache
	}

	l, err := loader.NewElfLinker(path, opts)
	if err != nil {
		return nil, fmt.Errorf("linking %s: %w", path, err)
	}
	return l, nil
}

// close persists the file cache.
func (s *settings) close() error {
	if s.cache == nil {
		return nil
	}
	stats := s.cache.Stats()
	s.logger.Debug("image cache", "entries", stats.Length, "hits", stats.HitCount, "misses", stats.MissCount)
	if err := cache.PersistToFile(s.cache, s.cfg.CachePath); err != nil {
		return fmt.Errorf("saving image cache: %w", err)
	}
	return nil
}

// withLinker runs fn against a linker built from the command's settings.
func withLinker(cmd *cobra.Command, path string, fn func(s *settings, l *loader.ElfLinker) error) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	l, err := s.link(path)
	if err != nil {
		return err
	}
	if err := fn(s, l); err != nil {
		return err
	}
	return s.close()
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
