// Package config loads optional on-disk defaults for the player, using
// the same yaml.v3 unmarshal idiom the teacher uses to load its own
// data files.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the defaults a YAML file may supply; CLI flags override
// these field by field.
type Config struct {
	DefaultDir    string `yaml:"default_dir"`
	DefaultVolume int    `yaml:"default_volume"`
	Device        string `yaml:"device"`
	LogLevel      string `yaml:"log_level"`
}

// searchLocations mirrors the teacher's multi-location fallback search,
// adapted to XDG conventions instead of the original's install-tree
// layout.
func searchLocations() []string {
	var locs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		locs = append(locs, filepath.Join(xdg, "wavplayer", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		locs = append(locs, filepath.Join(home, ".config", "wavplayer", "config.yaml"))
	}
	locs = append(locs, "/etc/wavplayer/config.yaml")
	return locs
}

// Load searches the standard locations for a config file and parses the
// first one found. A missing file at every location is not an error: it
// yields a zero-value Config so the caller's flag defaults stand alone.
func Load() (Config, error) {
	var cfg Config

	for _, loc := range searchLocations() {
		data, err := os.ReadFile(loc)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}

	return cfg, nil
}
