// Package config loads the project's .shipyard.toml release configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/blackbox-fetch/shipyard/pkg/semver"
)

// DefaultFile is the config file name looked up at the repo root.
const DefaultFile = ".shipyard.toml"

// Forge locates the repository on the release forge.
type Forge struct {
	BaseURL string `toml:"base_url"`
	Owner   string `toml:"owner"`
	Repo    string `toml:"repo"`
}

// Config is the project release configuration.
type Config struct {
	Tool          string            `toml:"tool"`
	VersionFile   string            `toml:"version_file"`
	ChangelogFile string            `toml:"changelog_file"`
	Platforms     []string          `toml:"platforms"`
	Remote        string            `toml:"remote"`
	BuildCommand  string            `toml:"build_command"`
	DistDir       string            `toml:"dist_dir"`
	CacheDir      string            `toml:"cache_dir"`
	LockFile      string            `toml:"lock_file"`
	DepsDir       string            `toml:"deps_dir"`
	Channels      map[string]string `toml:"channels"`
	Forge         Forge             `toml:"forge"`
}

// Default is the blackbox_fetch layout the tool grew up with.
func Default() Config {
	return Config{
		Tool:          "blackbox_fetch",
		VersionFile:   "VERSION",
		ChangelogFile: "CHANGELOG.md",
		Platforms:     []string{"windows_amd64", "linux_amd64"},
		Remote:        "origin",
		DistDir:       "dist",
		CacheDir:      filepath.Join(".shipyard", "cache"),
		LockFile:      "poetry.lock",
		DepsDir:       ".venv",
		Channels: map[string]string{
			"release/patch": "patch",
			"release/minor": "minor",
		},
	}
}

// Load reads the config file at dir, layering it over the defaults. A
// missing file yields the defaults unchanged.
func Load(dir string) (Config, error) {
	cfg := Default()
	path := filepath.Join(dir, DefaultFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("load config %q: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Tool == "" {
		return fmt.Errorf("tool name is required")
	}
	if c.VersionFile == "" {
		return fmt.Errorf("version_file is required")
	}
	if len(c.Platforms) == 0 {
		return fmt.Errorf("at least one platform is required")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one release channel is required")
	}
	for branch, rule := range c.Channels {
		if _, err := semver.ParseBumpRule(rule); err != nil {
			return fmt.Errorf("channel %q: %w", branch, err)
		}
	}
	return nil
}

// Policy builds the version policy from the channel table.
func (c Config) Policy() *semver.Policy {
	channels := make(map[string]semver.BumpRule, len(c.Channels))
	for branch, rule := range c.Channels {
		parsed, err := semver.ParseBumpRule(rule)
		if err != nil {
			// Validate runs before Policy; an invalid rule here is a
			// programming error, not user input.
			continue
		}
		channels[branch] = parsed
	}
	return semver.NewPolicy(channels)
}
