// Package config loads the ambient settings every layer reads at
// startup: the store path, search bounds, and list limits. Precedence:
// ISSUEGRAPH_* env vars, then an optional config.toml, then defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/dotwork/issuegraph/internal/types"
)

// StorageConfig controls where and how the store file is opened.
type StorageConfig struct {
	Path         string `toml:"path"`
	LockTimeout  string `toml:"lock_timeout"`
}

// SearchConfig bounds the Search Service's query pipeline (spec
// §4.10's length/complexity limits, made configurable).
type SearchConfig struct {
	MaxQueryLength int  `toml:"max_query_length"`
	MaxOrTerms     int  `toml:"max_or_terms"`
	AdvancedMode   bool `toml:"advanced_mode"`
}

// ListingConfig bounds unbounded-listing paths (spec §4.8 SAFE_LIMIT).
type ListingConfig struct {
	DefaultLimit int `toml:"default_limit"`
	SafeLimit    int `toml:"safe_limit"`
}

// Config is the typed settings object every service container is
// built from.
type Config struct {
	Storage StorageConfig
	Search  SearchConfig
	Listing ListingConfig
	Debug   bool
}

// Default returns the out-of-the-box configuration, matching the
// constants already declared in the types package.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Path:        ".work/db-issues/issues.db",
			LockTimeout: "30s",
		},
		Search: SearchConfig{
			MaxQueryLength: 500,
			MaxOrTerms:     10,
			AdvancedMode:   false,
		},
		Listing: ListingConfig{
			DefaultLimit: types.DefaultListLimit,
			SafeLimit:    types.MaxListLimit,
		},
	}
}

// Load resolves configuration from, in increasing precedence: the
// defaults, an optional TOML file at tomlPath (skipped when tomlPath is
// empty; a file that cannot be read or decoded makes Load return an
// error), then ISSUEGRAPH_* environment variables via viper.
func Load(tomlPath string) (Config, error) {
	cfg := Default()

	if tomlPath != "" {
		if _, err := toml.DecodeFile(tomlPath, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config file %s: %w", tomlPath, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("ISSUEGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bind := func(key string, dest *string) {
		if err := v.BindEnv(key); err == nil {
			if val := v.GetString(key); val != "" {
				*dest = val
			}
		}
	}
	bind("db_path", &cfg.Storage.Path)
	bind("lock_timeout", &cfg.Storage.LockTimeout)

	if err := v.BindEnv("debug"); err == nil && v.GetBool("debug") {
		cfg.Debug = true
	}

	return cfg, nil
}
