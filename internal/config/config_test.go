package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigHasSaneBounds(t *testing.T) {
	cfg := Default()
	if cfg.Listing.DefaultLimit <= 0 || cfg.Listing.SafeLimit < cfg.Listing.DefaultLimit {
		t.Errorf("got %+v", cfg.Listing)
	}
	if cfg.Search.MaxQueryLength != 500 {
		t.Errorf("got %d", cfg.Search.MaxQueryLength)
	}
}

func TestLoadOverridesFromTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[storage]\npath = \"/tmp/custom.db\"\n\n[search]\nmax_query_length = 200\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Path != "/tmp/custom.db" {
		t.Errorf("got %q", cfg.Storage.Path)
	}
	if cfg.Search.MaxQueryLength != 200 {
		t.Errorf("got %d", cfg.Search.MaxQueryLength)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("ISSUEGRAPH_DB_PATH", "/tmp/env.db")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Path != "/tmp/env.db" {
		t.Errorf("got %q", cfg.Storage.Path)
	}
}
