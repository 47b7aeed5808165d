package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GIST_CONFIG", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8080" || cfg.APIPrefix != "/api" {
		t.Fatalf("unexpected defaults: port=%q prefix=%q", cfg.Port, cfg.APIPrefix)
	}
	if cfg.Gist.DefaultPageSize != 50 || cfg.Gist.SamePropertyJunction != "or" {
		t.Fatalf("unexpected gist defaults: %+v", cfg.Gist)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gist.yaml")
	if err := os.WriteFile(path, []byte("PORT: \"9090\"\nGIST_MAX_PAGE_SIZE: 200\nAPI_PREFIX: /v2/\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GIST_CONFIG", path)
	t.Setenv("PORT", "7070")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("env should win over file, got %q", cfg.Port)
	}
	if cfg.Gist.MaxPageSize != 200 {
		t.Fatalf("file value lost: %d", cfg.Gist.MaxPageSize)
	}
	if cfg.APIPrefix != "/v2" {
		t.Fatalf("prefix not normalised: %q", cfg.APIPrefix)
	}
}

func TestLoadConfigRejectsUnknownJunction(t *testing.T) {
	t.Setenv("GIST_CONFIG", "")
	t.Setenv("GIST_SAME_PROPERTY_JUNCTION", "xor")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unknown junction")
	}
}
