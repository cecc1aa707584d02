package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_BRANCH_ID", "3")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "-5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":9090" {
		t.Fatalf("expected :9090, got %s", cfg.Address())
	}
	if cfg.DefaultBranchID != 3 {
		t.Fatalf("expected branch 3, got %d", cfg.DefaultBranchID)
	}
	if cfg.ReportCacheTTLSeconds != 60 {
		t.Fatalf("non-positive ttl must fall back to 60, got %d", cfg.ReportCacheTTLSeconds)
	}
}

func TestLoadReadsConfigFileBelowEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	if err := os.WriteFile(path, []byte("port: \"7070\"\nlow_stock_threshold: 4\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOW_STOCK_THRESHOLD", "6")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("expected port from file, got %s", cfg.Port)
	}
	if cfg.LowStockThreshold != 6 {
		t.Fatalf("environment must win over file, got %v", cfg.LowStockThreshold)
	}
}
