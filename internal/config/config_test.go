package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("TEST_WAREHOUSE_DSN", "postgres://copilot@db:5432/retail")
	os.Unsetenv("TEST_MISSING_VAR")

	path := writeConfig(t, `{
		"warehouse": {"dsn": "${TEST_WAREHOUSE_DSN}"},
		"redis": {"url": "${TEST_MISSING_VAR:redis://localhost:6379/0}"},
		"server": {"log_level": "${TEST_MISSING_VAR}"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Warehouse.DSN != "postgres://copilot@db:5432/retail" {
		t.Errorf("got DSN %q", cfg.Warehouse.DSN)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("default not applied, got %q", cfg.Redis.URL)
	}
	if cfg.Server.LogLevel != "" {
		t.Errorf("missing var without default should be empty, got %q", cfg.Server.LogLevel)
	}
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("TEST_REDIS_URL", "redis://cache:6379/1")
	path := writeConfig(t, `{"redis": {"url": "${TEST_REDIS_URL:redis://localhost:6379/0}"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Redis.URL != "redis://cache:6379/1" {
		t.Errorf("got %q", cfg.Redis.URL)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("got port %d, want 8080", cfg.Server.Port)
	}
	if cfg.Orchestrator.CapabilityTimeoutMillis != 30000 {
		t.Errorf("got capability timeout %d, want 30000", cfg.Orchestrator.CapabilityTimeoutMillis)
	}
	if cfg.Safety.Threshold != 0.5 {
		t.Errorf("got threshold %v, want 0.5", cfg.Safety.Threshold)
	}
	if cfg.Warehouse.MaxBytesBilled != 1<<30 {
		t.Errorf("got cost ceiling %d, want 1GiB", cfg.Warehouse.MaxBytesBilled)
	}
	if cfg.Warehouse.QueryTimeoutMillis != 10000 {
		t.Errorf("got query timeout %d, want 10000", cfg.Warehouse.QueryTimeoutMillis)
	}
	if cfg.Warehouse.RecencyDays != 90 || cfg.Warehouse.RowLimit != 1000 {
		t.Errorf("got recency %d / row limit %d", cfg.Warehouse.RecencyDays, cfg.Warehouse.RowLimit)
	}
	if len(cfg.Warehouse.LargeTables) == 0 {
		t.Error("expected default large tables")
	}
}

func TestLoadExplicitValuesKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"server": {"port": 9090},
		"safety": {"threshold": 0.8},
		"warehouse": {"max_bytes_billed": 1048576, "large_tables": ["orders"]}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("got port %d", cfg.Server.Port)
	}
	if cfg.Safety.Threshold != 0.8 {
		t.Errorf("got threshold %v", cfg.Safety.Threshold)
	}
	if cfg.Warehouse.MaxBytesBilled != 1048576 {
		t.Errorf("got ceiling %d", cfg.Warehouse.MaxBytesBilled)
	}
	if len(cfg.Warehouse.LargeTables) != 1 || cfg.Warehouse.LargeTables[0] != "orders" {
		t.Errorf("got large tables %v", cfg.Warehouse.LargeTables)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, `not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
