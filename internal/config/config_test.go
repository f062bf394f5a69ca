package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "annacore.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
core:
  thoughts:
    capacity: 100
    source_quota_fraction: 0.5
llm:
  default_provider: anthropic
  extra_unknown_field: true
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
core:
  thoughts:
    capacity: 250
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Core.Thoughts.Capacity != 250 {
		t.Errorf("Capacity = %d, want 250 (explicit value preserved)", cfg.Core.Thoughts.Capacity)
	}
	if cfg.Core.Thoughts.SourceQuotaFrac != 0.4 {
		t.Errorf("SourceQuotaFrac = %v, want default 0.4", cfg.Core.Thoughts.SourceQuotaFrac)
	}
	if cfg.Core.Scheduler.MaintenanceEvery != 20 {
		t.Errorf("MaintenanceEvery = %d, want default 20", cfg.Core.Scheduler.MaintenanceEvery)
	}
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Errorf("DefaultProvider = %q, want default anthropic", cfg.LLM.DefaultProvider)
	}
	if cfg.Jobs.Backend != "memory" {
		t.Errorf("Jobs.Backend = %q, want default memory", cfg.Jobs.Backend)
	}
}

func TestLoadValidatesSourceQuotaFraction(t *testing.T) {
	path := writeConfig(t, `
core:
  thoughts:
    capacity: 10
    source_quota_fraction: 1.5
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "source_quota_fraction") {
		t.Errorf("expected source_quota_fraction error, got %v", err)
	}
}

func TestLoadValidatesCockroachDSN(t *testing.T) {
	path := writeConfig(t, `
jobs:
  backend: cockroach
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "dsn") {
		t.Errorf("expected dsn error, got %v", err)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(basePath, []byte("core:\n  thoughts:\n    capacity: 400\n"), 0o644); err != nil {
		t.Fatalf("WriteFile(base) error = %v", err)
	}

	mainPath := filepath.Join(dir, "annacore.yaml")
	if err := os.WriteFile(mainPath, []byte("$include: base.yaml\nllm:\n  default_provider: openai\n"), 0o644); err != nil {
		t.Fatalf("WriteFile(main) error = %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Core.Thoughts.Capacity != 400 {
		t.Errorf("Capacity = %d, want 400 from included file", cfg.Core.Thoughts.Capacity)
	}
	if cfg.LLM.DefaultProvider != "openai" {
		t.Errorf("DefaultProvider = %q, want openai", cfg.LLM.DefaultProvider)
	}
}

func TestLoadRejectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.yaml")
	bPath := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(aPath, []byte("$include: b.yaml\n"), 0o644); err != nil {
		t.Fatalf("WriteFile(a) error = %v", err)
	}
	if err := os.WriteFile(bPath, []byte("$include: a.yaml\n"), 0o644); err != nil {
		t.Fatalf("WriteFile(b) error = %v", err)
	}

	if _, err := Load(aPath); err == nil {
		t.Fatal("expected include cycle error")
	}
}
