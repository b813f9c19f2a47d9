package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"reckon/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[paths]
graph_dir = "` + filepath.Join(dir, "graph") + `"
data_dir = "` + filepath.Join(dir, "data") + `"

[confidence]
auto_merge = 0.97
oracle_max = 0.97

[matching]
fuzzy_threshold = 0.8
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %s to be used, got %s exists=%v", path, resolved, exists)
	}
	if cfg.Confidence.AutoMerge != 0.97 {
		t.Fatalf("expected auto_merge override, got %v", cfg.Confidence.AutoMerge)
	}
	if cfg.Matching.FuzzyThreshold != 0.8 {
		t.Fatalf("expected fuzzy threshold override, got %v", cfg.Matching.FuzzyThreshold)
	}
	if cfg.Confidence.AutoCreate != 0.50 {
		t.Fatalf("expected default auto_create, got %v", cfg.Confidence.AutoCreate)
	}
	if cfg.StagingDBPath() != filepath.Join(dir, "data", "staging.db") {
		t.Fatalf("unexpected staging db path: %s", cfg.StagingDBPath())
	}
}

func TestValidateRejectsBadThresholdOrdering(t *testing.T) {
	cfg := config.Default()
	cfg.Confidence.AutoCreate = 0.8
	cfg.Confidence.OracleMin = 0.6
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for auto_create > oracle_min")
	}
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := config.Default()
	cfg.Matching.Strategies = []string{"alias", "phone_number"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown strategy")
	}
}
