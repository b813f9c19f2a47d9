package testsupport

import (
	"path/filepath"
	"testing"

	"reckon/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.GraphDir = filepath.Join(base, "graph")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Oracle.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithConfidence overrides the confidence thresholds on the test config.
func WithConfidence(autoMerge, autoUpdate, autoCreate float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Confidence.AutoMerge = autoMerge
		b.cfg.Confidence.AutoUpdate = autoUpdate
		b.cfg.Confidence.AutoCreate = autoCreate
		b.cfg.Confidence.OracleMin = autoCreate
		b.cfg.Confidence.OracleMax = autoMerge
	}
}

// WithStrategies overrides the enabled match strategies.
func WithStrategies(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Matching.Strategies = names
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.GraphDir)
}
