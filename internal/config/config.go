package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	GraphDir string `toml:"graph_dir"`
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
}

// Graph describes the layout of the knowledge store.
type Graph struct {
	EntityTypes       []string `toml:"entity_types"`
	Tiers             []string `toml:"tiers"`
	DefaultTier       string   `toml:"default_tier"`
	LowConfidenceTier string   `toml:"low_confidence_tier"`
}

// Matching contains configuration for the match strategies.
type Matching struct {
	Strategies     []string `toml:"strategies"`
	FuzzyThreshold float64  `toml:"fuzzy_threshold"`
	GenericDomains []string `toml:"generic_domains"`
}

// Confidence contains the thresholds driving automatic reconcile decisions.
type Confidence struct {
	AutoMerge  float64 `toml:"auto_merge"`
	AutoUpdate float64 `toml:"auto_update"`
	AutoCreate float64 `toml:"auto_create"`
	OracleMin  float64 `toml:"oracle_min"`
	OracleMax  float64 `toml:"oracle_max"`
}

// Oracle contains connection settings for the decision oracle.
type Oracle struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reckon.
//
// Configuration sections by subsystem:
//   - Paths: knowledge store root plus data and log directories
//   - Graph: entity type and tier layout of the knowledge store
//   - Matching: strategy selection, fuzzy threshold, generic email domains
//   - Confidence: thresholds for auto merge/update/create and the oracle band
//   - Oracle: decision oracle connection settings for ambiguous cases
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Graph      Graph      `toml:"graph"`
	Matching   Matching   `toml:"matching"`
	Confidence Confidence `toml:"confidence"`
	Oracle     Oracle     `toml:"oracle"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reckon/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reckon.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.GraphDir, err = expandPath(c.Paths.GraphDir); err != nil {
		return fmt.Errorf("paths.graph_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	if c.Oracle.APIKey == "" {
		if value, ok := os.LookupEnv("RECKON_ORACLE_API_KEY"); ok {
			c.Oracle.APIKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Oracle.BaseURL) == "" {
		c.Oracle.BaseURL = defaultOracleBaseURL
	}
	if strings.TrimSpace(c.Oracle.Model) == "" {
		c.Oracle.Model = defaultOracleModel
	}
	if c.Oracle.TimeoutSeconds <= 0 {
		c.Oracle.TimeoutSeconds = defaultOracleTimeoutSeconds
	}

	if len(c.Matching.Strategies) == 0 {
		c.Matching.Strategies = defaultStrategies()
	}
	if c.Matching.FuzzyThreshold <= 0 || c.Matching.FuzzyThreshold >= 1 {
		c.Matching.FuzzyThreshold = defaultFuzzyThreshold
	}
	if len(c.Matching.GenericDomains) == 0 {
		c.Matching.GenericDomains = defaultGenericDomains()
	}

	if len(c.Graph.EntityTypes) == 0 {
		c.Graph.EntityTypes = defaultEntityTypes()
	}
	if len(c.Graph.Tiers) == 0 {
		c.Graph.Tiers = defaultTiers()
	}
	if strings.TrimSpace(c.Graph.DefaultTier) == "" {
		c.Graph.DefaultTier = defaultTier
	}
	if strings.TrimSpace(c.Graph.LowConfidenceTier) == "" {
		c.Graph.LowConfidenceTier = defaultLowConfidenceTier
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}

// EnsureDirectories creates the directories the pipeline needs to run.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.GraphDir, c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StagingDBPath returns the path of the staging database file.
func (c *Config) StagingDBPath() string {
	return filepath.Join(c.Paths.DataDir, "staging.db")
}

// SessionDBPath returns the path of the session database file.
func (c *Config) SessionDBPath() string {
	return filepath.Join(c.Paths.DataDir, "sessions.db")
}

// IndexDBPath returns the path of the entity index database file.
func (c *Config) IndexDBPath() string {
	return filepath.Join(c.Paths.DataDir, "index.db")
}

// AuditLogPath returns the path of the append-only audit event log.
func (c *Config) AuditLogPath() string {
	return filepath.Join(c.Paths.DataDir, "audit.jsonl")
}

// Sample returns the embedded sample configuration document.
func Sample() string {
	return sampleConfig
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
