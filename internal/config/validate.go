package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateGraph(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateConfidence(); err != nil {
		return err
	}
	if err := c.validateOracle(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.GraphDir) == "" {
		return errors.New("paths.graph_dir must be set")
	}
	return nil
}

func (c *Config) validateGraph() error {
	if len(c.Graph.EntityTypes) == 0 {
		return errors.New("graph.entity_types must not be empty")
	}
	if !containsFold(c.Graph.Tiers, c.Graph.DefaultTier) {
		return fmt.Errorf("graph.default_tier %q is not in graph.tiers", c.Graph.DefaultTier)
	}
	if !containsFold(c.Graph.Tiers, c.Graph.LowConfidenceTier) {
		return fmt.Errorf("graph.low_confidence_tier %q is not in graph.tiers", c.Graph.LowConfidenceTier)
	}
	return nil
}

func (c *Config) validateMatching() error {
	known := map[string]struct{}{"alias": {}, "fuzzy_name": {}, "email_domain": {}}
	for _, name := range c.Matching.Strategies {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("matching.strategies: unknown strategy %q", name)
		}
	}
	if c.Matching.FuzzyThreshold <= 0 || c.Matching.FuzzyThreshold >= 1 {
		return errors.New("matching.fuzzy_threshold must be between 0 and 1 exclusive")
	}
	return nil
}

func (c *Config) validateConfidence() error {
	for name, value := range map[string]float64{
		"confidence.auto_merge":  c.Confidence.AutoMerge,
		"confidence.auto_update": c.Confidence.AutoUpdate,
		"confidence.auto_create": c.Confidence.AutoCreate,
		"confidence.oracle_min":  c.Confidence.OracleMin,
		"confidence.oracle_max":  c.Confidence.OracleMax,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if c.Confidence.AutoCreate > c.Confidence.OracleMin ||
		c.Confidence.OracleMin > c.Confidence.OracleMax ||
		c.Confidence.OracleMax > c.Confidence.AutoMerge {
		return errors.New("confidence thresholds must satisfy auto_create <= oracle_min <= oracle_max <= auto_merge")
	}
	return nil
}

func (c *Config) validateOracle() error {
	if !c.Oracle.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Oracle.BaseURL) == "" {
		return errors.New("oracle.base_url must be set when the oracle is enabled")
	}
	if strings.TrimSpace(c.Oracle.Model) == "" {
		return errors.New("oracle.model must be set when the oracle is enabled")
	}
	if c.Oracle.TimeoutSeconds <= 0 {
		return errors.New("oracle.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(target)) {
			return true
		}
	}
	return false
}
