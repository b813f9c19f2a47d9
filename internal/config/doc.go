// Package config loads, validates, and defaults reckon's TOML configuration.
//
// Configuration resolves from an explicit --config path, then ./reckon.toml,
// then ~/.config/reckon/config.toml. Missing files fall back to repository
// defaults so read-only commands work out of the box. All path fields are
// expanded (~ and relative segments) during Load; Validate enforces the
// confidence threshold ordering auto_create <= oracle_min <= oracle_max <=
// auto_merge that the reconcile engine depends on.
package config
