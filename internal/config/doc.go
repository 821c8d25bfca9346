// Package config loads, validates, and normalizes boorubot configuration.
//
// Configuration is TOML with repository defaults; a missing config file is
// tolerated and falls back to defaults. All path fields are expanded
// (~ and relative paths) before use.
package config
