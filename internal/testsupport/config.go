// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"boorubot/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per
// test and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.MediaDir = filepath.Join(base, "media")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Weibo.Enabled = false

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithBooruBaseURL points the booru client at a test server.
func WithBooruBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Booru.BaseURL = url
	}
}

// WithSnapshotDebounce overrides the snapshot amend window in seconds.
func WithSnapshotDebounce(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Hub.SnapshotDebounceSeconds = seconds
	}
}
