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
	DataDir  string `toml:"data_dir"`
	MediaDir string `toml:"media_dir"`
	LogDir   string `toml:"log_dir"`
}

// Booru contains configuration for the upstream imageboard listing API.
type Booru struct {
	BaseURL        string `toml:"base_url"`
	PageSize       int    `toml:"page_size"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Sources contains configuration shared by the information-source adapters.
type Sources struct {
	UserAgent      string `toml:"user_agent"`
	KGSAPIKey      string `toml:"kgs_api_key"`
	RequestTimeout int    `toml:"request_timeout"`
	RetryAttempts  int    `toml:"retry_attempts"`
	RetryDelayMS   int    `toml:"retry_delay_ms"`
}

// Hub contains configuration for the tag detail store and snapshot engine.
type Hub struct {
	SnapshotDebounceSeconds int `toml:"snapshot_debounce_seconds"`
}

// Weibo contains configuration for the social-media posting workflow.
type Weibo struct {
	Enabled                bool   `toml:"enabled"`
	CredentialsPath        string `toml:"credentials_path"`
	MaxConsecutiveFailures int    `toml:"max_consecutive_failures"`
	BootstrapBatch         int    `toml:"bootstrap_batch"`
}

// Media contains configuration for downloaded/transcoded media handling.
type Media struct {
	MaxCacheMiB  int `toml:"max_cache_mib"`
	MaxUploadMiB int `toml:"max_upload_mib"`
	GifWidth     int `toml:"gif_width"`
	GifFPS       int `toml:"gif_fps"`
}

// Workflow contains configuration for the background task runner.
type Workflow struct {
	SyncInterval   int `toml:"sync_interval"`
	PostInterval   int `toml:"post_interval"`
	CleanInterval  int `toml:"clean_interval"`
	TaskTimeLimit  int `toml:"task_time_limit"`
	EnrichParallel int `toml:"enrich_parallel"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for boorubot.
//
// Configuration sections by subsystem:
//   - Paths: data, media, and log directories
//   - Booru: upstream imageboard listing API
//   - Sources: information-source HTTP behavior and credentials
//   - Hub: snapshot debounce window
//   - Weibo: posting workflow and circuit breaker
//   - Media: download cache budget
//   - Workflow: task runner intervals and soft time limit
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Booru    Booru    `toml:"booru"`
	Sources  Sources  `toml:"sources"`
	Hub      Hub      `toml:"hub"`
	Weibo    Weibo    `toml:"weibo"`
	Media    Media    `toml:"media"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/boorubot/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
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

	projectPath, err := filepath.Abs("boorubot.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.MediaDir, err = expandPath(c.Paths.MediaDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Weibo.CredentialsPath, err = expandPath(c.Weibo.CredentialsPath); err != nil {
		return err
	}
	c.Booru.BaseURL = strings.TrimRight(strings.TrimSpace(c.Booru.BaseURL), "/")
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.MediaDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "boorubot.db")
}

// DownloadDir returns the directory used for downloaded post media.
func (c *Config) DownloadDir() string {
	return filepath.Join(c.Paths.MediaDir, "booru")
}

// TranscodeDir returns the directory used for transcoded upload media.
func (c *Config) TranscodeDir() string {
	return filepath.Join(c.Paths.MediaDir, "weibo")
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

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
