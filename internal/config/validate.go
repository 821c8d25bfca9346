package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBooru(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateWeibo(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBooru() error {
	if strings.TrimSpace(c.Booru.BaseURL) == "" {
		return errors.New("booru.base_url must be set")
	}
	if c.Booru.PageSize <= 0 {
		return errors.New("booru.page_size must be positive")
	}
	return ensurePositiveMap(map[string]int{
		"booru.request_timeout": c.Booru.RequestTimeout,
	})
}

func (c *Config) validateSources() error {
	if strings.TrimSpace(c.Sources.UserAgent) == "" {
		return errors.New("sources.user_agent must be set")
	}
	return ensurePositiveMap(map[string]int{
		"sources.request_timeout": c.Sources.RequestTimeout,
		"sources.retry_attempts":  c.Sources.RetryAttempts,
		"sources.retry_delay_ms":  c.Sources.RetryDelayMS,
	})
}

func (c *Config) validateWeibo() error {
	if !c.Weibo.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Weibo.CredentialsPath) == "" {
		return errors.New("weibo.credentials_path must be set when weibo.enabled is true")
	}
	return ensurePositiveMap(map[string]int{
		"weibo.max_consecutive_failures": c.Weibo.MaxConsecutiveFailures,
		"weibo.bootstrap_batch":          c.Weibo.BootstrapBatch,
	})
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"hub.snapshot_debounce_seconds": c.Hub.SnapshotDebounceSeconds,
		"media.max_cache_mib":           c.Media.MaxCacheMiB,
		"media.max_upload_mib":          c.Media.MaxUploadMiB,
		"media.gif_width":               c.Media.GifWidth,
		"media.gif_fps":                 c.Media.GifFPS,
		"workflow.sync_interval":        c.Workflow.SyncInterval,
		"workflow.post_interval":        c.Workflow.PostInterval,
		"workflow.clean_interval":       c.Workflow.CleanInterval,
		"workflow.task_time_limit":      c.Workflow.TaskTimeLimit,
	}); err != nil {
		return err
	}
	if c.Workflow.EnrichParallel <= 0 {
		return errors.New("workflow.enrich_parallel must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
