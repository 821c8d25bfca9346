package main

import (
	"log/slog"
	"strings"
	"sync"

	"boorubot/internal/config"
	"boorubot/internal/hub"
	"boorubot/internal/logging"
	"boorubot/internal/schema"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logLevel resolves the effective log level: the flag wins over the
// configured default.
func (c *commandContext) logLevel(cfg *config.Config) string {
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		return strings.TrimSpace(*c.logLevelFlag)
	}
	return cfg.Logging.Level
}

func (c *commandContext) newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:  c.logLevel(cfg),
		Format: cfg.Logging.Format,
	})
}

// withStore loads configuration, builds a logger, and runs fn against
// an open store.
func (c *commandContext) withStore(fn func(cfg *config.Config, store *hub.Store, logger *slog.Logger) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.newLogger(cfg)
	if err != nil {
		return err
	}
	store, err := hub.Open(cfg, schema.DefaultRegistry())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store, logger)
}
