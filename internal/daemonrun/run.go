// Package daemonrun wires the daemon process: logger, store, tasks,
// workflow manager, and signal-driven shutdown.
package daemonrun

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"boorubot/internal/config"
	"boorubot/internal/daemon"
	"boorubot/internal/hub"
	"boorubot/internal/logging"
	"boorubot/internal/schema"
	"boorubot/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the bot's daemon runtime loop and blocks until the process
// receives an interrupt or termination signal.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logCfg := *cfg
	logCfg.Logging.Level = level
	logger, err := logging.NewFromConfig(&logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := hub.Open(cfg, schema.DefaultRegistry())
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}

	tasks, err := workflow.NewTasks(cfg, store, logger)
	if err != nil {
		store.Close()
		return err
	}
	manager := workflow.NewManager(cfg, tasks, logger)

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("boorubot daemon shutting down")
	return nil
}
