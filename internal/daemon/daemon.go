// Package daemon ties the workflow manager to process lifecycle
// concerns: flock-based locking so only one bot instance runs against a
// data directory, plus a pid file for operators.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/gofrs/flock"

	"boorubot/internal/config"
	"boorubot/internal/hub"
	"boorubot/internal/logging"
	"boorubot/internal/workflow"
)

// Daemon coordinates background processing and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *hub.Store
	workflow *workflow.Manager

	lockPath string
	pidPath  string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *hub.Store, logger *slog.Logger, mgr *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || mgr == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}
	lockPath := filepath.Join(cfg.Paths.DataDir, "boorubot.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: mgr,
		lockPath: lockPath,
		pidPath:  filepath.Join(cfg.Paths.DataDir, "boorubot.pid"),
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the workflow loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another boorubot instance is already running")
	}
	if err := d.writePIDFile(); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		os.Remove(d.pidPath)
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	os.Remove(d.pidPath)
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases its store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the workflow loops are live.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

func (d *Daemon) writePIDFile() error {
	value := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(d.pidPath, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}
