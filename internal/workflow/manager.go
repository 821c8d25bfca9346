package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"boorubot/internal/config"
	"boorubot/internal/logging"
)

// Manager schedules the recurring tasks on their configured intervals.
type Manager struct {
	cfg    *config.Config
	tasks  *Tasks
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a manager around an assembled task set.
func NewManager(cfg *config.Config, tasks *Tasks, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:    cfg,
		tasks:  tasks,
		logger: logger.With(logging.String(logging.FieldComponent, "workflow")),
	}
}

// Start launches the task loops. Each loop runs its task once
// immediately, then on its interval.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	loops := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context) error
	}{
		{"sync", time.Duration(m.cfg.Workflow.SyncInterval) * time.Second, m.tasks.Sync},
		{"clean", time.Duration(m.cfg.Workflow.CleanInterval) * time.Second, m.tasks.Clean},
	}
	if m.tasks.PostingEnabled() {
		loops = append(loops, struct {
			name     string
			interval time.Duration
			fn       func(context.Context) error
		}{"post", time.Duration(m.cfg.Workflow.PostInterval) * time.Second, m.tasks.Post})
	}

	m.wg.Add(len(loops))
	for _, loop := range loops {
		go m.runLoop(runCtx, loop.name, loop.interval, loop.fn)
	}
	return nil
}

// Stop cancels the task loops and waits for them to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runLoop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	defer m.wg.Done()
	if interval <= 0 {
		interval = time.Minute
	}

	haltLogged := false
	for {
		err := m.runTask(ctx, name, fn)
		switch {
		case err == nil || errors.Is(err, context.Canceled):
			haltLogged = false
		case errors.Is(err, ErrPostingHalted):
			if !haltLogged {
				m.logger.Error("posting disabled until restart",
					logging.String("task", name),
					logging.Error(err))
				haltLogged = true
			}
		default:
			m.logger.Warn("task run failed",
				logging.String("task", name),
				logging.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// runTask executes one task run under a correlation id and the
// configured soft time limit.
func (m *Manager) runTask(ctx context.Context, name string, fn func(context.Context) error) error {
	taskID := uuid.NewString()
	logger := m.logger.With(
		logging.String("task", name),
		logging.String(logging.FieldTaskID, taskID))

	runCtx := ctx
	if limit := m.cfg.Workflow.TaskTimeLimit; limit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(limit)*time.Second)
		defer cancel()
	}

	logger.Debug("task started")
	start := time.Now()
	err := fn(runCtx)
	if err != nil {
		return err
	}
	logger.Debug("task finished", logging.String("elapsed", time.Since(start).Round(time.Millisecond).String()))
	return nil
}
