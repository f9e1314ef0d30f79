package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"lapse/internal/config"
	"lapse/internal/deps"
	"lapse/internal/logging"
	"lapse/internal/notifications"
	"lapse/internal/pipeline"
	"lapse/internal/preflight"
	"lapse/internal/queue"
	"lapse/internal/workflow"
)

// Daemon coordinates the background job processing and the HTTP API and
// enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *queue.Store
	workflow   *workflow.Manager
	controller *pipeline.Controller
	version    string

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Version      string
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	Dependencies []deps.Status
	Checks       []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, version string) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		workflow:   wf,
		controller: pipeline.NewController(cfg, store, wf, logger),
		version:    version,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	wf.ConfigureNotifier(notifications.NewService(cfg), d.controller.PublicURL)
	return d, nil
}

// Start acquires the daemon lock, launches the workflow manager and begins
// serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(d.cfg.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("ensure state dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lapse daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.release()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.release()
		return err
	}

	d.running.Store(true)
	d.logger.Info("lapse daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.Addr()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.workflow.Stop()
	d.release()
	d.running.Store(false)
	d.logger.Info("lapse daemon stopped")
}

func (d *Daemon) release() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the address the API is listening on, or "" before Start.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Handler exposes the API routes without a listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Controller returns the job submission controller.
func (d *Daemon) Controller() *pipeline.Controller {
	return d.controller
}

// Status returns the current daemon status including environment checks.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Version:      d.version,
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Dependencies: preflight.CheckSystemDeps(ctx, d.cfg),
		Checks:       preflight.RunAll(ctx, d.cfg),
	}
}
