package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"lapse/internal/archive"
	"lapse/internal/config"
	"lapse/internal/daemon"
	"lapse/internal/deps"
	"lapse/internal/logging"
	"lapse/internal/preflight"
	"lapse/internal/queue"
	"lapse/internal/render"
	"lapse/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Version     string
}

// Run starts the lapse daemon and blocks until the context is cancelled or
// SIGINT/SIGTERM arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("lapse-%s.log", runID))

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		JSONPaths:   []string{logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update lapse.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "lapse-*.log", Exclude: []string{logPath}},
	)
	logEnvironment(signalCtx, logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}

	workflowManager := workflow.NewManager(cfg, store, logger)
	registerHandlers(workflowManager, cfg, logger)

	d, err := daemon.New(cfg, store, logger, workflowManager, opts.Version)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check the api bind address and that no other daemon holds the lock"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("lapse daemon shutting down")
	return nil
}

func registerHandlers(mgr *workflow.Manager, cfg *config.Config, logger *slog.Logger) {
	mgr.ConfigureHandlers(workflow.HandlerSet{
		Video: render.NewEngine(cfg, logger, nil),
		Photo: archive.NewPackager(cfg, logger),
	})
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "lapse.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// logEnvironment records dependency and preflight results. Failures are
// reported but do not stop the daemon; affected jobs fail individually.
func logEnvironment(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	statuses := preflight.CheckSystemDeps(ctx, cfg)
	attrs := make([]logging.Attr, 0, len(statuses)*2+1)
	attrs = append(attrs, logging.String(logging.FieldEventType, "dependency_snapshot"))
	for _, s := range statuses {
		key := strings.ToLower(s.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", s.Available),
			logging.String(key+"_binary", s.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		logging.WarnWithContext(logger, "required dependencies missing", "dependency_missing",
			logging.Any("missing", missing),
			logging.String(logging.FieldImpact, "video jobs will fail until installed"),
		)
	}

	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "jobs touching this path may fail"),
		)
	}
}
