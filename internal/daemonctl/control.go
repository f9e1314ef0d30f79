package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"lapse/internal/api"
	"lapse/internal/client"
	"lapse/internal/config"
	"lapse/internal/preflight"
	"lapse/internal/queue"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// ErrDaemonNotRunning indicates no daemon holds the instance lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Launch starts a detached `lapse daemon` process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// Running reports whether a daemon holds the instance lock and, when known,
// its PID.
func Running(cfg *config.Config) (bool, int, error) {
	probe := flock.New(cfg.LockPath())
	locked, err := probe.TryLock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("probe daemon lock: %w", err)
	}
	if locked {
		_ = probe.Unlock()
		return false, 0, nil
	}
	pid, _ := ReadPID(cfg.PIDPath())
	return true, pid, nil
}

// ReadPID parses the daemon PID file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %q", path)
	}
	return pid, nil
}

// WaitForAPI polls the daemon status endpoint until it answers.
func WaitForAPI(ctx context.Context, c *client.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		_, err := c.Status(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one is already running and waits
// for its API.
func EnsureStarted(ctx context.Context, cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	running, pid, err := Running(cfg)
	if err != nil {
		return StartResult{}, err
	}
	if running {
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	if err := WaitForAPI(ctx, client.FromConfig(cfg), waitTimeout); err != nil {
		return StartResult{}, err
	}
	pid, _ = ReadPID(cfg.PIDPath())
	return StartResult{State: StartStateStarted, PID: pid}, nil
}

// StopAndTerminate sends SIGTERM to the daemon and force-kills it if it is
// still alive after gracePeriod.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	running, pid, err := Running(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid <= 0 {
		return StopResult{}, fmt.Errorf("unable to determine daemon pid (pid file: %s)", cfg.PIDPath())
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	result := StopResult{PID: pid}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return result, nil
		}
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	if waitForExit(pid, gracePeriod) {
		return result, nil
	}

	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	waitForExit(pid, 2*time.Second)
	_ = os.Remove(cfg.PIDPath())
	result.ForcedKill = true
	return result, nil
}

func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// BuildStatusSnapshot asks the daemon for its status. When no daemon answers
// it reads queue counts from the database directly and runs the environment
// checks locally. online reports which path produced the result.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (status api.DaemonStatus, online bool, err error) {
	if cfg == nil {
		return api.DaemonStatus{}, false, errors.New("configuration not available")
	}
	remote, statusErr := client.FromConfig(cfg).Status(ctx)
	if statusErr == nil {
		return remote, true, nil
	}
	if !client.IsUnavailable(statusErr) {
		return api.DaemonStatus{}, false, statusErr
	}

	status = api.DaemonStatus{
		QueueDBPath:  cfg.QueueDBPath(),
		LockFilePath: cfg.LockPath(),
		Dependencies: api.FromDependencies(preflight.CheckSystemDeps(ctx, cfg)),
		Checks:       api.FromChecks(preflight.RunAll(ctx, cfg)),
	}
	status.Workflow.QueueStats = api.MergeQueueStats(nil)

	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := os.Stat(cfg.QueueDBPath()); err != nil {
		return status, false, nil
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return status, false, nil
	}
	defer store.Close()
	stats := make(map[queue.Kind]map[queue.Status]int, 2)
	for _, kind := range []queue.Kind{queue.KindVideo, queue.KindPhoto} {
		counts, err := store.Stats(queryCtx, kind)
		if err != nil {
			return status, false, nil
		}
		stats[kind] = counts
	}
	status.Workflow.QueueStats = api.MergeQueueStats(stats)
	return status, false, nil
}
