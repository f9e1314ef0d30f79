package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"lapse/internal/logging"
	"lapse/internal/metrics"
	"lapse/internal/services"
)

const (
	stderrTailBytes = 4096
	waitDelay       = 5 * time.Second
)

// Runner executes one ffmpeg invocation. Implementations must honour ctx
// cancellation by terminating the process.
type Runner interface {
	Run(ctx context.Context, label string, args []string) error
}

// ExecRunner runs the ffmpeg binary as a child process in its own process
// group so a timeout or cancellation kills every descendant.
type ExecRunner struct {
	Binary  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewExecRunner returns a runner for binary bounded by timeout per call.
// A zero timeout leaves invocations bounded only by ctx.
func NewExecRunner(binary string, timeout time.Duration, logger *slog.Logger) *ExecRunner {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &ExecRunner{Binary: binary, Timeout: timeout, Logger: logging.NewComponentLogger(logger, "ffmpeg")}
}

// Run executes ffmpeg with args. Non-zero exits wrap ErrExternalTool with the
// tail of stderr; expiry of the per-call timeout or the caller's deadline
// wraps ErrTimeout.
func (r *ExecRunner) Run(ctx context.Context, label string, args []string) error {
	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, r.Binary, args...)
	configureProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr

	logger := logging.WithContext(ctx, r.Logger)
	logger.Debug("ffmpeg invocation",
		logging.String("label", label),
		logging.String("command", r.Binary+" "+strings.Join(args, " ")),
	)

	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)
	if err == nil {
		metrics.FFmpegInvocationsTotal.WithLabelValues("ok").Inc()
		logger.Debug("ffmpeg finished", logging.String("label", label), logging.Duration("elapsed", elapsed))
		return nil
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		metrics.FFmpegInvocationsTotal.WithLabelValues("timeout").Inc()
		return services.Wrap(services.ErrTimeout, "ffmpeg", label,
			fmt.Sprintf("killed after %s", elapsed.Round(time.Millisecond)), err)
	case errors.Is(runCtx.Err(), context.Canceled):
		metrics.FFmpegInvocationsTotal.WithLabelValues("cancelled").Inc()
		return services.Wrap(services.ErrTransient, "ffmpeg", label, "cancelled", context.Canceled)
	}
	metrics.FFmpegInvocationsTotal.WithLabelValues("failed").Inc()
	detail := strings.TrimSpace(stderr.String())
	if detail == "" {
		detail = "no stderr output"
	}
	return services.Wrap(services.ErrExternalTool, "ffmpeg", label, detail, err)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
