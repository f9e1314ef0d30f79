package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lapse/internal/fileutil"
	"lapse/internal/logging"
	"lapse/internal/metrics"
	"lapse/internal/queue"
	"lapse/internal/services"
	"lapse/internal/stage"
)

var (
	errJobCancelled = errors.New("job cancelled")
	errJobTimeout   = fmt.Errorf("%w: job exceeded workflow.job_timeout", services.ErrTimeout)
	errShutdown     = errors.New("interrupted by daemon shutdown")
)

// Drain runs queued jobs one at a time until none remain. When another Drain
// holds the permit it returns nil immediately. Job failures are recorded on
// the job; only store errors and cancellation are returned.
func (m *Manager) Drain(ctx context.Context) error {
	select {
	case m.gate <- struct{}{}:
	default:
		return nil
	}
	defer func() { <-m.gate }()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, err := m.store.ClaimNext(ctx)
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}
		m.processJob(ctx, job)
	}
}

func stageName(kind queue.Kind) string {
	if kind == queue.KindPhoto {
		return "archive"
	}
	return "render"
}

func (m *Manager) processJob(parent context.Context, job *queue.Job) {
	started := time.Now()
	kind := string(job.Kind)

	ctx := services.WithJobID(parent, job.ID)
	ctx = services.WithJobKind(ctx, kind)
	ctx = services.WithStage(ctx, stageName(job.Kind))
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, m.logger)

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if m.jobTimeout > 0 {
		var stop context.CancelFunc
		jobCtx, stop = context.WithTimeoutCause(jobCtx, m.jobTimeout, errJobTimeout)
		defer stop()
	}
	m.setActive(job, cancel)
	defer m.setActive(nil, nil)
	metrics.ActiveJobs.Set(1)
	defer metrics.ActiveJobs.Set(0)

	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int("image_count", job.ImageCount),
		logging.Camera(job.DeveloperID, job.ProjectID, job.CameraID),
	)

	handler := m.handlerFor(job.Kind)
	var execErr error
	if handler == nil {
		execErr = fmt.Errorf("no engine registered for %s jobs", job.Kind)
	} else {
		execErr = m.execute(jobCtx, handler, job)
	}

	// Terminal writes must land even when the job context was cancelled.
	persistCtx := context.WithoutCancel(ctx)
	elapsed := time.Since(started)
	metrics.JobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())

	if execErr != nil {
		execErr = annotateCause(parent, jobCtx, execErr)
		m.failJob(persistCtx, logger, job, execErr, elapsed)
		return
	}
	m.completeJob(persistCtx, logger, job, elapsed)
}

// annotateCause prefixes err with the reason the job context ended, when
// that reason is not already part of err.
func annotateCause(parent, jobCtx context.Context, err error) error {
	var cause error
	switch c := context.Cause(jobCtx); {
	case parent.Err() != nil:
		cause = errShutdown
	case errors.Is(c, errJobCancelled), errors.Is(c, errJobTimeout):
		cause = c
	default:
		return err
	}
	if errors.Is(err, cause) {
		return err
	}
	return fmt.Errorf("%w: %w", cause, err)
}

func (m *Manager) execute(ctx context.Context, handler stage.Handler, job *queue.Job) error {
	if err := handler.Prepare(ctx, job); err != nil {
		return err
	}
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	execErr := handler.Execute(ctx, job)
	hbCancel()
	hbWG.Wait()
	if execErr == nil && ctx.Err() != nil {
		execErr = context.Cause(ctx)
	}
	return execErr
}

func (m *Manager) completeJob(ctx context.Context, logger *slog.Logger, job *queue.Job, elapsed time.Duration) {
	elapsedSeconds := job.ElapsedSeconds
	if elapsedSeconds <= 0 {
		elapsedSeconds = elapsed.Seconds()
	}
	patch := queue.ReadyPatch(job.OutputPath, job.OutputSizeBytes, job.OutputDurationSeconds, elapsedSeconds)
	patch.ImageCount = &job.ImageCount
	patch.FrameRate = &job.FrameRate

	updated, err := m.store.Patch(ctx, job.ID, patch)
	if err != nil {
		m.persistFailed(logger, job, err)
		return
	}
	metrics.JobsProcessedTotal.WithLabelValues(string(job.Kind), string(queue.StatusReady)).Inc()
	m.setLastJob(updated)
	logger.Info("job ready",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("output", updated.OutputPath),
		logging.Int64("size_bytes", updated.OutputSizeBytes),
		logging.Duration("elapsed", elapsed),
	)
	m.announce(ctx, logger, updated)
}

func (m *Manager) failJob(ctx context.Context, logger *slog.Logger, job *queue.Job, jobErr error, elapsed time.Duration) {
	message := strings.TrimSpace(jobErr.Error())
	if message == "" {
		message = stageName(job.Kind) + " failed without error detail"
	}
	m.setLastError(jobErr)
	logger.Error("job failed",
		logging.String(logging.FieldEventType, "job_failure"),
		logging.String(logging.FieldErrorKind, services.Kind(jobErr)),
		logging.String(logging.FieldErrorHint, failureHint(jobErr)),
		logging.Error(jobErr),
		logging.Duration("elapsed", elapsed),
	)

	// Execute consumes inputs itself; a job that never reached it still owns
	// them. A failed job keeps no artifact, even one published before cancel.
	m.discard(logger, job.ListPath, job.Render.LogoPath, job.Render.WatermarkPath, job.OutputPath)

	updated, err := m.store.Patch(ctx, job.ID, queue.FailedPatch(message))
	if err != nil {
		m.persistFailed(logger, job, err)
		return
	}
	metrics.JobsProcessedTotal.WithLabelValues(string(job.Kind), string(queue.StatusFailed)).Inc()
	m.setLastJob(updated)
	m.announce(ctx, logger, updated)
}

// announce publishes a terminal job. Delivery failures are logged only.
func (m *Manager) announce(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	m.mu.RLock()
	notifier, publicURL := m.notifier, m.publicURL
	m.mu.RUnlock()
	if notifier == nil || job == nil {
		return
	}

	// The job context may already be cancelled by the time a failure lands.
	ctx = context.WithoutCancel(ctx)
	var err error
	if job.Status == queue.StatusReady {
		link := ""
		if publicURL != nil {
			link = publicURL(job)
		}
		err = notifier.NotifyJobReady(ctx, job, link)
	} else {
		err = notifier.NotifyJobFailed(ctx, job)
	}
	if err != nil {
		logger.Warn("job notification failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldImpact, "job result was not announced"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

func (m *Manager) persistFailed(logger *slog.Logger, job *queue.Job, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		// The record went away before the result landed, so nothing else
		// knows about the artifact.
		m.discard(logger, job.OutputPath)
		logger.Info("job removed while running; result discarded",
			logging.String("output", job.OutputPath),
		)
	case errors.Is(err, queue.ErrInvalidTransition):
		logger.Warn("job already terminal; result discarded",
			logging.Error(err),
			logging.String(logging.FieldEventType, "terminal_conflict"),
		)
	default:
		m.setLastError(err)
		logger.Error("failed to persist job result",
			logging.Error(err),
			logging.String(logging.FieldEventType, "persist_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String("job", job.ID),
		)
	}
}

func (m *Manager) discard(logger *slog.Logger, paths ...string) {
	for _, p := range paths {
		if err := fileutil.RemoveIfExists(p); err != nil {
			logger.Warn("failed to remove job file",
				logging.String("path", p),
				logging.Error(err),
				logging.String(logging.FieldEventType, "job_file_remove_failed"),
				logging.String(logging.FieldImpact, "file remains on disk"),
			)
		}
	}
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, errJobCancelled):
		return "job was cancelled by request"
	case errors.Is(err, errShutdown):
		return "resubmit the job after the daemon restarts"
	case errors.Is(err, services.ErrTimeout), errors.Is(err, errJobTimeout):
		return "raise render.stage_timeout or workflow.job_timeout, or reduce the selection"
	case errors.Is(err, services.ErrMissingListFile):
		return "resubmit the job to regenerate its selection"
	case errors.Is(err, services.ErrTranscode), errors.Is(err, services.ErrExternalTool):
		return "check ffmpeg output in the daemon log"
	case errors.Is(err, services.ErrArchiveWrite):
		return "check free space and permissions in the camera videos directory"
	default:
		return "see error detail"
	}
}
