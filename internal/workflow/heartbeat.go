package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"lapse/internal/logging"
	"lapse/internal/queue"
)

// HeartbeatMonitor keeps running jobs marked alive and fails jobs whose
// heartbeat stopped.
type HeartbeatMonitor struct {
	store             *queue.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// FailStaleJobs marks starting jobs with an expired heartbeat as failed.
func (h *HeartbeatMonitor) FailStaleJobs(ctx context.Context, logger *slog.Logger) error {
	if h.heartbeatTimeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	failed, err := h.store.FailStale(ctx, cutoff)
	if err != nil {
		return err
	}
	if failed > 0 {
		logger.Warn("failed jobs with expired heartbeat",
			logging.Int64("count", failed),
			logging.String(logging.FieldEventType, "heartbeat_expired"),
			logging.String(logging.FieldImpact, "affected jobs must be resubmitted"),
		)
	}
	return nil
}

// StartLoop updates the heartbeat for jobID until ctx is cancelled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID string) {
	defer wg.Done()
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("heartbeat update cancelled")
				} else {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}
}
