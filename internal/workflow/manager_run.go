package workflow

import (
	"context"
	"errors"
	"time"

	"lapse/internal/logging"
	"lapse/internal/queue"
	"lapse/internal/staging"
)

// Start fails jobs left in starting by a previous process and begins the
// background drain loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.handlers) == 0 {
		m.mu.Unlock()
		return errors.New("workflow handlers not configured")
	}
	m.mu.Unlock()

	interrupted, err := m.store.FailInterrupted(ctx)
	if err != nil {
		return err
	}
	if interrupted > 0 {
		m.logger.Warn("failed jobs interrupted by restart",
			logging.Int64("count", interrupted),
			logging.String(logging.FieldEventType, "restart_recovery"),
			logging.String(logging.FieldImpact, "interrupted jobs must be resubmitted"),
		)
	}
	m.sweepOrphans(ctx)

	m.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.runLoop(runCtx)
	m.Notify()
	return nil
}

// Stop terminates background processing and waits for the loop to exit. A
// job running at that moment ends failed.
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

// Notify wakes the drain loop. It never blocks.
func (m *Manager) Notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) runLoop(ctx context.Context) {
	defer m.wg.Done()
	logger := m.logger

	for {
		if ctx.Err() != nil {
			return
		}
		if err := m.heartbeat.FailStaleJobs(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("stale job check failed; stuck jobs may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}

		if err := m.Drain(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("queue drain failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			if !m.sleep(ctx, m.retryDelay) {
				return
			}
			continue
		}

		if !m.waitForWork(ctx) {
			return
		}
	}
}

func (m *Manager) waitForWork(ctx context.Context) bool {
	interval := m.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-m.wake:
		return true
	case <-timer.C:
		return true
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// sweepOrphans removes working files of jobs that are no longer queued. It
// runs before the loop starts, so no job is mid-flight.
func (m *Manager) sweepOrphans(ctx context.Context) {
	queued, err := m.store.List(ctx, queue.Filter{Statuses: []queue.Status{queue.StatusQueued}})
	if err != nil {
		m.logger.Warn("orphan sweep skipped",
			logging.Error(err),
			logging.String(logging.FieldEventType, "staging_cleanup_skipped"),
			logging.String(logging.FieldImpact, "leftover working files are kept"),
		)
		return
	}
	active := make(map[string]struct{}, len(queued))
	for _, job := range queued {
		active[job.ID] = struct{}{}
	}
	result := staging.CleanOrphaned(ctx, m.cfg.Paths.MediaRoot, active, m.logger)
	if len(result.Removed) > 0 {
		m.logger.Info("orphaned working files removed",
			logging.Int("count", len(result.Removed)),
			logging.String(logging.FieldEventType, "staging_cleanup_summary"),
		)
	}
}
