package workflow

import (
	"context"

	"lapse/internal/logging"
	"lapse/internal/metrics"
	"lapse/internal/queue"
	"lapse/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running      bool
	Active       *queue.Job
	LastError    string
	LastJob      *queue.Job
	QueueStats   map[queue.Kind]map[queue.Status]int
	EngineHealth map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running}
	if m.active != nil {
		job := m.active.job
		summary.Active = &job
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		job := *m.lastJob
		summary.LastJob = &job
	}
	handlers := make(map[queue.Kind]stage.Handler, len(m.handlers))
	for kind, h := range m.handlers {
		handlers[kind] = h
	}
	m.mu.RUnlock()

	summary.QueueStats = make(map[queue.Kind]map[queue.Status]int, 2)
	for _, kind := range []queue.Kind{queue.KindVideo, queue.KindPhoto} {
		stats, err := m.store.Stats(ctx, kind)
		if err != nil {
			m.logger.Warn("failed to read queue stats", logging.Error(err))
			continue
		}
		summary.QueueStats[kind] = stats
		for _, status := range queue.AllStatuses() {
			metrics.QueueDepth.WithLabelValues(string(kind), string(status)).Set(float64(stats[status]))
		}
	}

	summary.EngineHealth = make(map[string]stage.Health, len(handlers))
	for kind, h := range handlers {
		summary.EngineHealth[stageName(kind)] = h.HealthCheck(ctx)
	}
	return summary
}

// Cancel stops the job with the given id if it is executing. The job ends
// failed. It reports whether a running job was cancelled.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()
	if active == nil || active.job.ID != jobID {
		return false
	}
	active.cancel(errJobCancelled)
	return true
}

func (m *Manager) setActive(job *queue.Job, cancel context.CancelCauseFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job == nil {
		m.active = nil
		return
	}
	m.active = &activeJob{job: *job, cancel: cancel}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		copy := *job
		m.lastJob = &copy
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}
