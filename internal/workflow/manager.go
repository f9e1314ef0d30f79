package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lapse/internal/config"
	"lapse/internal/logging"
	"lapse/internal/notifications"
	"lapse/internal/queue"
	"lapse/internal/stage"
)

// HandlerSet bundles the engines the manager dispatches to by job kind.
type HandlerSet struct {
	Video stage.Handler
	Photo stage.Handler
}

// Manager coordinates serialized job execution.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	pollInterval time.Duration
	retryDelay   time.Duration
	jobTimeout   time.Duration

	heartbeat *HeartbeatMonitor
	notifier  notifications.Service
	publicURL func(*queue.Job) string

	// gate holds the single execution permit.
	gate chan struct{}
	wake chan struct{}

	mu       sync.RWMutex
	handlers map[queue.Kind]stage.Handler
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	active   *activeJob
	lastErr  error
	lastJob  *queue.Job
}

type activeJob struct {
	job    queue.Job
	cancel context.CancelCauseFunc
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	logger = logging.NewComponentLogger(logger, "workflow")
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryDelay:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		jobTimeout:   cfg.JobTimeout(),
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		notifier: notifications.NewService(cfg),
		gate:     make(chan struct{}, 1),
		wake:     make(chan struct{}, 1),
		handlers: make(map[queue.Kind]stage.Handler),
	}
}

// ConfigureHandlers registers the engines for each job kind.
func (m *Manager) ConfigureHandlers(set HandlerSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = make(map[queue.Kind]stage.Handler, 2)
	if set.Video != nil {
		m.handlers[queue.KindVideo] = set.Video
	}
	if set.Photo != nil {
		m.handlers[queue.KindPhoto] = set.Photo
	}
}

// ConfigureNotifier replaces the result notifier. publicURL, when set,
// supplies the download link included in ready notifications.
func (m *Manager) ConfigureNotifier(svc notifications.Service, publicURL func(*queue.Job) string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if svc != nil {
		m.notifier = svc
	}
	m.publicURL = publicURL
}

func (m *Manager) handlerFor(kind queue.Kind) stage.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handlers[kind]
}
