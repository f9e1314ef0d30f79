package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lapse/internal/api"
	"lapse/internal/config"
	"lapse/internal/logging"
	"lapse/internal/metrics"
	"lapse/internal/queue"
	"lapse/internal/services"
	"lapse/internal/staging"
)

// maxRequestBytes bounds submission bodies.
const maxRequestBytes = 1 << 20

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	protected := http.NewServeMux()
	protected.HandleFunc("POST /api/videos", srv.handleSubmitVideo)
	protected.HandleFunc("GET /api/videos", srv.handleList(queue.KindVideo))
	protected.HandleFunc("POST /api/photos", srv.handleSubmitPhoto)
	protected.HandleFunc("GET /api/photos", srv.handleList(queue.KindPhoto))
	protected.HandleFunc("GET /api/jobs/{id}", srv.handleGetJob)
	protected.HandleFunc("DELETE /api/jobs/{id}", srv.handleDeleteJob)
	protected.HandleFunc("GET /api/status", srv.handleStatus)
	protected.Handle("GET /metrics", metrics.Handler())

	mux := http.NewServeMux()
	mux.Handle("/", srv.authMiddleware(token, protected))
	// Artifacts are served directly unless an external server owns the URLs.
	// Links go out in notifications, so this route sits outside the token
	// check and serves published artifacts only.
	if strings.TrimSpace(cfg.Paths.PublicBaseURL) == "" {
		mux.HandleFunc("GET /media/", handleArtifact(cfg.Paths.MediaRoot))
	}

	srv.handler = srv.withRequestLogging(mux)
	return srv
}

// handleArtifact serves video_<id>.mp4 and photos_<id>.zip files below
// root. Stills, working files and directories are reported as not found.
func handleArtifact(root string) http.HandlerFunc {
	files := os.DirFS(root)
	return func(w http.ResponseWriter, r *http.Request) {
		rel := strings.TrimPrefix(r.URL.Path, "/media/")
		if !fs.ValidPath(rel) || !staging.IsArtifact(path.Base(rel)) {
			http.NotFound(w, r)
			return
		}
		info, err := fs.Stat(files, rel)
		if err != nil || !info.Mode().IsRegular() {
			http.NotFound(w, r)
			return
		}
		http.ServeFileFS(w, r, files, rel)
	}
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled; no bind address configured")
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.listener = nil
	s.server = nil
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleSubmitVideo(w http.ResponseWriter, r *http.Request) {
	var req api.VideoRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.daemon.controller.SubmitVideo(r.Context(), req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *apiServer) handleSubmitPhoto(w http.ResponseWriter, r *http.Request) {
	var req api.PhotoRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.daemon.controller.SubmitPhoto(r.Context(), req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *apiServer) handleList(kind queue.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := s.daemon.controller.ListJobs(r.Context(), kind)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.JobListResponse{Items: items})
	}
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.controller.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *apiServer) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.controller.DeleteJob(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		Version:      status.Version,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow, s.daemon.controller.PublicURL),
		Dependencies: api.FromDependencies(status.Dependencies),
		Checks:       api.FromChecks(status.Checks),
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Kind:  "validation",
		})
		return false
	}
	return true
}

// statusFor maps error kinds to HTTP status codes. Empty selections are
// reported as not found.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrEmptySelection), errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	kind := services.Kind(err)
	if code >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.logger).Error("request failed",
			logging.String("path", r.URL.Path),
			logging.String(logging.FieldErrorKind, kind),
			logging.Error(err),
		)
	}
	s.writeJSON(w, code, api.ErrorResponse{Error: err.Error(), Kind: kind})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestLogging tags each request with a correlation id, echoed in the
// X-Request-ID header and carried on the request context.
func (s *apiServer) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := services.WithRequestID(r.Context(), id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
}
