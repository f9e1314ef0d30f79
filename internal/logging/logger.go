package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"

	"lapse/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level string
	// Format selects the handler for OutputPaths: console or json.
	Format      string
	OutputPaths []string
	// JSONPaths always receive JSON records regardless of Format.
	JSONPaths   []string
	Development bool
}

// New constructs a slog logger using the provided options. When JSON paths
// are configured the console and file handlers are combined with a fanout.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	addSource := opts.Development || level <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}

	outputWriter, err := openWriters(defaultSlice(opts.OutputPaths, []string{"stdout"}))
	if err != nil {
		return nil, err
	}

	var primary slog.Handler
	switch format {
	case "json":
		primary = newJSONHandler(outputWriter, levelVar, addSource)
	case "console":
		primary = newPrettyHandler(outputWriter, levelVar, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	if len(opts.JSONPaths) == 0 {
		return slog.New(primary), nil
	}

	jsonWriter, err := openWriters(opts.JSONPaths)
	if err != nil {
		return nil, err
	}
	return slog.New(slogmulti.Fanout(primary, newJSONHandler(jsonWriter, levelVar, addSource))), nil
}

// NewFromConfig creates a logger using application config defaults. Console
// output goes to stdout and a JSON copy is appended to <log_dir>/lapse.log.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console"})
	}

	opts := Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
	}
	if cfg.Paths.LogDir != "" {
		if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		opts.JSONPaths = []string{filepath.Join(cfg.Paths.LogDir, "lapse.log")}
	}
	return New(opts)
}

// TeeLogger duplicates log output from base into the provided handlers.
func TeeLogger(base *slog.Logger, handlers ...slog.Handler) *slog.Logger {
	all := make([]slog.Handler, 0, len(handlers)+1)
	if base != nil {
		all = append(all, base.Handler())
	}
	for _, h := range handlers {
		if h != nil {
			all = append(all, h)
		}
	}
	switch len(all) {
	case 0:
		return NewNop()
	case 1:
		return slog.New(all[0])
	}
	return slog.New(slogmulti.Fanout(all...))
}

// NewJSONFileHandler opens path for appending and returns a JSON handler
// writing to it along with the file so callers can close it.
func NewJSONFileHandler(path, level string) (slog.Handler, io.Closer, error) {
	if err := ensureLogDir(path); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(level))
	return newJSONHandler(file, levelVar, false), file, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultSlice(value []string, fallback []string) []string {
	if len(value) == 0 {
		return append([]string(nil), fallback...)
	}
	return append([]string(nil), value...)
}

func openWriters(paths []string) (io.Writer, error) {
	seen := map[string]struct{}{}
	var writers []io.Writer

	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}

		switch trimmed {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := ensureLogDir(trimmed); err != nil {
				return nil, err
			}
			file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", trimmed, err)
			}
			writers = append(writers, file)
		}
	}

	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
