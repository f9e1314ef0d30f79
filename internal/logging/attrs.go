package logging

import (
	"log/slog"
	"strings"
)

// Attr is the attribute type accepted by every helper in this package.
type Attr = slog.Attr

// Typed attribute constructors. They are plain aliases of the slog ones so
// call sites only import this package.
var (
	Any      = slog.Any
	Bool     = slog.Bool
	Duration = slog.Duration
	Float64  = slog.Float64
	Int      = slog.Int
	Int64    = slog.Int64
	String   = slog.String
)

// Error records err under the "error" key. A nil error is written as "<nil>"
// so the key is always present on failure lines.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Camera identifies a camera as developer/project/camera.
func Camera(developer, project, camera string) Attr {
	return slog.String("camera", strings.Join([]string{developer, project, camera}, "/"))
}

// Args converts attributes into the variadic form slog.Logger methods take.
func Args(attrs ...Attr) []any {
	args := make([]any, len(attrs))
	for i := range attrs {
		args[i] = attrs[i]
	}
	return args
}

// NewNop returns a logger that drops every record.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewComponentLogger tags logger with the component field. A nil logger
// yields a no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

var warnDefaults = []struct {
	key   string
	value string
}{
	{FieldErrorHint, "check the daemon log for details"},
	{FieldImpact, "processing continues"},
}

// WarnWithContext logs a warning that always carries event_type, error_hint
// and impact. Fields supplied in attrs win over the defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	present := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		present[a.Key] = true
	}
	if !present[FieldEventType] {
		attrs = append(attrs, String(FieldEventType, eventType))
	}
	for _, d := range warnDefaults {
		if !present[d.key] {
			attrs = append(attrs, String(d.key, d.value))
		}
	}
	logger.Warn(msg, Args(attrs...)...)
}
