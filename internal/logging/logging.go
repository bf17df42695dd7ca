package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Attribute keys shared across packages.
const (
	KeyService = "service"
	KeyOrderID = "order_id"
	KeyUserID  = "user_id"
	KeyStep    = "step"
	KeyStatus  = "status"
	KeyWorker  = "worker"
	KeyError   = "error"
)

// New returns a JSON logger tagged with the service name.
func New(service, level string, w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(handler).With(KeyService, service)
}

// Discard returns a logger that drops everything, for tests and tools.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Err(err error) slog.Attr {
	return slog.String(KeyError, err.Error())
}
