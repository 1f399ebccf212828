package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const redacted = "[redacted]"

// sensitiveKeys are attribute names whose values never reach the log stream.
// Connector settings carry ERP tokens and webhook secrets.
var sensitiveKeys = []string{"api_key", "api_secret", "token", "password", "secret", "authorization"}

// NewJSONLogger is the service logger: JSON to stdout, tagged with the service name.
func NewJSONLogger(service, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, handlerOptions(level))).With("service", service)
}

// NewTextLogger writes human-readable logs for the CLI, which keeps stdout for command output.
func NewTextLogger(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, handlerOptions(level)))
}

func handlerOptions(level string) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: redactAttr,
	}
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if isSensitive(a.Key) && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, redacted)
	}
	return a
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if key == s || strings.HasSuffix(key, "_"+s) {
			return true
		}
	}
	return false
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
