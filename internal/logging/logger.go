package logging

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"log/slog"

	"github.com/authava/authgate/internal/config"
)

// New builds the process-wide logger: JSON or text handler at the configured
// level, tagged with the component that emitted it.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json", "":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("logging: unsupported format %q", cfg.Format)
	}

	return slog.New(handler).With(slog.String("component", "authgate-gateway")), nil
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unsupported level %q", raw)
	}
}

// WithRequestID tags logger with the correlation id carried on r's header
// (logging.correlationHeader, e.g. X-Request-Id), so a single forwarded
// request's decision log line can be traced back to the upstream proxy's own
// request id. header == "" or a missing value leaves logger unchanged rather
// than attaching an empty field.
func WithRequestID(logger *slog.Logger, r *http.Request, header string) *slog.Logger {
	if header == "" {
		return logger
	}
	id := r.Header.Get(header)
	if id == "" {
		return logger
	}
	return logger.With(slog.String("request_id", id))
}
