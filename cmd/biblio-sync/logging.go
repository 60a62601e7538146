package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/biblio-sync/internal/config"
)

type logConfig struct {
	level  string
	format string
}

// logSettings reads BIBLIO_SYNC_LOG_LEVEL and BIBLIO_SYNC_LOG_FORMAT.
// The unprefixed LOG_LEVEL is honoured as a fallback.
func logSettings() logConfig {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	cfg := logConfig{
		level:  v.GetString("LOG_LEVEL"),
		format: v.GetString("LOG_FORMAT"),
	}
	if cfg.level == "" {
		cfg.level = os.Getenv("LOG_LEVEL")
	}
	return cfg
}

func parseLogLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// newLogHandler builds the process-wide handler: JSON unless the format is
// "text", with trace correlation on every record.
func newLogHandler(w io.Writer, cfg logConfig) slog.Handler {
	level, ok := parseLogLevel(cfg.level)
	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	if strings.EqualFold(cfg.format, "text") {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}
	h := &traceHandler{Handler: base}

	if !ok {
		slog.New(h).Warn("Invalid log level, using INFO", "value", cfg.level)
	}
	return h
}

// traceHandler adds trace_id and span_id to records logged inside a span
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}
