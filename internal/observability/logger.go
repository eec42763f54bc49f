package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/chartgpt/chartgpt/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

const redacted = "[redacted]"

var secretAttrKeys = map[string]struct{}{
	"api_key":       {},
	"authorization": {},
	"dsn":           {},
	"secret_key":    {},
}

// NewLogger builds the service logger. Attributes named like credentials are
// redacted whatever handler is selected.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel, ReplaceAttr: redactSecrets}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
		slog.String("llm_backend", cfg.LLM.Backend),
	)
}

func redactSecrets(_ []string, attr slog.Attr) slog.Attr {
	if _, ok := secretAttrKeys[strings.ToLower(attr.Key)]; ok && attr.Value.Kind() == slog.KindString && attr.Value.String() != "" {
		return slog.String(attr.Key, redacted)
	}
	return attr
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
