package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/querydesk/querydesk/internal/config"
)

type ctxKey struct{}

const redacted = "[redacted]"

// NewLogger builds the process logger. Attributes that look like credentials
// are replaced before they reach the writer.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{
		Level:       cfg.Observability.LogLevel,
		ReplaceAttr: redactSecrets,
	}
	var handler slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func redactSecrets(_ []string, attr slog.Attr) slog.Attr {
	switch strings.ToLower(attr.Key) {
	case "api_key", "apikey", "authorization", "password", "secret", "dsn":
		return slog.String(attr.Key, redacted)
	}
	return attr
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	traceID, _ := ctx.Value(ctxKey{}).(string)
	return traceID
}
