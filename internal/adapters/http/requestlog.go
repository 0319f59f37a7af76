package http

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/ecoleta/internal/pkg/logging"
)

// RequestLoggerMiddleware stores a logger in the user context carrying the
// request ID, the session the path addresses and the trace ID when one is
// active. Sessions and upstream clients log through it downstream.
func RequestLoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var args []any
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			args = append(args, "request_id", rid)
		}
		if kind, id := sessionFromPath(c.Path()); id != "" {
			args = append(args, "session_kind", kind, "session_id", id)
		}
		if sc := trace.SpanContextFromContext(c.UserContext()); sc.HasTraceID() {
			args = append(args, "trace_id", sc.TraceID().String())
		}
		if len(args) > 0 {
			l := logging.FromContext(c.UserContext()).With(args...)
			c.SetUserContext(logging.WithContext(c.UserContext(), l))
		}
		return c.Next()
	}
}

// sessionFromPath extracts the session kind and ID from /v1/browser/:id/...
// and /v1/registrations/:id/... paths.
func sessionFromPath(path string) (kind, id string) {
	for _, prefix := range []string{"/v1/browser/", "/v1/registrations/", "/ws/browser/"} {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" {
			continue
		}
		id, _, _ = strings.Cut(rest, "/")
		kind = strings.Trim(strings.TrimPrefix(prefix, "/v1"), "/")
		if strings.HasPrefix(prefix, "/ws/") {
			kind = "browser"
		}
		return kind, id
	}
	return "", ""
}

// AccessLogMiddleware logs one structured line per request. Probes and
// scrapes are logged at debug level.
func AccessLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		path := c.Path()
		method := c.Method()

		err := c.Next()

		status := c.Response().StatusCode()
		attrs := []slog.Attr{
			slog.String("method", method),
			slog.String("path", path),
			slog.String("route", c.Route().Path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes_out", len(c.Response().Body())),
		}

		level := slog.LevelInfo
		switch {
		case err != nil:
			attrs = append(attrs, slog.String("error", err.Error()))
			level = slog.LevelError
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		case path == "/metrics" || strings.HasPrefix(path, "/v1/health") || strings.HasPrefix(path, "/v1/ready"):
			level = slog.LevelDebug
		}

		logging.FromContext(c.UserContext()).LogAttrs(c.UserContext(), level, fmt.Sprintf("%s %s", method, path), attrs...)
		return err
	}
}
