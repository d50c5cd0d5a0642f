package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AccessLog writes one structured line per request and tags the active
// span with the route and request id.
func AccessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		ctx := c.Request().Context()

		span := trace.SpanFromContext(ctx)
		span.SetAttributes(attribute.String("Route", c.Path()))
		for _, name := range c.ParamNames() {
			if name == "requestId" {
				span.SetAttributes(attribute.String("RequestId", c.Param(name)))
			}
		}

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		res := c.Response()
		attrs := []any{
			slog.String("method", c.Request().Method),
			slog.String("path", c.Request().URL.Path),
			slog.String("route", c.Path()),
			slog.Int("status", res.Status),
			slog.Int64("bytes", res.Size),
			slog.Duration("latency", time.Since(start)),
			slog.String("remote", c.RealIP()),
			slog.String("module", "access"),
		}
		if sc := span.SpanContext(); sc.HasTraceID() {
			attrs = append(attrs, slog.String("traceId", sc.TraceID().String()))
		}

		level := slog.LevelInfo
		if res.Status >= 500 {
			level = slog.LevelError
		}
		slog.Log(ctx, level, "request", attrs...)

		return nil
	}
}
