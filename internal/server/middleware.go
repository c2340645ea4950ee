package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pasteup/internal/logging"
	"pasteup/internal/observability"
)

// observabilityMiddleware traces each request and logs its latency.
func observabilityMiddleware(obs *observability.Observability, logger logging.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		start := time.Now()
		if obs != nil && obs.Tracer != nil {
			ctx, span := obs.Tracer.StartSpan(c.Request.Context(), observability.SpanHTTPServer,
				attribute.String("http.method", c.Request.Method),
			)
			c.Request = c.Request.WithContext(ctx)
			defer func() {
				route := c.FullPath()
				if route == "" {
					route = c.Request.URL.Path
				}
				span.SetAttributes(
					attribute.String("http.route", route),
					attribute.Int("http.status_code", c.Writer.Status()),
				)
				if len(c.Errors) > 0 {
					span.SetStatus(codes.Error, c.Errors.String())
				}
				span.End()
			}()
		}

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		logger.Debug(
			"route=%s method=%s status=%d latency_ms=%.2f bytes=%d",
			route,
			c.Request.Method,
			c.Writer.Status(),
			float64(time.Since(start).Microseconds())/1000.0,
			c.Writer.Size(),
		)
	}
}
