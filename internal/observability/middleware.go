package observability

import (
	"net/http"
	"time"

	"github.com/jkaninda/okapi"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MetricsMiddleware instruments every gateway route: request count and
// duration by method/path/status, an in-flight gauge, and a span per
// request when tracing is on. It also counts queries: when a handler
// stores a classified outcome under QueryOutcomeContextKey, the middleware
// records it after the handler returns. Either argument may be nil.
func MetricsMiddleware(metrics *MetricsCollector, tracer trace.Tracer) okapi.Middleware {
	return func(next okapi.HandlerFunc) okapi.HandlerFunc {
		return func(c *okapi.Context) error {
			r := c.Request()
			method, path := r.Method, r.URL.Path

			if tracer != nil {
				_, span := tracer.Start(r.Context(), "http.request",
					trace.WithAttributes(
						attribute.String("http.method", method),
						attribute.String("http.path", path),
					))
				defer span.End()
			}
			if metrics != nil {
				metrics.ActiveRequests.Inc()
				defer metrics.ActiveRequests.Dec()
			}

			start := time.Now()
			err := next(c)

			// okapi leaves the code zero when the handler never writes
			// one explicitly.
			code := c.Response().StatusCode()
			if code == 0 {
				code = http.StatusOK
			}
			metrics.RecordHTTPRequest(method, path, code, time.Since(start).Seconds())
			metrics.RecordQuery(c.GetString(QueryOutcomeContextKey))
			return err
		}
	}
}
