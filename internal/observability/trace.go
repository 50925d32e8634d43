package observability

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("finitefield.org/storefront/internal/observability")

// Tracer returns the storefront tracer for spans below the request span.
func Tracer() trace.Tracer { return tracer }

// TraceMiddleware continues a W3C traceparent from the caller when present and
// starts a server span around the request.
func TraceMiddleware() func(http.Handler) http.Handler {
	propagator := propagation.TraceContext{}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", r.Method, r.URL.Path), trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
			span.SetAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			)
			if ua := r.UserAgent(); ua != "" {
				span.SetAttributes(attribute.String("user_agent.original", ua))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TraceID returns the trace id carried by the request context, empty if none.
func TraceID(r *http.Request) string {
	sc := trace.SpanContextFromContext(r.Context())
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
