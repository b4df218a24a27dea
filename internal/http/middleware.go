package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/robertarktes/stadium-tickets/internal/observability"
	"github.com/robertarktes/stadium-tickets/internal/rateLimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprop "go.opentelemetry.io/otel/propagation"
)

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := logger.WithField("request_id", middleware.GetReqID(r.Context()))
			ctx := context.WithValue(r.Context(), loggerKey{}, entry)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			entry.WithFields(map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("request completed")
		})
	}
}

type loggerKey struct{}

// RequestLogger pulls the per-request logger out of the context,
// falling back to the given base logger outside the middleware chain.
func RequestLogger(ctx context.Context, base observability.Logger) observability.Logger {
	if entry, ok := ctx.Value(loggerKey{}).(observability.Logger); ok {
		return entry
	}
	return base
}

// RequireIdempotencyKey guards replayable POSTs. Reservation creation
// is the only endpoint where a client retry must not double-claim.
func RequireIdempotencyKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			http.Error(w, "missing Idempotency-Key", http.StatusBadRequest)
			return
		}
		if len(key) < 16 {
			http.Error(w, "invalid Idempotency-Key", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RateLimitMiddleware(rl *rateLimit.RateLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			if !rl.Allow(r.Context(), "ip:"+ip, 100, time.Minute) {
				observability.RateLimitExceeded.Inc()
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), otelprop.HeaderCarrier(r.Header))
		tracer := otel.Tracer("http")
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
