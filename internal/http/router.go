package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/stadium-tickets/internal/observability"
	"github.com/robertarktes/stadium-tickets/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(RateLimitMiddleware(rl))

	r.Get("/v1/matches", h.ListMatches)
	r.Get("/v1/matches/{id}/seats", h.ListSeats)
	r.With(RequireIdempotencyKey).Post("/v1/reservations", h.CreateReservation)
	r.Post("/v1/reservations/{id}/cancel", h.CancelReservation)
	r.Get("/v1/my/reservations", h.MyReservations)

	r.Post("/v1/auth/login", h.Login)
	r.Post("/v1/admin/login", h.AdminLogin)
	r.Get("/v1/admin/match-stats", h.MatchStats)
	r.Get("/v1/admin/abuse", h.AbuseCandidates)
	r.Get("/v1/admin/cancel-history", h.CancelHistory)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
