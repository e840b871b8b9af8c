package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/webhook-ingest/internal/delivery/http/handler"
	"github.com/user/webhook-ingest/internal/delivery/http/middleware"
)

// New builds the gateway router. trustForwardedFor enables X-Forwarded-For
// handling and must only be set behind a trusted proxy, since the client
// address feeds the IP allow-list.
func New(h *handler.Handler, trustForwardedFor bool, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if trustForwardedFor {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/health", h.HandleHealthCheck)

	r.Post("/webhook", h.HandleWebhook)
	r.Route("/api/ingest", func(r chi.Router) {
		r.Post("/webhook", h.HandleWebhook)
		r.Post("/events/{id}/replay", h.HandleReplay)
	})

	return r
}
