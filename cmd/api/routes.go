package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WessleyAI/wessley-trips/pkg/mid"
	"github.com/WessleyAI/wessley-trips/pkg/resilience"
)

func newRouter(s *server, cfg Config, reg *prometheus.Registry) http.Handler {
	httpMetrics := mid.NewHTTPMetrics(reg)
	positions := resilience.NewKeyedLimiter(resilience.LimiterOpts{
		Rate:    cfg.PositionRate,
		Burst:   cfg.PositionBurst,
		IdleTTL: 10 * time.Minute,
	})
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "trips",
		Name:      "position_limiter_keys",
		Help:      "Trips currently tracked by the position rate limiter.",
	}, func() float64 { return float64(positions.Len()) }))

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID, chimiddleware.RealIP)
	r.Use(mid.Recover(s.logger), mid.Logger(s.logger), httpMetrics.Middleware(), mid.CORS(cfg.CORSOrigin))

	r.Get("/api/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Route("/clients", func(r chi.Router) {
		r.Post("/", s.handleRegisterClient)
		r.Get("/", s.handleFindClients)
		r.Route("/{clientId}", func(r chi.Router) {
			r.Get("/", s.handleGetClient)
			r.Post("/vehicles", s.handleRegisterVehicle)
			r.Get("/vehicles", s.handleListVehicles)
			r.Get("/trips", s.handleListTrips)
		})
	})
	r.Get("/vehicles/{licensePlate}", s.handleGetVehicle)

	r.Route("/trips", func(r chi.Router) {
		r.Post("/", s.handleStartTrip)
		r.Route("/{tripId}", func(r chi.Router) {
			r.Get("/", s.handleGetTrip)
			r.With(mid.RateLimit(positions, tripKey)).Post("/positions", s.handleRecordPosition)
			r.Get("/positions", s.handleTripPositions)
			r.Post("/stop", s.handleStopTrip)
		})
	})

	r.Delete("/cleanup", s.handleCleanup)

	return mid.Chain(r, mid.OTel("wessley-trips-api"))
}

func tripKey(r *http.Request) string {
	return chi.URLParam(r, "tripId")
}
