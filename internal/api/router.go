package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicware/realtime-scheduling/internal/notify"
	"github.com/clinicware/realtime-scheduling/internal/scheduling"
)

type RouterConfig struct {
	Service   *scheduling.Service
	Broker    notify.Broker
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Env       string
	Version   string
	Heartbeat time.Duration
	Logger    zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Provider endpoints
	r.Post("/providers", createProviderHandler(cfg.Service))
	r.Get("/providers", listProvidersHandler(cfg.Service))
	r.Post("/providers/{id}/slots", addAvailabilityHandler(cfg.Service))
	r.Get("/providers/{id}/slots", listAvailabilityHandler(cfg.Service))

	// Notification stream
	sse := NewSSEHandler(cfg.Broker, cfg.Heartbeat, cfg.Logger)
	r.Get("/providers/{id}/events", sse.StreamProviderEvents)

	// Appointment endpoints
	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsByPatientHandler(cfg.Service))
	r.Delete("/appointments/{id}", cancelAppointmentHandler(cfg.Service))

	return r
}
