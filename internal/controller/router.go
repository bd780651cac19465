package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/reconciler/internal/infrastructure/config"
	"github.com/cassiomorais/reconciler/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/reconciler/internal/middleware"
	"github.com/cassiomorais/reconciler/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Reconciler  WebhookHandler
	Checkout    *service.CheckoutService
	Deliveries  customMW.DeliveryStore
	DeliveryTTL time.Duration
	Verifier    *customMW.WebhookVerifier
	Metrics     *observability.Metrics
	Server      config.ServerConfig
	ServiceName string
	Logger      zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing(deps.ServiceName))
	r.Use(chimw.RealIP)
	r.Use(customMW.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	if deps.Metrics != nil {
		r.Use(customMW.Metrics(deps.Metrics))
		r.Handle("/metrics", promhttp.Handler())
	}

	var checks []HealthCheck
	if deps.Pool != nil {
		checks = append(checks, PostgresCheck(deps.Pool))
	}
	if deps.RedisClient != nil {
		checks = append(checks, RedisCheck(deps.RedisClient))
	}
	healthH := NewHealthController(checks...)
	webhookH := NewWebhookController(deps.Reconciler, deps.Logger)
	checkoutH := NewCheckoutController(deps.Checkout)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	// Signature check runs first so forged deliveries never reach the cache.
	webhookMW := []func(http.Handler) http.Handler{customMW.VerifyWebhook(deps.Verifier, deps.Logger)}
	if deps.Deliveries != nil {
		webhookMW = append(webhookMW, customMW.WebhookDedup(deps.Deliveries, deps.DeliveryTTL, deps.Metrics, deps.Logger))
	}
	r.With(webhookMW...).Post("/webhooks/provider", webhookH.Receive)

	pollMW := []func(http.Handler) http.Handler{}
	if deps.Server.PollRatePerMinute > 0 {
		pollMW = append(pollMW, customMW.RateLimit(deps.Server.PollRatePerMinute))
	}
	r.With(pollMW...).Get("/payments/{id}/status", checkoutH.Status)

	r.Post("/checkout/{planSlug}", checkoutH.Start)
	r.Get("/checkout/success", checkoutH.Success)

	return r
}
