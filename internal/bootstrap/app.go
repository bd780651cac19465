package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/reconciler/internal/domain/payment"
	"github.com/cassiomorais/reconciler/internal/infrastructure/config"
	"github.com/cassiomorais/reconciler/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/reconciler/internal/infrastructure/redis"
	"github.com/cassiomorais/reconciler/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds the process-wide dependencies shared by the api and the worker.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	Catalog *payment.PlanCatalog
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(serviceName, cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("instance_id", cfg.InstanceID).Msg("Starting")

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			go func() {
				<-ctx.Done()
				observability.Shutdown(context.Background(), tp)
			}()
			logger.Info().Msg("Tracing enabled")
		}
	}

	var metrics *observability.Metrics
	if cfg.Observability.EnableMetrics {
		metrics = observability.NewMetrics(metricsNamespace, nil)
		logger.Info().Msg("Metrics initialized")
	}

	catalog := BuildCatalog(cfg.Plans, logger)

	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	return &App{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: metrics,
		Catalog: catalog,
	}, nil
}

// BuildCatalog turns the configured plan table into the catalog. Two slugs
// sharing one provider plan id are reported but kept: the lexically first
// slug wins when resolving that id.
func BuildCatalog(plans map[string]config.PlanConfig, logger zerolog.Logger) *payment.PlanCatalog {
	list := make([]payment.Plan, 0, len(plans))
	for slug, p := range plans {
		list = append(list, payment.Plan{
			Slug:       slug,
			ExternalID: p.ExternalPlanID,
			Name:       p.Name,
			Price:      p.Price,
		})
	}
	catalog := payment.NewPlanCatalog(list)

	for externalID, slugs := range catalog.Collisions() {
		logger.Warn().Str("external_plan_id", externalID).Strs("plan_slugs", slugs).
			Msg("Provider plan id mapped to several plans")
	}
	for _, slug := range catalog.Slugs() {
		if p, _ := catalog.Lookup(slug); p.ExternalID == "" {
			logger.Warn().Str("plan_slug", slug).Msg("Plan has no provider plan id, checkout disabled")
		}
	}
	return catalog
}

func (a *App) Close() {
	a.Redis.Close()
	a.Pool.Close()
}
