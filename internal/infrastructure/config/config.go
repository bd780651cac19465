package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cassiomorais/reconciler/pkg/retry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

var validate = validator.New()

type Config struct {
	Server         ServerConfig          `mapstructure:"server"`
	Database       DatabaseConfig        `mapstructure:"database"`
	Redis          RedisConfig           `mapstructure:"redis"`
	Provider       ProviderConfig        `mapstructure:"provider"`
	Plans          map[string]PlanConfig `mapstructure:"plans"`
	Notification   NotificationConfig    `mapstructure:"notification"`
	Cancellation   CancellationConfig    `mapstructure:"cancellation"`
	Reconciliation ReconciliationConfig  `mapstructure:"reconciliation"`
	Observability  ObservabilityConfig   `mapstructure:"observability"`
	InstanceID     string                `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	PollRatePerMinute int           `mapstructure:"poll_rate_per_minute"`
	CORS              CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// ProviderConfig describes the hosted checkout provider: its membership API
// and the secret used to sign webhook deliveries.
type ProviderConfig struct {
	Name                    string          `mapstructure:"name"`
	APIKey                  string          `mapstructure:"api_key"`
	APIURL                  string          `mapstructure:"api_url"`
	RequestTimeout          time.Duration   `mapstructure:"request_timeout"`
	WebhookSecret           string          `mapstructure:"webhook_secret"`
	WebhookTolerance        time.Duration   `mapstructure:"webhook_tolerance"`
	MaxAttempts             uint            `mapstructure:"max_attempts"`
	RetryDelays             []time.Duration `mapstructure:"retry_delays"`
	CircuitBreakerThreshold uint32          `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration   `mapstructure:"circuit_breaker_timeout"`
}

// RetryPolicy is the in-call retry budget of the membership API client.
func (c ProviderConfig) RetryPolicy() retry.Policy {
	return retry.Policy{Attempts: c.MaxAttempts, Backoff: c.RetryDelays}
}

type PlanConfig struct {
	ExternalPlanID string `mapstructure:"external_plan_id"`
	Name           string `mapstructure:"name"`
	Price          string `mapstructure:"price"`
}

type NotificationConfig struct {
	SendGridAPIKey  string `mapstructure:"sendgrid_api_key"`
	FromAddress     string `mapstructure:"from_address"`
	FromName        string `mapstructure:"from_name"`
	OperatorAddress string `mapstructure:"operator_address"`
	SupportAddress  string `mapstructure:"support_address"`
	Sandbox         bool   `mapstructure:"sandbox"`
}

type CancellationConfig struct {
	InitialDelay       time.Duration   `mapstructure:"initial_delay"`
	MaxAttempts        uint            `mapstructure:"max_attempts"`
	Backoff            []time.Duration `mapstructure:"backoff"`
	LockTTL            time.Duration   `mapstructure:"lock_ttl"`
	PromoteInterval    time.Duration   `mapstructure:"promote_interval"`
	PromoteBatch       int64           `mapstructure:"promote_batch"`
	OutboxPollInterval time.Duration   `mapstructure:"outbox_poll_interval"`
	OutboxBatch        int             `mapstructure:"outbox_batch"`
	BatchSize          int64           `mapstructure:"batch_size"`
	BlockDuration      time.Duration   `mapstructure:"block_duration"`
	ConsumerGroup      string          `mapstructure:"consumer_group"`
}

// RetryPolicy is the task-level retry budget applied by the worker.
func (c CancellationConfig) RetryPolicy() retry.Policy {
	return retry.Policy{Attempts: c.MaxAttempts, Backoff: c.Backoff}
}

type ReconciliationConfig struct {
	StalenessWindow time.Duration `mapstructure:"staleness_window"`
	DeliveryTTL     time.Duration `mapstructure:"delivery_ttl"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

// DefaultPlanSlugs is the fixed set of purchasable plans.
var DefaultPlanSlugs = []string{"opposition", "guidance", "two-hour", "emergency", "soulmate", "relationship"}

var defaultPlanDisplay = map[string]PlanConfig{
	"guidance":  {Name: "Numerology Reading", Price: "$280"},
	"two-hour":  {Name: "2 Hour Session", Price: "$575"},
	"emergency": {Name: "Emergency Services", Price: "$980"},
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("RECONCILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/reconciler")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if err := validate.Var(c.Provider.APIURL, "required,url"); err != nil {
		errs = append(errs, fmt.Errorf("provider.api_url must be a valid URL"))
	}
	if c.Provider.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("provider.request_timeout must be positive"))
	}
	if c.Provider.MaxAttempts == 0 {
		errs = append(errs, fmt.Errorf("provider.max_attempts must be at least 1"))
	}
	if len(c.Plans) == 0 {
		errs = append(errs, fmt.Errorf("plans must define at least one plan"))
	}
	for _, slug := range c.PlanSlugs() {
		if err := validate.Var(slug, "required,max=64,excludesall= /"); err != nil {
			errs = append(errs, fmt.Errorf("plans: invalid slug %q", slug))
		}
	}
	for field, addr := range map[string]string{
		"notification.from_address":     c.Notification.FromAddress,
		"notification.operator_address": c.Notification.OperatorAddress,
		"notification.support_address":  c.Notification.SupportAddress,
	} {
		if err := validate.Var(addr, "omitempty,email"); err != nil {
			errs = append(errs, fmt.Errorf("%s must be an email address", field))
		}
	}
	if c.Cancellation.MaxAttempts == 0 {
		errs = append(errs, fmt.Errorf("cancellation.max_attempts must be at least 1"))
	}
	if c.Cancellation.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("cancellation.lock_ttl must be positive"))
	}
	if c.Cancellation.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("cancellation.batch_size must be positive"))
	}
	if c.Reconciliation.StalenessWindow <= 0 {
		errs = append(errs, fmt.Errorf("reconciliation.staleness_window must be positive"))
	}

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Provider.APIKey == "" {
			errs = append(errs, fmt.Errorf("provider.api_key required in production"))
		}
		if c.Provider.WebhookSecret == "" {
			errs = append(errs, fmt.Errorf("provider.webhook_secret required in production"))
		}
		if c.Notification.OperatorAddress == "" {
			errs = append(errs, fmt.Errorf("notification.operator_address required in production"))
		}
	}

	return errors.Join(errs...)
}

// PlanSlugs returns the configured plan slugs in a stable order.
func (c *Config) PlanSlugs() []string {
	slugs := make([]string, 0, len(c.Plans))
	for slug := range c.Plans {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.poll_rate_per_minute", 120)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "reconciler")
	v.SetDefault("database.database", "reconciler")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Provider defaults
	v.SetDefault("provider.name", "whop")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.api_url", "https://api.whop.com/api/v1")
	v.SetDefault("provider.request_timeout", "10s")
	v.SetDefault("provider.webhook_secret", "")
	v.SetDefault("provider.webhook_tolerance", "5m")
	v.SetDefault("provider.max_attempts", 3)
	v.SetDefault("provider.retry_delays", []string{"1s", "2s", "4s"})
	v.SetDefault("provider.circuit_breaker_threshold", 5)
	v.SetDefault("provider.circuit_breaker_timeout", "30s")

	// Plans: every slug gets explicit keys so env overrides resolve,
	// e.g. RECONCILER_PLANS_TWO_HOUR_EXTERNAL_PLAN_ID.
	for _, slug := range DefaultPlanSlugs {
		display := defaultPlanDisplay[slug]
		v.SetDefault("plans."+slug+".external_plan_id", "")
		v.SetDefault("plans."+slug+".name", display.Name)
		v.SetDefault("plans."+slug+".price", display.Price)
	}

	// Notification defaults
	v.SetDefault("notification.sendgrid_api_key", "")
	v.SetDefault("notification.from_address", "hello@example.com")
	v.SetDefault("notification.from_name", "Reconciler")
	v.SetDefault("notification.operator_address", "")
	v.SetDefault("notification.support_address", "")
	v.SetDefault("notification.sandbox", false)

	// Cancellation defaults
	v.SetDefault("cancellation.initial_delay", "5s")
	v.SetDefault("cancellation.max_attempts", 3)
	v.SetDefault("cancellation.backoff", []string{"10s", "30s", "60s"})
	v.SetDefault("cancellation.lock_ttl", "60s")
	v.SetDefault("cancellation.promote_interval", "1s")
	v.SetDefault("cancellation.promote_batch", 100)
	v.SetDefault("cancellation.outbox_poll_interval", "2s")
	v.SetDefault("cancellation.outbox_batch", 50)
	v.SetDefault("cancellation.batch_size", 10)
	v.SetDefault("cancellation.block_duration", "2s")
	v.SetDefault("cancellation.consumer_group", "cancellation-workers")

	// Reconciliation defaults
	v.SetDefault("reconciliation.staleness_window", "10m")
	v.SetDefault("reconciliation.delivery_ttl", "24h")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	v.SetDefault("instance_id", defaultInstanceID())
}

// defaultInstanceID is unique per process so that a restarted worker never
// inherits another instance's stream consumer name.
func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "reconciler"
	}
	return host + "-" + uuid.NewString()[:8]
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
