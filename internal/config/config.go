package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	AuthMode       string        `mapstructure:"AUTH_MODE"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	HistoryCacheTTL time.Duration `mapstructure:"HISTORY_CACHE_TTL"`
	MigrationsDir   string        `mapstructure:"MIGRATIONS_DIR"`

	NATSURL           string   `mapstructure:"NATS_URL"`
	NATSSubjectPrefix string   `mapstructure:"NATS_SUBJECT_PREFIX"`
	KafkaBrokers      []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic        string   `mapstructure:"KAFKA_TOPIC"`
	MQTTBrokerURL     string   `mapstructure:"MQTT_BROKER_URL"`
	MQTTVitalsTopic   string   `mapstructure:"MQTT_VITALS_TOPIC"`
	MQTTClientID      string   `mapstructure:"MQTT_CLIENT_ID"`
	SentryDSN         string   `mapstructure:"SENTRY_DSN"`

	RuleSet       string `mapstructure:"RULESET"`
	RulesFile     string `mapstructure:"RULES_FILE"`
	PriorityScale string `mapstructure:"PRIORITY_SCALE"`

	ForecastSeed         uint64        `mapstructure:"FORECAST_SEED"`
	DefaultHoursAhead    int           `mapstructure:"DEFAULT_HOURS_AHEAD"`
	HistoryDays          int           `mapstructure:"HISTORY_DAYS"`
	Timezone             string        `mapstructure:"TIMEZONE"`
	SurgeMonitorInterval time.Duration `mapstructure:"SURGE_MONITOR_INTERVAL"`
}

// MaxHoursAhead bounds forecast horizons accepted at the HTTP boundary.
const MaxHoursAhead = 168

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("HISTORY_CACHE_TTL", "5m")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("NATS_SUBJECT_PREFIX", "triage")
	v.SetDefault("KAFKA_TOPIC", "triage-events")
	v.SetDefault("MQTT_VITALS_TOPIC", "ed/+/vitals")
	v.SetDefault("MQTT_CLIENT_ID", "triage-server")
	v.SetDefault("RULESET", "ml-v1")
	v.SetDefault("DEFAULT_HOURS_AHEAD", 6)
	v.SetDefault("HISTORY_DAYS", 7)
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("SURGE_MONITOR_INTERVAL", "5m")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "AUTH_MODE", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
		"AUTH_SIGNING_KEY", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"REQUEST_TIMEOUT", "BODY_LIMIT",
		"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL", "HISTORY_CACHE_TTL", "MIGRATIONS_DIR",
		"NATS_URL", "NATS_SUBJECT_PREFIX", "KAFKA_BROKERS", "KAFKA_TOPIC",
		"MQTT_BROKER_URL", "MQTT_VITALS_TOPIC", "MQTT_CLIENT_ID", "SENTRY_DSN",
		"RULESET", "RULES_FILE", "PRIORITY_SCALE",
		"FORECAST_SEED", "DEFAULT_HOURS_AHEAD", "HISTORY_DAYS", "TIMEZONE", "SURGE_MONITOR_INTERVAL",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	}
	if cfg.KafkaBrokers == nil {
		cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, all requests get admin access.")
		log.Println("WARNING: Set ENV=production and configure AUTH_ISSUER for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. An explicit AUTH_MODE
// wins; otherwise ENV=development means "development" and anything else "jwt".
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// HistoryEnabled reports whether stored arrival history is available.
func (c *Config) HistoryEnabled() bool {
	return c.DatabaseURL != ""
}

// Location resolves TIMEZONE, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "jwt" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}
	if mode == "jwt" && c.AuthIssuer == "" && c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"one of AUTH_ISSUER, AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set when AUTH_MODE is \"jwt\" (current ENV=%q)", c.Env)
	}
	if c.IsProduction() && c.AuthSigningKey != "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is for development only; configure AUTH_JWKS_URL in production")
	}

	if c.RuleSet == "" && c.RulesFile == "" {
		return fmt.Errorf("RULESET or RULES_FILE is required")
	}
	if c.DefaultHoursAhead < 0 || c.DefaultHoursAhead > MaxHoursAhead {
		return fmt.Errorf("DEFAULT_HOURS_AHEAD must be between 0 and %d, got %d", MaxHoursAhead, c.DefaultHoursAhead)
	}
	if c.HistoryDays <= 0 {
		return fmt.Errorf("HISTORY_DAYS must be positive, got %d", c.HistoryDays)
	}
	if c.SurgeMonitorInterval < 0 {
		return fmt.Errorf("SURGE_MONITOR_INTERVAL must not be negative")
	}
	if c.HistoryCacheTTL < 0 {
		return fmt.Errorf("HISTORY_CACHE_TTL must not be negative")
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
		}
	}
	if c.MQTTBrokerURL != "" && c.MQTTVitalsTopic == "" {
		return fmt.Errorf("MQTT_VITALS_TOPIC is required when MQTT_BROKER_URL is set")
	}
	return nil
}
