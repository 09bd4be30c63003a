package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edtriage/edtriage/internal/config"
	"github.com/edtriage/edtriage/internal/domain/deterioration"
	"github.com/edtriage/edtriage/internal/domain/surge"
	"github.com/edtriage/edtriage/internal/domain/symptoms"
	"github.com/edtriage/edtriage/internal/platform/auth"
	"github.com/edtriage/edtriage/internal/platform/db"
	"github.com/edtriage/edtriage/internal/platform/devicefeed"
	"github.com/edtriage/edtriage/internal/platform/events"
	"github.com/edtriage/edtriage/internal/platform/metrics"
	"github.com/edtriage/edtriage/internal/platform/middleware"
	"github.com/edtriage/edtriage/internal/platform/websocket"
)

const version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "triage-server",
		Short: "ED deterioration risk and surge forecasting server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(rulesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the triage API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			migrator, pool, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			migrator, pool, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(os.Stdout, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func openMigrator(ctx context.Context, dir string) (*db.Migrator, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is required for migrations")
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, os.DirFS(dir)), pool, nil
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the active deterioration rule set as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			engine, err := newEngine(cfg)
			if err != nil {
				return err
			}
			rs := engine.RuleSet()
			rs.Scale = engine.Scale().Levels()
			return rs.WriteYAML(cmd.OutOrStdout())
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}
}

// loadRuleSet prefers RULES_FILE over the built-in RULESET.
func loadRuleSet(cfg *config.Config) (deterioration.RuleSet, error) {
	if cfg.RulesFile != "" {
		return deterioration.LoadRuleSetFile(cfg.RulesFile)
	}
	return deterioration.BuiltIn(cfg.RuleSet)
}

func newEngine(cfg *config.Config) (*deterioration.Engine, error) {
	rs, err := loadRuleSet(cfg)
	if err != nil {
		return nil, err
	}
	var opts []deterioration.Option
	if cfg.PriorityScale != "" {
		scale, err := deterioration.ParseScale(cfg.PriorityScale)
		if err != nil {
			return nil, fmt.Errorf("PRIORITY_SCALE: %w", err)
		}
		opts = append(opts, deterioration.WithScale(scale))
	}
	return deterioration.NewEngine(rs, opts...)
}

func newForecaster(cfg *config.Config) *surge.Forecaster {
	noise := surge.TimeSeeded()
	if cfg.ForecastSeed != 0 {
		noise = surge.SeededSource(cfg.ForecastSeed)
	}
	return surge.NewForecaster(surge.WithNoise(noise), surge.WithLocation(cfg.Location()))
}

type readiness interface {
	IsReady() bool
}

// healthHandler serves GET /health with the readiness of each engine.
func healthHandler(det *deterioration.Service, fc, nlp readiness) echo.HandlerFunc {
	return func(c echo.Context) error {
		ruleset := ""
		if det.IsReady() {
			ruleset = det.Engine().RuleSet().Version
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"version": version,
			"models": map[string]bool{
				"deterioration": det.IsReady(),
				"surge":         fc.IsReady(),
				"nlp":           nlp.IsReady(),
			},
			"ruleset": ruleset,
		})
	}
}

// closer is a publisher holding a broker connection.
type closer interface {
	Close() error
}

// buildPublishers fans events out to the log, the websocket hub and any
// configured broker. Broker connection failures are logged and skipped.
func buildPublishers(cfg *config.Config, hub *websocket.Hub, logger zerolog.Logger) (events.Multi, []closer) {
	pubs := events.Multi{events.NewLogPublisher(logger), hub}
	var closers []closer

	if cfg.NATSURL != "" {
		p, err := events.NewNATSPublisher(events.NATSConfig{
			URL:           cfg.NATSURL,
			Name:          "triage-server",
			SubjectPrefix: cfg.NATSSubjectPrefix,
		}, logger)
		if err != nil {
			logger.Error().Err(err).Msg("nats publisher disabled")
		} else {
			pubs = append(pubs, p)
			closers = append(closers, p)
			logger.Info().Str("url", cfg.NATSURL).Msg("publishing events to nats")
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		p, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logger.Error().Err(err).Msg("kafka publisher disabled")
		} else {
			pubs = append(pubs, p)
			closers = append(closers, p)
			logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing events to kafka")
		}
	}
	return pubs, closers
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logger
	logger := newLogger(cfg.Env)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Error reporting
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
			Release:     "triage-server@" + version,
		}); err != nil {
			logger.Error().Err(err).Msg("sentry disabled")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	var pool *pgxpool.Pool
	if cfg.HistoryEnabled() {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, poolConfig(cfg))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL not set; stored arrival history is disabled")
	}

	m := metrics.New(prometheus.NewRegistry())

	// Events
	hub := websocket.NewHub(logger)
	publisher, closers := buildPublishers(cfg, hub, logger)
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn().Err(err).Msg("close publisher")
			}
		}
	}()

	// Deterioration
	engine, err := newEngine(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load rule set")
	}
	extractor := symptoms.NewExtractor()
	detSvc := deterioration.NewService(engine, logger)
	detSvc.SetPublisher(publisher)
	detSvc.SetRecorder(m)
	detSvc.SetSymptomCounter(extractor)
	logger.Info().
		Str("ruleset", engine.RuleSet().Version).
		Str("scale", engine.Scale().String()).
		Msg("deterioration engine ready")

	// Surge
	var history surge.HistoryRepository
	if pool != nil {
		history = surge.NewHistoryRepoPG(pool)
		if cfg.RedisURL != "" {
			opts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				logger.Fatal().Err(err).Msg("invalid REDIS_URL")
			}
			rdb := redis.NewClient(opts)
			defer rdb.Close()
			cached := surge.NewCachedHistory(history, rdb, cfg.HistoryCacheTTL, logger)
			cached.SetRecorder(m)
			history = cached
			logger.Info().Dur("ttl", cfg.HistoryCacheTTL).Msg("history cache enabled")
		}
	}
	forecaster := newForecaster(cfg)
	surgeSvc := surge.NewService(forecaster, history, cfg.HistoryDays, logger)
	surgeSvc.SetRecorder(m)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.HospitalHeader},
	}))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		jwtCfg := auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			Skipper:    auth.AuthSkipper,
			QueryParam: auth.TokenQueryParam,
		}
		if cfg.AuthSigningKey != "" {
			jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
		}
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Health and metrics
	e.GET("/health", healthHandler(detSvc, forecaster, extractor))
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	// API groups
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	deterioration.NewHandler(detSvc).RegisterRoutes(apiV1)
	surge.NewHandler(surgeSvc, cfg.DefaultHoursAhead).RegisterRoutes(apiV1)
	symptoms.NewHandler(extractor).RegisterRoutes(apiV1)

	// Realtime push
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e.Group(""))

	// Background surge monitor
	if surgeSvc.HistoryEnabled() && cfg.SurgeMonitorInterval > 0 {
		monitor := surge.NewMonitor(surgeSvc, publisher, cfg.SurgeMonitorInterval, cfg.DefaultHoursAhead, logger)
		go func() {
			if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("surge monitor stopped")
			}
		}()
	}

	// Bedside device feed
	if cfg.MQTTBrokerURL != "" {
		client, err := devicefeed.Dial(cfg.MQTTBrokerURL, cfg.MQTTClientID, logger)
		if err != nil {
			logger.Error().Err(err).Msg("device feed disabled")
		} else {
			feed := devicefeed.NewFeed(client, cfg.MQTTVitalsTopic, detSvc, logger)
			feed.SetRecorder(m)
			if err := feed.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("device feed disabled")
			} else {
				defer feed.Stop()
			}
			defer client.Disconnect(250)
		}
	}

	// Start server
	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Msg("starting triage server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return e.Shutdown(shutdownCtx)
}
