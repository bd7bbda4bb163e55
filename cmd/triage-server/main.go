package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/triage/internal/config"
	"github.com/ehr/triage/internal/domain/triage"
	"github.com/ehr/triage/internal/platform/auth"
	"github.com/ehr/triage/internal/platform/cache"
	"github.com/ehr/triage/internal/platform/db"
	"github.com/ehr/triage/internal/platform/middleware"
	"github.com/ehr/triage/internal/platform/validate"
)

const (
	version     = "0.1.0"
	cachePrefix = "triage:"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "triage-server",
		Short:        "Symptom triage API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(catalogCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg != nil && cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if cfg != nil {
		logger = logger.Level(cfg.Level())
	}
	return logger
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, newLogger(nil), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, newLogger(cfg), err
	}
	return cfg, newLogger(cfg), nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Schema:   cfg.DBSchema,
	})
}

// catalogRepos returns the Postgres catalogs, wrapped with the Redis cache
// when REDIS_URL is set. Writers go through the same wrappers so that cached
// lists are invalidated for every server sharing the cache.
func catalogRepos(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (triage.SymptomCatalog, triage.RedFlagCatalog, func(), error) {
	symptoms := triage.NewSymptomRepoPG(pool)
	redFlags := triage.NewRedFlagRepoPG(pool)
	if cfg.RedisURL == "" {
		return symptoms, redFlags, func() {}, nil
	}
	store, client, err := cache.NewRedis(ctx, cfg.RedisURL, cachePrefix)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info().Dur("ttl", cfg.CatalogCacheTTL).Msg("catalog cache enabled")
	s, r := withCatalogCache(symptoms, redFlags, store, cfg.CatalogCacheTTL, logger)
	return s, r, func() { client.Close() }, nil
}

func withCatalogCache(symptoms triage.SymptomCatalog, redFlags triage.RedFlagCatalog, store cache.Store, ttl time.Duration, logger zerolog.Logger) (triage.SymptomCatalog, triage.RedFlagCatalog) {
	return triage.NewCachedSymptomCatalog(symptoms, store, ttl, logger),
		triage.NewCachedRedFlagCatalog(redFlags, store, ttl, logger)
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

func runServer() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.IsDev() {
		logger.Warn().Msg("ENV=development: every request is authenticated as the dev patient with admin rights")
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	symptoms, redFlags, closeCache, err := catalogRepos(ctx, cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeCache()

	svc := triage.NewService(triage.NewSessionRepoPG(pool), symptoms, redFlags)
	svc.SetLogger(logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.DevPatientHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	triage.NewHandler(svc).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
