package main

import (
	"context"
	"fmt"
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

	"github.com/huaxi/researchdb/internal/config"
	"github.com/huaxi/researchdb/internal/domain/console"
	"github.com/huaxi/researchdb/internal/domain/dictionary"
	"github.com/huaxi/researchdb/internal/domain/patient"
	"github.com/huaxi/researchdb/internal/domain/search"
	"github.com/huaxi/researchdb/internal/domain/topic"
	"github.com/huaxi/researchdb/internal/platform/auth"
	"github.com/huaxi/researchdb/internal/platform/db"
	"github.com/huaxi/researchdb/internal/platform/middleware"
	"github.com/huaxi/researchdb/internal/workspace"
	"github.com/huaxi/researchdb/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "researchdb-server",
		Short: "Clinical research console API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(catalogCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	return db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "researchdb-server",
	})
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS, ".").Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS, ".").Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the field dictionary catalog",
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a catalog file for structural problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			cat, err := loadCatalog(file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog ok: %d search fields, %d departments, %d hotspots, %d categories, %d indicators\n",
				len(cat.SearchFields), len(cat.Departments), len(cat.ResearchHotspots), len(cat.Categories), len(cat.Indicators))
			return nil
		},
	}
	validateCmd.Flags().String("file", "", "Catalog YAML file (defaults to the built-in catalog)")
	cmd.AddCommand(validateCmd)

	return cmd
}

func loadCatalog(file string) (*dictionary.Catalog, error) {
	if file == "" {
		return dictionary.DefaultCatalog()
	}
	return dictionary.LoadCatalog(file)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// backends holds the collaborators chosen from configuration.
type backends struct {
	dictionary dictionary.Source
	patients   interface {
		patient.Fetcher
		patient.OverviewSource
	}
	analyzer topic.FlowAnalyzer
	topics   topic.Repository
	pinger   db.Pinger
}

func buildBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backends, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	cat, err := loadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, cleanup, err
	}
	b := &backends{dictionary: cat}

	if cfg.RedisURL != "" {
		rdb, err := dictionary.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		b.dictionary = dictionary.NewCachedSource(cat, dictionary.NewRedisCache(rdb, "researchdb:dict:"), cfg.DictionaryCacheTTL, logger)
		logger.Info().Msg("dictionary cache enabled")
	}

	var pool *pgxpool.Pool
	if cfg.UsesPostgres() {
		pool, err = openPool(ctx, cfg)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, pool.Close)
		b.pinger = pool
		b.patients = patient.NewRepoPG(pool)
		b.topics = topic.NewRepoPG(pool)
		logger.Info().Msg("connected to database")
	} else {
		b.patients = patient.NewSynthetic()
		b.topics = topic.NewMemoryRepo(topic.SeedTopics()...)
	}

	b.analyzer = chooseAnalyzer(cfg, pool, logger)
	return b, cleanup, nil
}

// chooseAnalyzer prefers the remote analytics service, then cohort counts
// in PostgreSQL, then the seeded synthetic generator.
func chooseAnalyzer(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) topic.FlowAnalyzer {
	switch {
	case cfg.AnalyticsURL != "":
		return topic.NewRemoteAnalyzer(cfg.AnalyticsURL, topic.RemoteOptions{}, logger)
	case pool != nil:
		return topic.NewCohortAnalyzerPG(pool, topic.DefaultCohortParallelism)
	default:
		return topic.NewSyntheticAnalyzer(time.Now().UnixNano())
	}
}

func newServer(cfg *config.Config, logger zerolog.Logger, b *backends, store *workspace.Store) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.DevUserHeader},
	}))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(echomw.BodyLimit("1M"))

	e.GET("/health", db.HealthHandler(b.pinger))
	e.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"version": version})
	})

	apiV1 := e.Group("/api/v1")

	jwtCfg := auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(cfg.AuthSigningKey)}
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		apiV1.Use(auth.JWTMiddleware(jwtCfg))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	// keyed by user once auth has run
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.DataAccess(logger))

	dictionary.NewHandler(b.dictionary).RegisterRoutes(apiV1)
	patient.NewHandler(b.patients).RegisterRoutes(apiV1)
	search.NewHandler(store).RegisterRoutes(apiV1)
	topic.NewHandler(topic.NewService(b.topics), store).RegisterRoutes(apiV1)
	console.NewHandler(console.DefaultRouter()).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, cleanup, err := buildBackends(ctx, cfg, logger)
	defer cleanup()
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise backends")
		return err
	}

	store := workspace.NewStore(workspace.Deps{
		Dictionary: b.dictionary,
		Patients:   b.patients,
		Analyzer:   b.analyzer,
		PageSize:   cfg.DefaultPageSize,
		Logger:     logger,
	}, cfg.WorkspaceTTL)
	go store.Run(ctx)

	e := newServer(cfg, logger, b, store)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("data_source", cfg.DataSource).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
