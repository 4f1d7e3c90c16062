package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/myhomebp/myhomebp/internal/config"
	"github.com/myhomebp/myhomebp/internal/domain/bp"
	"github.com/myhomebp/myhomebp/internal/domain/clinic"
	"github.com/myhomebp/myhomebp/internal/domain/patient"
	"github.com/myhomebp/myhomebp/internal/domain/report"
	"github.com/myhomebp/myhomebp/internal/platform/auth"
	"github.com/myhomebp/myhomebp/internal/platform/db"
	"github.com/myhomebp/myhomebp/internal/platform/middleware"
	"github.com/myhomebp/myhomebp/internal/platform/notification"
	"github.com/myhomebp/myhomebp/internal/platform/response"
	"github.com/myhomebp/myhomebp/migrations"
)

const (
	version  = "0.1.0"
	basePath = "/api/v1"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bp-server",
		Short: "MyHomeBP API Server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

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
			schema, _ := cmd.Flags().GetString("schema")
			target, _ := cmd.Flags().GetInt("to")

			cfg, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationsFS(cfg))
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.UpTo(cmd.Context(), schema, target)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies all)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			cfg, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationsFS(cfg))
			statuses, err := migrator.Status(cmd.Context(), schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		TimeZone: cfg.TimeZone,
	}
}

// migrationsFS reads MIGRATIONS_DIR when set and the embedded files
// otherwise.
func migrationsFS(cfg *config.Config) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.FS
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Token revocation
	var revocations auth.RevocationStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		revocations = auth.NewRedisRevocationStore(client, "")
		logger.Info().Msg("using redis token revocation store")
	} else {
		mem := auth.NewMemoryRevocationStore(time.Minute)
		defer mem.Close()
		revocations = mem
	}

	e, err := newServer(cfg, pool, revocations, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
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

// newServer builds the router with every domain wired to pool.
// newMailSender uses SMTP when SMTP_HOST is set. Otherwise mail is only
// logged and every send is recorded as failed.
func newMailSender(cfg *config.Config, logger zerolog.Logger) (notification.Sender, error) {
	if !cfg.SMTPEnabled() {
		logger.Warn().Msg("SMTP_HOST is not set; report emails will be logged, not delivered")
		return notification.NewLogSender(logger), nil
	}
	sender, err := notification.NewSMTPSender(notification.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("configure smtp: %w", err)
	}
	logger.Info().Str("host", cfg.SMTPHost).Int("port", cfg.SMTPPort).Msg("smtp mail delivery enabled")
	return sender, nil
}

func newServer(cfg *config.Config, pool *pgxpool.Pool, revocations auth.RevocationStore, logger zerolog.Logger) (*echo.Echo, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.TokenTTL)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = response.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	headers := middleware.SecurityHeadersConfig{}
	if !cfg.IsDev() {
		headers.HSTSMaxAge = 365 * 24 * time.Hour
	}
	e.Use(middleware.SecurityHeaders(headers))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{echo.HeaderContentDisposition},
	}))
	e.Use(middleware.RequestTimeout(middleware.TimeoutConfig{
		Default: cfg.RequestTimeout,
		PerRoute: map[string]time.Duration{
			basePath + "/reports/generate": 2 * cfg.RequestTimeout,
		},
	}))
	e.Use(auth.JWTMiddleware(auth.JWTConfig{
		Issuer:      cfg.JWTIssuer,
		SigningKey:  []byte(cfg.JWTSecret),
		Revocations: revocations,
		Skipper:     auth.AuthSkipper,
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	apiV1 := e.Group(basePath)

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Blood pressure
	bpSvc := bp.NewService(bp.NewRepository(pool))
	bpSvc.SetLocation(loc)
	bpSvc.SetLogger(logger.With().Str("component", "bp").Logger())
	bp.NewHandler(bpSvc).RegisterRoutes(apiV1)

	// Clinic directory
	clinicSvc := clinic.NewService(
		clinic.NewClinicRepo(pool),
		clinic.NewSpecialityRepo(pool),
		clinic.NewDoctorRepo(pool),
	)
	clinicSvc.SetTx(func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	})
	clinic.NewHandler(clinicSvc).RegisterRoutes(apiV1)

	// Patients
	patientSvc := patient.NewService(
		patient.NewRepository(pool),
		patient.NewClinicalDataRepository(pool),
		clinicSvc,
		bpSvc,
		tokens,
	)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	// Reports
	sender, err := newMailSender(cfg, logger.With().Str("component", "mail").Logger())
	if err != nil {
		return nil, err
	}
	mailer := notification.NewMailer(sender, notification.NewTemplateEngine(), cfg.MailFrom)
	reportSvc := report.NewService(report.NewRepository(pool), bpSvc, patientSvc, mailer)
	reportSvc.SetLogger(logger.With().Str("component", "report").Logger())
	reportSvc.SetBasePath(basePath)
	mailer.SetAttachmentSource(reportSvc)
	report.NewHandler(reportSvc).RegisterRoutes(apiV1)
	notification.NewHandler(mailer).RegisterRoutes(apiV1)

	// Sessions
	auth.NewSessionHandler(revocations, cfg.TokenTTL).RegisterRoutes(apiV1)
	if cfg.AdminEmail != "" {
		auth.NewAdminHandler(auth.AdminCredentials{
			Email:        cfg.AdminEmail,
			PasswordHash: cfg.AdminPasswordHash,
		}, tokens).RegisterRoutes(apiV1)
	} else {
		logger.Warn().Msg("ADMIN_EMAIL is not set; admin login is disabled")
	}

	return e, nil
}
