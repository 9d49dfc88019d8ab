package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/classifier"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/config"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/database"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/logging"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/query"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/routes"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/services"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/store"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/store/mongostore"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/store/pgstore"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	port := pflag.String("port", "", "listen port (overrides PORT)")
	pflag.Parse()

	// Structured logging (JSON to stdout)
	logging.Setup()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load env file", "path", *envFile, "error", err)
	}

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded", "config", cfg)

	// Database (users and system logs always live in Postgres)
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	logging.Setup(pgLogHandler)

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cleanupDone)

	// Issue store
	ctx := context.Background()
	issueStore, mongoClient, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("issue store unavailable", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.UploadPath, 0o755); err != nil {
		slog.Error("failed to create upload directory", "path", cfg.UploadPath, "error", err)
		os.Exit(1)
	}

	// Services
	opts := query.DefaultOptions()
	opts.DefaultLimit = cfg.QueryDefaultLimit
	opts.MaxLimit = cfg.QueryMaxLimit
	compiler, err := query.NewCompiler(store.IssueSchema, opts)
	if err != nil {
		slog.Error("invalid query options", "error", err)
		os.Exit(1)
	}
	cls := classifier.New(classifier.Config{
		BaseURL: cfg.ClassifierURL,
		Timeout: cfg.ClassifierTimeout,
	})
	authService := services.NewAuthService(database.DB, cfg)
	issueService := services.NewIssueService(issueStore, compiler, cls, authService)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	healthHandler := handlers.NewHealthHandler(handlers.PingFunc(func(context.Context) error { return database.Ping() }), issueStore)
	issueHandler := handlers.NewIssueHandler(issueService, handlers.UploadConfigFrom(cfg))

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    int(cfg.MaxFileSize)*5 + 1024*1024,
		ErrorHandler: handlers.ErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${locals:requestid} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Routes
	routes.Setup(app, cfg, authHandler, healthHandler, issueHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if mongoClient != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			slog.Error("mongo disconnect error", "error", err)
		}
		cancel()
	}

	// Close database connections
	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

// openStore returns the issue store selected by STORE_DRIVER. The mongo
// client is nil for the postgres driver.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, *mongo.Client, error) {
	if cfg.StoreDriver == config.StoreDriverMongo {
		client, db, err := database.ConnectMongo(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		st := mongostore.New(db)
		if err := st.EnsureIndexes(ctx); err != nil {
			slog.Warn("mongo index creation failed", "error", err)
		}
		return st, client, nil
	}

	st := pgstore.New(database.DB)
	if err := st.Migrate(); err != nil {
		return nil, nil, err
	}
	return st, nil, nil
}
