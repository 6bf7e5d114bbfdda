package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vulntrack/api/internal/config"
	"github.com/vulntrack/api/internal/infra/http"
	"github.com/vulntrack/api/internal/infra/http/routes"
	"github.com/vulntrack/api/internal/infra/postgres"
	"github.com/vulntrack/api/internal/infra/redis"
	"github.com/vulntrack/api/pkg/logger"
	"github.com/vulntrack/api/pkg/migrations"
	"github.com/vulntrack/api/pkg/validator"
)

// @title           VulnTrack API
// @version         1.0
// @description     Vulnerability remediation tracking service: scanner feed import, overdue computation, and risk-acceptance exceptions.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Gateway-minted identity assertion. Format: "Bearer {token}"

// Command line flags.
var (
	showRoutes  = flag.Bool("routes", false, "Print all registered routes and exit")
	routeFormat = flag.String("route-format", "table", "Route output format: table, json, csv, simple")
	routeMethod = flag.String("route-method", "", "Filter routes by HTTP method")
	routePath   = flag.String("route-path", "", "Filter routes containing this path")
	routeSort   = flag.String("route-sort", "path", "Sort routes by: path, method, handler")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	// ==========================================================================
	// Configuration & Logger
	// ==========================================================================
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env)

	// ==========================================================================
	// Infrastructure
	// ==========================================================================
	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)
	log.Info("database connected")

	if cfg.Database.AutoMigrate {
		if err := migrations.NewRunner(db.DB).Up(ctx); err != nil {
			log.Error("failed to run migrations", "error", err)
			return 1
		}
		log.Info("database migrations applied")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.New(&cfg.Redis, log)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			return 1
		}
		defer closeWithLog(redisClient, "redis", log)
		log.Info("redis connected")
	} else {
		log.Warn("redis disabled, running without shared config cache and remediation events")
	}

	// ==========================================================================
	// Repositories & Services
	// ==========================================================================
	repos := NewRepositories(db)
	log.Info("repositories initialized")

	services, err := NewServices(&ServiceDeps{
		Config:      cfg,
		Log:         log,
		Repos:       repos,
		RedisClient: redisClient,
	})
	if err != nil {
		log.Error("failed to initialize services", "error", err)
		return 1
	}
	log.Info("services initialized")

	// ==========================================================================
	// Handlers
	// ==========================================================================
	v := validator.New()
	handlers := NewHandlers(&HandlerDeps{
		Config:      cfg,
		Log:         log,
		Validator:   v,
		DB:          db,
		RedisClient: redisClient,
		Services:    services,
	})

	// ==========================================================================
	// HTTP Server
	// ==========================================================================
	server := http.NewServer(cfg, log)
	stopRoutes := routes.Register(server.Router(), handlers, cfg, log)
	defer stopRoutes()

	// Handle --routes flag
	if *showRoutes {
		stats := http.CollectRoutes(server.Router())
		filters := http.RouteFilters{
			Method: *routeMethod,
			Path:   *routePath,
			SortBy: *routeSort,
		}
		http.PrintRoutes(os.Stdout, stats, *routeFormat, filters)
		return 0
	}

	// ==========================================================================
	// Workers
	// ==========================================================================
	workers, err := NewWorkers(&WorkerDeps{
		Config:   cfg,
		Log:      log,
		Services: services,
	})
	if err != nil {
		log.Error("failed to initialize workers", "error", err)
		return 1
	}
	workers.Start()

	// ==========================================================================
	// Start Server
	// ==========================================================================
	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
		}
	}()
	log.Info("application started", "http_addr", cfg.Server.Addr())

	// ==========================================================================
	// Graceful Shutdown
	// ==========================================================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop workers first so no sweep is mid-flight when the pool closes
	workers.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return 1
	}

	log.Info("application stopped")
	return 0
}

// =============================================================================
// Helper Functions
// =============================================================================

func initLogger(cfg *config.Config) *logger.Logger {
	var log *logger.Logger
	if cfg.IsProduction() {
		// SamplingThreshold is validated to be non-negative in config validation
		//nolint:gosec // G115: safe conversion, value validated non-negative in config.Validate()
		threshold := uint64(cfg.Log.SamplingThreshold)
		log = logger.NewProductionWithConfig(logger.SamplingConfig{
			Enabled:   cfg.Log.SamplingEnabled,
			Tick:      time.Second,
			Threshold: threshold,
			Rate:      cfg.Log.SamplingRate,
			ErrorRate: cfg.Log.ErrorSamplingRate,
		})
	} else {
		log = logger.NewDevelopment()
	}
	log.SetDefault()
	return log
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
