// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/application/container"
	"github.com/AtRiskMedia/tractstack-attribution/internal/domain/attribution"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/monitoring"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/performance"
	persistence "github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/persistence/attribution"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/persistence/memory"
	"github.com/AtRiskMedia/tractstack-attribution/internal/presentation/http/server"
	"github.com/AtRiskMedia/tractstack-attribution/pkg/config"
	"github.com/gin-gonic/gin"
)

// Initialize performs the complete startup sequence and blocks until a
// shutdown signal arrives.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	// Step 1: Channeled logging
	log.Println("Initializing channeled logger...")
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()
	logger.LogStartupPhase("logging", time.Since(start), true, map[string]any{"level": config.LogLevel})

	perfTracker := performance.NewTracker(&performance.TrackerConfig{
		SlowOperationThreshold: time.Second,
	})

	// Step 2: Storage backend
	phaseStart := time.Now()
	store, err := openStore(config.StorageDriver, logger)
	if err != nil {
		logger.LogStartupPhase("storage", time.Since(phaseStart), false, map[string]any{"driver": config.StorageDriver, "error": err.Error()})
		return err
	}
	logger.LogStartupPhase("storage", time.Since(phaseStart), true, map[string]any{"driver": config.StorageDriver})

	// Step 3: Dependency injection container
	appContainer := container.NewContainer(store, logger, perfTracker, container.Options{
		LookbackDays:       config.LookbackDays,
		ReportingJWTSecret: config.ReportingJWTSecret,
	})
	logger.Startup().Info("Singleton application services initialized via container",
		"lookbackDays", appContainer.JourneyService.LookbackDays(),
		"reportingAuth", config.ReportingJWTSecret != "")

	// Step 4: Conversion feed
	go appContainer.Broadcaster.Run(ctx)
	logger.Startup().Info("Conversion broadcaster started")

	// Step 5: Background stats reporter
	reporter := monitoring.NewStatsReporter(store, perfTracker, logger, config.StatsReportInterval)
	go reporter.Start(ctx)

	// Step 6: HTTP server
	httpServer := server.New(server.ConfigFromEnv(), appContainer)
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"storageDriver", config.StorageDriver,
		"port", config.Port)

	// Step 7: Wait for shutdown signal
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()
	cancelBackgroundTasks()

	if err := httpServer.Stop(context.Background()); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	if err := store.Close(); err != nil {
		logger.Shutdown().Error("Error closing store", "error", err.Error())
	} else {
		logger.Shutdown().Info("Store closed successfully")
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))
	return nil
}

func newLogger() (*logging.ChanneledLogger, error) {
	level, err := logging.ParseLevel(config.LogLevel)
	if err != nil {
		log.Printf("%v, using info", err)
	}

	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToFile = config.LogToFile
	cfg.LogDirectory = config.LogDirectory
	cfg.JSONFormat = config.LogJSON
	cfg.DefaultLevel = level
	return logging.NewChanneledLogger(cfg)
}

// openStore builds the attribution store selected by driver.
func openStore(driver string, logger *logging.ChanneledLogger) (attribution.Store, error) {
	var cfg database.Config
	switch driver {
	case config.StorageMemory:
		logger.Startup().Warn("Using in-memory store; data is lost on restart")
		return memory.NewStore(), nil
	case config.StorageSQLite:
		var err error
		if cfg, err = database.SQLiteConfig(config.SQLitePath); err != nil {
			return nil, err
		}
	case config.StorageTurso:
		if config.TursoDatabaseURL == "" {
			return nil, fmt.Errorf("TURSO_DATABASE_URL is required for storage driver %q", driver)
		}
		cfg = database.TursoConfig(config.TursoDatabaseURL, config.TursoAuthToken)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}

	cfg.MaxOpenConns = config.DBMaxOpenConns
	cfg.MaxIdleConns = config.DBMaxIdleConns
	cfg.ConnMaxLifetime = time.Duration(config.DBConnMaxLifetimeMinutes) * time.Minute
	cfg.SlowQueryThreshold = config.SlowQueryThreshold

	db, err := database.NewConnectionWithLogger(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s storage: %w", driver, err)
	}
	if err := db.EnsureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return persistence.NewSQLStore(db, logger), nil
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
