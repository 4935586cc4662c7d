package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/docker/client"
	h "github.com/gorilla/handlers"
	"github.com/rs/zerolog"

	"github.com/Tubbz-alt/adsbrecorder/internal/authz"
	"github.com/Tubbz-alt/adsbrecorder/internal/config"
	"github.com/Tubbz-alt/adsbrecorder/internal/engine"
	"github.com/Tubbz-alt/adsbrecorder/internal/handlers"
	"github.com/Tubbz-alt/adsbrecorder/internal/migration"
	"github.com/Tubbz-alt/adsbrecorder/internal/notification"
	"github.com/Tubbz-alt/adsbrecorder/internal/reporting"
	"github.com/Tubbz-alt/adsbrecorder/internal/repository"
	"github.com/Tubbz-alt/adsbrecorder/internal/routes"
	"github.com/Tubbz-alt/adsbrecorder/internal/storage"
	"github.com/Tubbz-alt/adsbrecorder/internal/temporal"
	"github.com/Tubbz-alt/adsbrecorder/internal/temporal/activities"
	"github.com/Tubbz-alt/adsbrecorder/internal/temporal/workflows"
	"github.com/Tubbz-alt/adsbrecorder/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
	tw "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

type application struct {
	config *config.Config
	logger zerolog.Logger

	jobs    repository.ReportJobRepository
	records repository.TrackingRecordRepository
	users   repository.UserRepository
	files   *storage.Service

	notifications notification.Service

	pool           *worker.Pool
	temporalClient tc.Client
	temporalWorker tw.Worker
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	log.SetFlags(0)
	log.SetOutput(logger)

	// Load configuration.
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	app := &application{config: cfg, logger: logger}

	db := app.initStorage()
	if db != nil {
		defer db.Close()
	}

	files, err := storage.NewService(cfg.Storage.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize artifact storage")
	}
	app.files = files

	reports := app.initReporting()

	// Initialize the HTTP router and middleware.
	router := app.initRouter(reports)
	corsHandler := h.CORS(
		h.AllowedOrigins(cfg.CORSOrigins),
		h.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(router)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler)

	logger.Info().Msg("Application terminated.")
}

// initStorage selects the store implementations. It returns the database handle for the
// postgres driver and nil for the memory driver.
func (app *application) initStorage() *sql.DB {
	logger := app.logger
	if app.config.Storage.Driver == "memory" {
		logger.Warn().Msg("Using in-memory storage; data is lost on restart")
		app.jobs = repository.NewMemoryReportJobRepository()
		app.records = repository.NewMemoryTrackingRecordRepository()
		app.users = repository.NewMemoryUserRepository()
		app.initNotifications(repository.NewMemoryNotificationRepository())
		return nil
	}

	// Initialize database connection.
	db, err := sql.Open("postgres", app.config.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	if err := migration.RunMigrations(db, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	app.jobs = repository.NewReportJobRepository(db)
	app.records = repository.NewTrackingRecordRepository(db)
	app.users = repository.NewUserRepository(db)
	app.initNotifications(repository.NewNotificationRepository(db))
	return db
}

func (app *application) initNotifications(repo repository.NotificationRepository) {
	app.notifications = notification.NewService(repo, app.logger, notification.NewLogNotifier(app.logger))
}

// initReporting builds the report registry, the renderer and the execution backend.
func (app *application) initReporting() *reporting.Service {
	cfg := app.config
	logger := app.logger

	renderer := app.initRenderer()
	registry := reporting.NewRegistry(
		reporting.NewSimpleDailySummaryReport(app.jobs, app.records, app.files, renderer, logger),
	)
	registry.Seal()

	if cfg.Worker.Backend == "temporal" {
		temporalClient, err := tc.Dial(tc.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    temporal.NewLoggerAdapter(logger),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Unable to create Temporal client")
		}
		app.temporalClient = temporalClient

		scheduler := temporal.NewScheduler(temporalClient, cfg.Temporal.TaskQueue, cfg.Worker.JobTimeout)
		svc := reporting.NewService(app.jobs, registry, scheduler, app.files, logger, reporting.WithNotifier(app.notifications))
		app.startTemporalWorker(svc)
		return svc
	}

	app.pool = worker.NewPool(worker.Config{
		Concurrency: cfg.Worker.Concurrency,
		QueueSize:   cfg.Worker.QueueSize,
		JobTimeout:  cfg.Worker.JobTimeout,
		CancelGrace: cfg.Worker.CancelGrace,
	}, logger)
	svc := reporting.NewService(app.jobs, registry, app.pool, app.files, logger, reporting.WithNotifier(app.notifications))
	app.pool.Start(svc.Execute)
	logger.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("Report worker pool started")
	return svc
}

func (app *application) initRenderer() reporting.Renderer {
	rc := app.config.Renderer
	if !rc.Enabled {
		app.logger.Info().Msg("Rendering disabled; reports stop after the data file is written")
		return reporting.NopRenderer{}
	}

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		app.logger.Fatal().Err(err).Msg("Failed to create Docker client")
	}
	return engine.NewRenderer(engine.RendererConfig{
		Container:       rc.Container,
		Command:         rc.Command,
		OutputExtension: rc.OutputExtension,
		Timeout:         rc.Timeout,
	}, engine.NewDockerRunner(dockerClient), app.jobs, app.files, app.logger)
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(reports *reporting.Service) http.Handler {
	validators := authz.NewValidatorRegistry()
	validators.Register(reporting.ReportJobOwnershipValidatorName, reporting.NewReportJobOwnershipValidator(app.jobs))
	validators.Seal()
	interceptor := authz.NewInterceptor(validators, authz.NewUserResolver(app.users), app.logger)

	authHandler := handlers.NewAuthHandler(app.users, app.config.JWTSecret, app.config.TokenTTL, app.logger)
	reportHandler := handlers.NewReportHandler(reports, app.logger)
	notificationHandler := handlers.NewNotificationHandler(app.notifications, app.logger)

	return routes.NewRouter(authHandler, reportHandler, notificationHandler, interceptor, app.logger)
}

func (app *application) startTemporalWorker(reports *reporting.Service) {
	logger := app.logger
	w := tw.New(app.temporalClient, app.config.Temporal.TaskQueue, tw.Options{})

	w.RegisterWorkflowWithOptions(workflows.ReportWorkflow, workflow.RegisterOptions{Name: temporal.ReportWorkflowName})
	w.RegisterActivity(&activities.Activities{Reports: reports})

	// Start the worker in a goroutine so it doesn't block.
	go func() {
		logger.Info().Msg("Starting Temporal worker...")
		if err := w.Run(tw.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("Unable to start worker")
		}
	}()
	app.temporalWorker = w
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler) {
	logger := app.logger
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	if app.pool != nil {
		logger.Info().Msg("Draining report worker pool...")
		poolCtx, poolCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer poolCancel()
		if err := app.pool.Shutdown(poolCtx); err != nil {
			logger.Warn().Err(err).Msg("Report worker pool did not drain; running jobs were cancelled")
		}
	}

	if app.temporalWorker != nil {
		logger.Info().Msg("Stopping Temporal worker...")
		app.temporalWorker.Stop()
		app.temporalClient.Close()
		logger.Info().Msg("Temporal worker stopped.")
	}
}
