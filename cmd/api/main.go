package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/api"
	"github.com/thiagoooop/morada-de-praia/internal/config"
	"github.com/thiagoooop/morada-de-praia/internal/database"
	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/events"
	"github.com/thiagoooop/morada-de-praia/internal/google"
	"github.com/thiagoooop/morada-de-praia/internal/interval"
	"github.com/thiagoooop/morada-de-praia/internal/logging"
	"github.com/thiagoooop/morada-de-praia/internal/metrics"
	"github.com/thiagoooop/morada-de-praia/internal/models"
	"github.com/thiagoooop/morada-de-praia/internal/repository"
	"github.com/thiagoooop/morada-de-praia/internal/service"
	"github.com/thiagoooop/morada-de-praia/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, baseLogger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, logging.Component(baseLogger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if err := seedFleet(ctx, db, &logger); err != nil {
		return err
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	var locker domain.Locker = repository.NewMemoryLocker()
	if redisClient != nil {
		locker = repository.NewFailoverLocker(repository.NewRedisLocker(redisClient), locker, logging.Component(baseLogger, "locker"))
	}

	eventBus := events.NewEventBus()
	subscribeEventLog(eventBus, logging.Component(baseLogger, "events"))

	var syncWorker domain.SyncWorker
	if sheetsService := initGoogleSheets(ctx, cfg, db, &logger); sheetsService != nil {
		w := worker.NewSheetsWorker(db, sheetsService, redisClient, worker.RetryPolicy{
			MaxRetries:   cfg.Sync.Worker.MaxRetries,
			InitialDelay: cfg.Sync.Worker.InitialDelay,
			MaxDelay:     cfg.Sync.Worker.MaxDelay,
		}, logging.Component(baseLogger, "sheets-worker")).WithPollInterval(cfg.Sync.Worker.PollInterval)
		go w.Start(ctx)
		syncWorker = w
	}

	metrics.Register()

	bookings := service.NewBookingService(db, interval.New(), eventBus, syncWorker, service.BookingPolicy{
		AllowPastReschedule: cfg.Booking.AllowPastReschedule,
	}, logging.Component(baseLogger, "bookings"))
	indexed, err := bookings.RebuildIndex(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("rebuild interval index")
		return err
	}
	logger.Info().Int("ranges", indexed).Msg("interval index loaded")

	apartments := service.NewApartmentService(db, logging.Component(baseLogger, "apartments"))
	if err := apartments.Refresh(ctx); err != nil {
		return fmt.Errorf("load apartments: %w", err)
	}

	svc := api.Services{
		Apartments: apartments,
		Guests:     service.NewGuestService(db, logging.Component(baseLogger, "guests")),
		Bookings:   bookings,
		Reconciler: service.NewReconcileService(db, bookings, locker, eventBus, service.ReconcileConfig{
			LockTTL:      cfg.Sync.LockTTL,
			MaxBatchSize: cfg.Sync.MaxBatchSize,
		}, logging.Component(baseLogger, "reconciler")),
		Operations: service.NewOperationsService(db, logging.Component(baseLogger, "operations")),
		Reports:    service.NewReportService(db, logging.Component(baseLogger, "reports")),
	}

	backup := database.NewBackupService(db, cfg.Backup, logging.Component(baseLogger, "backup"))
	go backup.Start(ctx)

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, svc, baseLogger)
	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, closer, nil
}

// seedFleet loads configs/fleet.yaml (or FLEET_PATH) and inserts what is missing.
// A missing file is not an error; the fleet can be managed through the API.
func seedFleet(ctx context.Context, db *database.DB, logger *zerolog.Logger) error {
	fleetPath := os.Getenv("FLEET_PATH")
	if fleetPath == "" {
		fleetPath = "configs/fleet.yaml"
	}
	data, err := os.ReadFile(fleetPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("fleet_path", fleetPath).Msg("fleet file not found, skipping seed")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Str("fleet_path", fleetPath).Msg("read fleet")
		return err
	}

	var fleet models.Fleet
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		logger.Error().Err(err).Str("fleet_path", fleetPath).Msg("parse fleet")
		return err
	}
	if err := config.ValidateFleet(fleet); err != nil {
		return fmt.Errorf("invalid fleet file: %w", err)
	}

	res, err := db.SeedFleet(ctx, fleet)
	if err != nil {
		return fmt.Errorf("seed fleet: %w", err)
	}
	logger.Info().
		Int("apartments", res.Apartments).
		Int("integrations", res.Integrations).
		Int("mappings", res.Mappings).
		Msg("fleet seeded")
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = repository.Close(redisClient)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initGoogleSheets connects the spreadsheet mirror and rewrites it from the
// database so it starts consistent.
func initGoogleSheets(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.CredentialsFile == "" || cfg.Google.BookingsSpreadsheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.BookingsSpreadsheetID, cfg.Google.BookingsSheetName)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if email, err := google.ServiceAccountEmail(cfg.Google.CredentialsFile); err == nil {
		logger.Info().Str("service_account", email).Msg("share the spreadsheet with this account")
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}

	active, err := db.ListActiveBookings(ctx)
	if err == nil {
		err = sheetsService.ReplaceBookings(ctx, active)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("initial sheets mirror failed, indexing existing rows")
		if err := sheetsService.WarmUpCache(ctx); err != nil {
			logger.Warn().Err(err).Msg("sheets row cache warm-up failed")
		}
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func subscribeEventLog(bus *events.EventBus, logger *zerolog.Logger) {
	bus.OnError(func(event *events.Event, err error) {
		logger.Error().Err(err).Str("event", event.Type).Msg("event handler failed")
	})
	logEvent := func(event *events.Event) error {
		logger.Debug().Str("event", event.Type).RawJSON("payload", event.Payload).Msg("event")
		return nil
	}
	for _, t := range []string{
		events.EventBookingCreated,
		events.EventBookingCheckedIn,
		events.EventBookingCheckedOut,
		events.EventBookingCancelled,
		events.EventBookingRescheduled,
		events.EventBookingRepriced,
		events.EventSyncCompleted,
	} {
		bus.Subscribe(t, logEvent)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
