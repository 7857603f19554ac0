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
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/seyone-projects/reda-backend/internal/api"
	"github.com/seyone-projects/reda-backend/internal/auth"
	"github.com/seyone-projects/reda-backend/internal/booking"
	"github.com/seyone-projects/reda-backend/internal/config"
	"github.com/seyone-projects/reda-backend/internal/database"
	"github.com/seyone-projects/reda-backend/internal/domain"
	"github.com/seyone-projects/reda-backend/internal/events"
	"github.com/seyone-projects/reda-backend/internal/google"
	"github.com/seyone-projects/reda-backend/internal/logging"
	"github.com/seyone-projects/reda-backend/internal/metrics"
	"github.com/seyone-projects/reda-backend/internal/models"
	"github.com/seyone-projects/reda-backend/internal/notify"
	"github.com/seyone-projects/reda-backend/internal/repository"
	"github.com/seyone-projects/reda-backend/internal/service"
	"github.com/seyone-projects/reda-backend/internal/storage"
	"github.com/seyone-projects/reda-backend/internal/worker"
)

const (
	eventWorkers      = 4
	eventQueueSize    = 256
	eventDrainTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	go database.NewBackupService(db, cfg.Backup, logger).Start(ctx)

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	sessions := initSessions(redisClient, logger)

	hasher := auth.NewHasher(cfg.Auth.BcryptCost)
	if err := ensureAdmin(ctx, db, hasher, logger); err != nil {
		return err
	}

	onEventError := func(event *events.Event, err error) {
		logger.Warn().Err(err).Str("event", event.Type).Msg("Event handler failed")
	}
	bus := events.NewEventBus()
	bus.OnError(onEventError)
	dispatcher := events.NewDispatcher(eventWorkers, eventQueueSize, onEventError)
	if broker := initBroker(cfg, bus, dispatcher, logger); broker != nil {
		defer func() { _ = broker.Close() }()
	}
	// Drains queued notifications after the servers stop; broker.Close runs later.
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), eventDrainTimeout)
		defer cancel()
		if err := dispatcher.Close(drainCtx); err != nil {
			logger.Warn().Err(err).Msg("event dispatcher did not drain")
		}
	}()

	notify.NewNotifier(initSMS(cfg, logger), initManagerAlerts(cfg, logger), db, logger).Register(bus, dispatcher)

	var syncQueue domain.SyncEnqueuer
	if sheetsWorker := initSheetsWorker(ctx, cfg, db, redisClient, logger); sheetsWorker != nil {
		go sheetsWorker.Start(ctx)
		syncQueue = sheetsWorker
	}

	files, err := storage.NewLocalStore(cfg.Storage.UploadDir, cfg.Storage.PublicBaseURL, cfg.Storage.MaxUploadSize, logger)
	if err != nil {
		return fmt.Errorf("init upload store: %w", err)
	}

	store := db.Reservations()
	validator := booking.NewValidator(store, store, booking.Options{
		MaintenanceBuffer: cfg.Booking.MaintenanceBuffer,
		Location:          cfg.Booking.Location(),
	}, logger)

	ready := func(ctx context.Context) error { return db.PingContext(ctx) }
	deps := api.Dependencies{
		Users:        service.NewUserService(db, sessions, auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), hasher, bus, logger),
		Reservations: service.NewReservationService(db, validator, bus, syncQueue, logger),
		Dashboard:    service.NewDashboardService(db, files, bus, logger),
		Ready:        ready,
		RateCounter:  sessions,
		UploadDir:    cfg.Storage.UploadDir,
	}
	httpServer := api.NewHTTPServer(cfg, deps, logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, ready, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	startMetrics(ctx, cfg, logger)

	return startServers(ctx, grpcServer, httpServer, logger)
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

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, baseLogger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initSessions prefers Redis and keeps serving from memory while it is down.
func initSessions(client *redis.Client, logger *zerolog.Logger) domain.SessionRepository {
	memory := repository.NewMemorySessionRepository()
	if client == nil {
		return memory
	}
	l := logging.Component(logger, "sessions")
	return repository.NewFailoverSessionRepository(repository.NewRedisSessionRepository(client), memory, l)
}

func initBroker(cfg *config.Config, bus *events.EventBus, d *events.Dispatcher, logger *zerolog.Logger) *events.AMQPPublisher {
	if cfg.RabbitMQ.URL == "" {
		return nil
	}
	broker, err := events.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq unavailable, events stay in-process")
		return nil
	}
	broker.Bridge(bus, d, logging.Component(logger, "amqp"),
		events.EventReservationCreated,
		events.EventReservationCancelled,
		events.EventUserRegistered,
		events.EventDashboardUpdated,
	)
	logger.Info().Str("exchange", cfg.RabbitMQ.Exchange).Msg("rabbitmq connected")
	return broker
}

// initSMS returns a nil interface, not a typed nil, when SMS is off.
func initSMS(cfg *config.Config, logger *zerolog.Logger) domain.SMSSender {
	if !cfg.SMS.Enabled {
		return nil
	}
	return notify.NewSMSClient(cfg.SMS, logger)
}

func initManagerAlerts(cfg *config.Config, logger *zerolog.Logger) *notify.ManagerAlerts {
	if cfg.Telegram.BotToken == "" || len(cfg.Telegram.Managers) == 0 {
		return nil
	}
	bot, err := notify.NewTelegramBot(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, manager alerts disabled")
		return nil
	}
	logger.Info().Str("bot", bot.Self.UserName).Int("managers", len(cfg.Telegram.Managers)).Msg("telegram connected")
	return notify.NewManagerAlerts(bot, cfg.Telegram.Managers, logger)
}

func initSheetsWorker(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) *worker.SheetsWorker {
	if !cfg.Sync.Enabled {
		return nil
	}
	sheets, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.ReservationSpreadSheetID, cfg.Google.SheetName)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheets.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets header check failed")
	}
	if err := sheets.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}

	logger.Info().Msg("google sheets connected")
	return worker.NewSheetsWorker(db, sheets, redisClient, worker.RetryPolicyFromConfig(cfg.Sync), cfg.Sync.PollInterval, logger)
}

// ensureAdmin creates the first administrator from REDA_ADMIN_MOBILE and
// REDA_ADMIN_PASSWORD when no account holds that mobile number yet.
func ensureAdmin(ctx context.Context, db *database.DB, hasher *auth.Hasher, logger *zerolog.Logger) error {
	mobile := strings.TrimSpace(os.Getenv("REDA_ADMIN_MOBILE"))
	password := os.Getenv("REDA_ADMIN_PASSWORD")
	if mobile == "" || password == "" {
		return nil
	}

	_, err := db.GetUserByMobile(ctx, mobile)
	if err == nil {
		return nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return err
	}
	email := os.Getenv("REDA_ADMIN_EMAIL")
	if email == "" {
		email = "admin@" + mobile + ".local"
	}
	admin := &models.User{
		Username:     "admin",
		Fullname:     "Administrator",
		Email:        email,
		MobileNumber: mobile,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}
	if err := db.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	logger.Info().Int64("user_id", admin.ID).Msg("Administrator account created")
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(ctx context.Context, grpcServer *api.GRPCServer, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	errCh := make(chan error, 2)

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	logger.Info().Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

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
	logger.Info().Int("port", port).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
