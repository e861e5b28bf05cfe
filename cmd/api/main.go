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

	"olympspa/internal/api"
	"olympspa/internal/config"
	"olympspa/internal/database"
	"olympspa/internal/domain"
	"olympspa/internal/events"
	"olympspa/internal/google"
	"olympspa/internal/logging"
	"olympspa/internal/metrics"
	"olympspa/internal/payment"
	"olympspa/internal/repository"
	"olympspa/internal/service"
	"olympspa/internal/storage"
	"olympspa/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	logger := *logging.Component(&base, "api-main")
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Database, logging.Component(&base, "store"))
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("init store")
		return err
	}
	defer store.Close()

	redisClient := initRedis(ctx, cfg, &logger)
	defer func() { _ = repository.Close(redisClient) }()
	ledger := initLedger(cfg, redisClient, &logger)

	eventBus := events.NewEventBus()
	eventBus.OnError(func(event *events.Event, err error) {
		logger.Error().Err(err).Str("event_type", event.Type).Msg("event handler failed")
	})
	initAlerts(cfg, eventBus, logging.Component(&base, "alerts"))

	var (
		syncWorker domain.SyncWorker
		resync     api.Resyncer
	)
	if sheetsWorker := initSheetsWorker(ctx, cfg, store, redisClient, logging.Component(&base, "sheets")); sheetsWorker != nil {
		go sheetsWorker.Start(ctx)
		syncWorker = sheetsWorker
		resync = sheetsWorker
	}

	if cfg.Backup.Enabled && cfg.Database.Driver != config.DriverPostgres {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logging.Component(&base, "backup"))
		go backupService.Start(ctx)
	}

	gateway := payment.NewStripeGateway(cfg.Stripe, nil, logging.Component(&base, "payment"))
	serviceLogger := logging.Component(&base, "service")
	availability := service.NewAvailabilityService(store, serviceLogger)
	services := api.Services{
		Availability: availability,
		Checkout:     service.NewCheckoutService(availability, gateway, eventBus, serviceLogger),
		Reconciler:   service.NewReconciler(store, gateway, ledger, eventBus, syncWorker, logging.Component(&base, "reconciler")),
		Store:        store,
		Resync:       resync,
	}

	httpServer := api.NewHTTPServer(cfg.HTTP, cfg.Admin, services, logging.Component(&base, "http"))

	var grpcServer *api.GRPCServer
	if cfg.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.GRPC, cfg.HTTP.RateLimit, store, logging.Component(&base, "grpc"))
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.WatchReadiness(ctx, 15*time.Second)
	}

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, *logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		// The client reconnects on its own; the failover ledger covers the gap.
		logger.Warn().Err(err).Msg("redis ping failed, starting with memory fallback")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return redisClient
}

func initLedger(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.IdempotencyLedger {
	memory := repository.NewMemoryLedger(cfg.Redis.LedgerTTL)
	if redisClient == nil {
		logger.Info().Msg("idempotency ledger: memory only")
		return memory
	}
	return repository.NewFailoverLedger(repository.NewRedisLedger(redisClient, cfg.Redis.LedgerTTL), memory, logger)
}

func initAlerts(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	if cfg.Telegram.BotToken == "" {
		logger.Warn().Msg("telegram bot token not set; paid conflicts are only logged")
		return
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("telegram init failed; paid conflicts are only logged")
		return
	}
	botAPI.Debug = cfg.Telegram.Debug

	notifier := service.NewAlertNotifier(service.NewTelegramService(botAPI, cfg.Telegram.AlertChatIDs, logger), logger)
	notifier.Subscribe(bus)
	logger.Info().Str("bot", botAPI.Self.UserName).Int("chats", len(cfg.Telegram.AlertChatIDs)).Msg("telegram alerts enabled")
}

func initSheetsWorker(
	ctx context.Context,
	cfg *config.Config,
	store storage.Store,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) *worker.SheetsWorker {
	if cfg.Google.CredentialsFile == "" || cfg.Google.SpreadsheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID, cfg.Google.SheetName)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		event := logger.Warn().Err(err)
		if email, emailErr := google.GetServiceAccountEmail(cfg.Google.CredentialsFile); emailErr == nil {
			event = event.Str("share_with", email)
		}
		event.Msg("google sheets connection test failed, continuing without sheets")
		return nil
	}

	retryPolicy := worker.DefaultRetryPolicy()
	logger.Info().Str("sheet", cfg.Google.SheetName).Msg("google sheets mirror enabled")
	return worker.NewSheetsWorker(store, sheetsService, store, redisClient, retryPolicy, logger)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	logger *zerolog.Logger,
) error {
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

	logger.Info().Str("http_addr", httpServer.Addr()).Bool("grpc", grpcServer != nil).Msg("API server started")

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
		logger.Error().Err(err).Msg("http shutdown")
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
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
