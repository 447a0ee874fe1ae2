package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salonbook/internal/api"
	"salonbook/internal/auth"
	"salonbook/internal/availability"
	"salonbook/internal/bot"
	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/domain"
	"salonbook/internal/events"
	"salonbook/internal/export"
	"salonbook/internal/google"
	"salonbook/internal/logging"
	"salonbook/internal/metrics"
	"salonbook/internal/models"
	"salonbook/internal/notify"
	"salonbook/internal/repository"
	"salonbook/internal/service"
	"salonbook/internal/worker"

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
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewEventBus()
	if redisClient != nil {
		bridge := events.NewRedisBridge(redisClient, bus, cfg.Redis.Channel, logging.Component(logger, "events"))
		if err := bridge.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("redis event bridge failed, change feed is local to this instance")
		}
	}

	loc := cfg.Location()
	slots := availability.NewService(db, cfg.Booking.WorkingHours, loc, bus, logging.Component(logger, "availability"))
	if res, err := slots.NormalizeOverrides(ctx, 0); err != nil {
		logger.Error().Err(err).Msg("normalize overrides")
	} else if res.Created > 0 || res.Dropped > 0 {
		logger.Info().Int("scanned", res.Scanned).Int("created", res.Created).Int("dropped", res.Dropped).Msg("overrides normalized")
	}

	notificationWorker := worker.NewNotificationWorker(
		db,
		deliveryHandlers(ctx, cfg, db, logger),
		redisClient,
		worker.DefaultRetryPolicy,
		logging.Component(logger, "notifications"),
	)
	notifier := service.NewOutboxNotifier(db, notificationWorker.Channels(), logging.Component(logger, "outbox"))

	bookings := service.NewBookingService(db, slots, rateLimiter(redisClient, logger), bus, notifier, cfg.Booking, logging.Component(logger, "bookings"))
	catalog := service.NewCatalogService(db, bus, logging.Component(logger, "catalog"))
	users := service.NewUserService(db, logging.Component(logger, "users"))
	if err := users.EnsureAdmins(ctx, cfg.Admins); err != nil {
		return fmt.Errorf("seed admins: %w", err)
	}

	sessions := auth.NewManager(cfg.API.Session)
	httpServer := api.NewHTTPServer(cfg.API, api.Deps{
		Bookings: bookings,
		Catalog:  catalog,
		Users:    users,
		Slots:    slots,
		Sessions: sessions,
		Exporter: export.NewExporter(db, cfg.Exports.Path, loc, logging.Component(logger, "export")),
		Bus:      bus,
	}, logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, api.NewAvailabilityService(bookings, catalog, slots), sessions, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	go notificationWorker.Start(ctx)
	go service.NewExpiryJob(bookings, cfg.Booking.PendingTTL, cfg.Booking.ExpiryCheckInterval, logging.Component(logger, "expiry")).Start(ctx)
	go database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup")).Start(ctx)

	startMetrics(ctx, cfg, logger)

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
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
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// rateLimiter shares booking limits across instances through Redis and falls
// back to process memory while Redis is unreachable.
func rateLimiter(redisClient *redis.Client, logger *zerolog.Logger) domain.RateLimiter {
	memory := repository.NewMemoryRateLimiter()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverRateLimiter(repository.NewRedisRateLimiter(redisClient), memory, logging.Component(logger, "rate-limit"))
}

// deliveryHandlers builds one outbox handler per configured channel.
func deliveryHandlers(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) map[string]worker.Handler {
	loc := cfg.Location()
	handlers := map[string]worker.Handler{
		models.ChannelEmail: notify.NewEmailHandler(notify.NewEmailSender(cfg.Email, logging.Component(logger, "email")), db, loc),
	}

	if cfg.Telegram.BotToken != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, professionals will not be notified in Telegram")
		} else {
			tg := service.NewTelegramService(bot.NewBotWrapper(botAPI))
			handlers[models.ChannelTelegram] = notify.NewTelegramHandler(tg, db, loc, logging.Component(logger, "telegram"))
		}
	}

	if sheet := initReservationsSheet(ctx, cfg, logger); sheet != nil {
		handlers[models.ChannelSheets] = sheet
	}
	return handlers
}

func initReservationsSheet(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.ReservationsSheet {
	if cfg.Google.CredentialsFile == "" || cfg.Google.ReservationsSheetID == "" {
		return nil
	}

	sheet, err := google.NewReservationsSheet(ctx, cfg.Google.CredentialsFile, cfg.Google.ReservationsSheetID, cfg.Google.ReservationsSheetName)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheet.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}
	if err := sheet.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets header")
	}
	if err := sheet.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up")
	}

	logger.Info().Msg("google sheets connected")
	return sheet
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Bool("grpc", grpcServer != nil).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
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
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
