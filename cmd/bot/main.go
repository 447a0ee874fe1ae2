package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salonbook/internal/availability"
	"salonbook/internal/bot"
	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/domain"
	"salonbook/internal/events"
	"salonbook/internal/logging"
	"salonbook/internal/metrics"
	"salonbook/internal/repository"
	"salonbook/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
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
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if cfg.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is required")
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, limiter := initLimiter(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Решения из чата должны попасть в ленту изменений API через Redis
	bus := events.NewEventBus()
	if redisClient != nil {
		bridge := events.NewRedisBridge(redisClient, bus, cfg.Redis.Channel, logging.Component(logger, "events"))
		if err := bridge.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("redis event bridge failed")
		}
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("telegram init: %w", err)
	}
	botAPI.Debug = cfg.Telegram.Debug
	tg := service.NewTelegramService(bot.NewBotWrapper(botAPI))

	slots := availability.NewService(db, cfg.Booking.WorkingHours, cfg.Location(), bus, logging.Component(logger, "availability"))
	// Доставкой занимается воркер API-процесса, бот только пишет в outbox
	notifier := service.NewOutboxNotifier(db, cfg.NotificationChannels(), logging.Component(logger, "outbox"))
	bookings := service.NewBookingService(db, slots, limiter, bus, notifier, cfg.Booking, logging.Component(logger, "bookings"))

	metrics.Register()

	b := bot.NewBot(tg, db, bookings, slots, limiter, bot.RateLimit{
		Messages: cfg.Telegram.RateLimitMessages,
		Window:   cfg.Telegram.RateLimitWindow,
	}, logging.Component(logger, "bot"))

	go func() {
		<-ctx.Done()
		b.Stop()
	}()
	b.Start(ctx)

	logger.Info().Msg("Bot stopped")
	return nil
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
	return cfg, logging.Component(baseLogger, "bot-main"), closer, nil
}

func initLimiter(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.RateLimiter) {
	memory := repository.NewMemoryRateLimiter()
	if cfg.Redis.Address == "" {
		return nil, memory
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, using in-memory rate limit")
		_ = client.Close()
		return nil, memory
	}
	return client, repository.NewFailoverRateLimiter(repository.NewRedisRateLimiter(client), memory, logging.Component(logger, "rate-limit"))
}
