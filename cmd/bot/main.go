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

	"practiceapi/internal/bot"
	"practiceapi/internal/config"
	"practiceapi/internal/database"
	"practiceapi/internal/events"
	"practiceapi/internal/logging"
	"practiceapi/internal/repository"
	"practiceapi/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is required")
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	db, err := database.Open(cfg.Database, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := initStore(ctx, cfg, &logger)

	tgBot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("init telegram bot: %w", err)
	}
	tgService := bot.NewBotWrapper(tgBot)

	// bot events go to the configured notification chats, like API events do
	bus := events.NewEventBus()
	bus.OnError(func(event *events.Event, err error) {
		logger.Warn().Err(err).Str("event_type", event.Type).Msg("event handler failed")
	})
	if len(cfg.Telegram.NotifyChatIDs) > 0 {
		service.NewNotificationService(tgService, cfg.Telegram.NotifyChatIDs, &logger).Attach(bus)
	}

	svcs := bot.Services{
		Bookings: service.NewBookingService(db, bus, nil, cfg.Booking.CapacityMode, &logger),
		Venues:   service.NewVenueService(db, db, cfg.Auction.DefaultCredits, &logger),
		Auction:  service.NewAuctionService(db, store, store, bus, nil, cfg.Auction, &logger),
		Profiles: service.NewProfileService(db, cfg.Auction.DefaultCredits),
	}

	b := bot.NewBot(tgService, svcs, store, cfg.Telegram, &logger)
	logger.Info().Msg("bot started")
	b.Start(ctx)

	logger.Info().Msg("bot stopped")
	return nil
}

func initStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *repository.FailoverStore {
	memory := repository.NewMemoryStore()
	if cfg.Redis.Address == "" {
		return repository.NewFailoverStore(memory, memory, logger)
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, using in-memory store")
		_ = client.Close()
		return repository.NewFailoverStore(memory, memory, logger)
	}
	go func() {
		<-ctx.Done()
		_ = repository.Close(client)
	}()
	return repository.NewFailoverStore(repository.NewRedisStore(client), memory, logger)
}
