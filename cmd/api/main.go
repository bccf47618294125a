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

	"practiceapi/internal/api"
	"practiceapi/internal/config"
	"practiceapi/internal/database"
	"practiceapi/internal/domain"
	"practiceapi/internal/events"
	"practiceapi/internal/export"
	"practiceapi/internal/google"
	"practiceapi/internal/logging"
	"practiceapi/internal/metrics"
	"practiceapi/internal/models"
	"practiceapi/internal/repository"
	"practiceapi/internal/retry"
	"practiceapi/internal/service"
	"practiceapi/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
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
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.Open(cfg.Database, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	store := initStore(redisClient, &logger)

	bus := events.NewEventBus()
	bus.OnError(func(event *events.Event, err error) {
		logger.Warn().Err(err).Str("event_type", event.Type).Msg("event handler failed")
	})
	if sink := initKafka(cfg, &logger); sink != nil {
		sink.Attach(bus)
		defer func() { _ = sink.Close() }()
	}
	initTelegram(cfg, bus, &logger)

	var syncWorker domain.SyncWorker
	if sheetsWorker := initSheetsWorker(ctx, cfg, db, redisClient, &logger); sheetsWorker != nil {
		go sheetsWorker.Start(ctx)
		syncWorker = sheetsWorker
	}

	svcs := api.Services{
		Bookings: service.NewBookingService(db, bus, syncWorker, cfg.Booking.CapacityMode, &logger),
		Venues:   service.NewVenueService(db, db, cfg.Auction.DefaultCredits, &logger),
		Auction:  service.NewAuctionService(db, store, store, bus, syncWorker, cfg.Auction, &logger),
		Profiles: service.NewProfileService(db, cfg.Auction.DefaultCredits),
		Exporter: export.NewExporter(cfg.Exports.Path, &logger),
		Ready:    readiness(db, redisClient),
	}

	if err := seed(ctx, svcs, &logger); err != nil {
		return err
	}

	backup := database.NewBackupService(db, cfg.Database.Path, cfg.Backup, &logger)
	go backup.Start(ctx)

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, cfg, svcs, &logger)
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

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
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

// initStore puts the in-memory store behind Redis, or uses it alone when Redis is absent.
func initStore(redisClient *redis.Client, logger *zerolog.Logger) *repository.FailoverStore {
	memory := repository.NewMemoryStore()
	if redisClient == nil {
		return repository.NewFailoverStore(memory, memory, logger)
	}
	return repository.NewFailoverStore(repository.NewRedisStore(redisClient), memory, logger)
}

func initKafka(cfg *config.Config, logger *zerolog.Logger) *events.KafkaSink {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
		return nil
	}
	logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka sink enabled")
	return events.NewKafkaSink(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), logger)
}

func initTelegram(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	if cfg.Telegram.BotToken == "" || len(cfg.Telegram.NotifyChatIDs) == 0 {
		return
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		return
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifications enabled")
	service.NewNotificationService(bot, cfg.Telegram.NotifyChatIDs, logger).Attach(bus)
}

func initSheetsWorker(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) *worker.SheetsWorker {
	if cfg.Google.CredentialsFile == "" || cfg.Google.SpreadsheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}
	go sheetsService.RefreshCache(ctx, 10*time.Minute)

	logger.Info().Msg("google sheets connected")
	return worker.NewSheetsWorker(db, sheetsService, redisClient, retry.Policy{}, logger)
}

func readiness(db *database.DB, redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if redisClient != nil {
			if err := repository.Ping(ctx, redisClient); err != nil {
				return err
			}
		}
		return nil
	}
}

type seedFile struct {
	Profiles []struct {
		Name         string `yaml:"name"`
		VenueManager bool   `yaml:"venue_manager"`
	} `yaml:"profiles"`
	Venues []struct {
		Name        string  `yaml:"name"`
		Description string  `yaml:"description"`
		Price       float64 `yaml:"price"`
		MaxGuests   int     `yaml:"max_guests"`
		Owner       string  `yaml:"owner"`
	} `yaml:"venues"`
	Listings []struct {
		Title       string        `yaml:"title"`
		Description string        `yaml:"description"`
		Seller      string        `yaml:"seller"`
		Duration    time.Duration `yaml:"duration"`
	} `yaml:"listings"`
}

// seed loads demo data into an empty database.
func seed(ctx context.Context, svcs api.Services, logger *zerolog.Logger) error {
	seedPath := os.Getenv("SEED_PATH")
	if seedPath == "" {
		seedPath = "configs/seed.yaml"
	}
	data, err := os.ReadFile(seedPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Str("seed_path", seedPath).Msg("read seed")
		return err
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		logger.Error().Err(err).Str("seed_path", seedPath).Msg("parse seed")
		return err
	}

	existing, err := svcs.Venues.GetVenues(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, p := range file.Profiles {
		if p.VenueManager {
			if _, err := svcs.Profiles.SetVenueManager(ctx, p.Name, p.Name, true); err != nil {
				return fmt.Errorf("seed profile %s: %w", p.Name, err)
			}
			continue
		}
		if _, err := svcs.Profiles.Me(ctx, p.Name); err != nil {
			return fmt.Errorf("seed profile %s: %w", p.Name, err)
		}
	}
	for _, v := range file.Venues {
		venue := &models.Venue{Name: v.Name, Description: v.Description, Price: v.Price, MaxGuests: v.MaxGuests, OwnerName: v.Owner}
		if err := svcs.Venues.CreateVenue(ctx, venue); err != nil {
			return fmt.Errorf("seed venue %s: %w", v.Name, err)
		}
	}
	for _, l := range file.Listings {
		listing := &models.Listing{Title: l.Title, Description: l.Description, SellerName: l.Seller, EndsAt: time.Now().Add(l.Duration)}
		if err := svcs.Auction.CreateListing(ctx, listing); err != nil {
			return fmt.Errorf("seed listing %s: %w", l.Title, err)
		}
	}

	logger.Info().Int("venues", len(file.Venues)).Int("listings", len(file.Listings)).Msg("seed data loaded")
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(ctx context.Context, cfg *config.Config, svcs api.Services, logger *zerolog.Logger) error {
	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		var err error
		grpcServer, err = api.NewGRPCServer(cfg.API, svcs, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	httpServer := api.NewHTTPServer(cfg.API, svcs, logger)
	if cfg.API.HTTP.Enabled {
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	logger.Info().
		Bool("grpc", cfg.API.GRPC.Enabled).
		Int("grpc_port", cfg.API.GRPC.Port).
		Bool("http", cfg.API.HTTP.Enabled).
		Int("http_port", cfg.API.HTTP.Port).
		Msg("API server started")

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
	mux.Handle("/metrics", metrics.Handler())

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
