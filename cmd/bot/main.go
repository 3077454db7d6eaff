package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"zapisnik/internal/api"
	"zapisnik/internal/bot"
	"zapisnik/internal/calendar"
	"zapisnik/internal/config"
	"zapisnik/internal/database"
	"zapisnik/internal/events"
	"zapisnik/internal/logging"
	"zapisnik/internal/metrics"
	"zapisnik/internal/models"
	"zapisnik/internal/repository"
	"zapisnik/internal/service"
	syncengine "zapisnik/internal/sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
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
	cfg, logger, closer, loadErr := loadConfigAndLogger()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed, err := calendar.NewClient(ctx, cfg.Google, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка подключения к календарю")
		return err
	}

	redisClient, stateService := initStateService(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	eventBus := events.NewEventBus()

	// Фоновая синхронизация календарей
	engine := syncengine.NewEngine(feed, db, eventBus, syncengine.Options{
		Calendars: cfg.Calendars,
		Interval:  time.Duration(cfg.Bot.SyncIntervalMinutes) * time.Minute,
		DaysAhead: cfg.Bot.SyncDaysAhead,
		Metrics:   metrics.NewSyncMetrics(),
	}, &logger)
	go engine.Run(ctx)

	bookingService := service.NewBookingService(db, eventBus, cfg.Bot.LeadTimeMinutes, &logger)
	userService := service.NewUserService(db, cfg.Admins, cfg.AllowList, &logger)
	botMetrics := bot.NewMetrics()

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, bookingService, db, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			_ = apiServer.Shutdown(context.Background())
		}()
	}

	if cfg.Monitoring.PrometheusEnabled {
		go serveMetrics(cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	return startBot(ctx, cfg, stateService, eventBus, bookingService, userService, engine, db, botMetrics, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	// Список календарей можно вынести в отдельный файл
	calendarsPath := os.Getenv("CALENDARS_PATH")
	if calendarsPath != "" {
		calendarsData, err := os.ReadFile(calendarsPath)
		if err != nil {
			logger.Error().Err(err).Msgf("Ошибка чтения %s", calendarsPath)
			return nil, zerolog.Logger{}, closer, err
		}

		var calendarsConfig struct {
			Calendars []models.Calendar `yaml:"calendars"`
		}
		if err := yaml.Unmarshal(calendarsData, &calendarsConfig); err != nil {
			logger.Error().Err(err).Msg("Ошибка парсинга calendars.yaml")
			return nil, zerolog.Logger{}, closer, err
		}
		cfg.Calendars = calendarsConfig.Calendars
	}

	if err := config.ValidateCalendars(cfg.Calendars); err != nil {
		logger.Error().Err(err).Msg("Calendars validation failed")
		return nil, zerolog.Logger{}, closer, err
	}
	if len(cfg.Calendars) == 0 {
		logger.Error().Msg("Не настроен ни один календарь")
		return nil, zerolog.Logger{}, closer, os.ErrInvalid
	}

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
			return err
		}
	}
	return nil
}

func initStateService(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, *service.StateService) {
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	primaryRepo := repository.NewRedisStateRepository(redisClient, time.Duration(models.DefaultRedisTTL)*time.Second)
	fallbackRepo := repository.NewMemoryStateRepository(time.Duration(models.DefaultRedisTTL) * time.Second)
	stateRepo := repository.NewFailoverStateRepository(primaryRepo, fallbackRepo, logger)
	return redisClient, service.NewStateService(stateRepo, logger)
}

func serveMetrics(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("Prometheus metrics listening")

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("Metrics server error")
	}
}

func startBot(
	ctx context.Context,
	cfg *config.Config,
	stateService *service.StateService,
	eventBus *events.EventBus,
	bookingService *service.BookingService,
	userService *service.UserService,
	engine *syncengine.Engine,
	db *database.DB,
	botMetrics *bot.Metrics,
	logger *zerolog.Logger,
) error {
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}
	botAPI.Debug = cfg.Telegram.Debug

	botWrapper := bot.NewBotWrapper(botAPI)
	tgService := service.NewTelegramService(botWrapper)

	telegramBot, err := bot.NewBot(
		tgService, cfg, stateService, eventBus,
		bookingService, userService, engine, db,
		botMetrics, logger,
	)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания бота")
		return err
	}

	telegramBot.SubscribeNotifications(eventBus)

	logger.Info().Msg("Бот запущен...")
	telegramBot.Start(ctx)

	logger.Info().Msg("Shutdown complete.")
	return nil
}
