package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/trogers1052/stock-watch-agent/internal/analysis"
	"github.com/trogers1052/stock-watch-agent/internal/api"
	"github.com/trogers1052/stock-watch-agent/internal/commands"
	"github.com/trogers1052/stock-watch-agent/internal/config"
	"github.com/trogers1052/stock-watch-agent/internal/database"
	"github.com/trogers1052/stock-watch-agent/internal/dedup"
	"github.com/trogers1052/stock-watch-agent/internal/kafka"
	"github.com/trogers1052/stock-watch-agent/internal/market"
	"github.com/trogers1052/stock-watch-agent/internal/monitor"
	"github.com/trogers1052/stock-watch-agent/internal/notify"
	"github.com/trogers1052/stock-watch-agent/internal/store"
	"github.com/trogers1052/stock-watch-agent/internal/telegram"
)

const feedHistory = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *database.DB
	var st store.Store
	switch cfg.Monitor.StoreBackend {
	case "postgres":
		db, err = database.New(cfg.Database.ConnectionString())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		if err := db.InitGlobalSettings(ctx, cfg.Monitor.Settings()); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize global settings")
		}
		st = db
	default:
		st = store.NewMemory(cfg.Monitor.Settings())
	}
	log.Info().Str("backend", cfg.Monitor.StoreBackend).Msg("Watchlist store ready")

	if cfg.Monitor.SeedFile != "" {
		if err := seedWatchlist(ctx, st, cfg.Monitor.SeedFile, cfg.Monitor.SeedChatID); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed watchlist")
		}
	}

	checks := map[string]api.Pinger{}
	if db != nil {
		checks["database"] = db
	}

	var fps dedup.Store
	switch cfg.Dedup.Backend {
	case "postgres":
		fps = db
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		rs := dedup.NewRedisStore(rdb, cfg.Dedup.Horizon)
		if err := rs.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		checks["redis"] = rs
		fps = rs
	default:
		fps = dedup.NewMemory()
	}
	log.Info().Str("backend", cfg.Dedup.Backend).Dur("horizon", cfg.Dedup.Horizon).Msg("Fingerprint store ready")

	if cfg.Polygon.APIKey == "" {
		log.Fatal().Msg("POLYGON_API_KEY is required")
	}
	gateway := market.NewPolygon(cfg.Polygon.APIKey, &http.Client{Timeout: cfg.Polygon.Timeout})
	resolver := market.NewYahooResolver(cfg.Polygon.Timeout)

	var gen analysis.Generator
	if cfg.Gemini.APIKey != "" {
		g, err := analysis.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Timeout)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create analysis client")
		}
		gen = g
		log.Info().Str("model", cfg.Gemini.Model).Msg("AI analysis enabled")
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, AI analysis disabled")
	}
	analyst := analysis.NewService(gen)

	if cfg.Telegram.BotToken == "" {
		log.Fatal().Msg("TELEGRAM_BOT_TOKEN is required")
	}
	tg := telegram.NewClient(cfg.Telegram.BaseURL, cfg.Telegram.BotToken, &http.Client{Timeout: cfg.Telegram.PollTimeout + 10*time.Second})

	feed := api.NewFeed(feedHistory)
	router := notify.NewRouter(tg, feed)

	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		defer producer.Close()
		router.AddListener(producer)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.EventsTopic).Msg("Event bus enabled")
	}

	scheduler := monitor.NewScheduler(st, fps, gateway, router, monitor.Options{
		Resolution:           cfg.Monitor.Resolution,
		MaxConcurrentFetches: cfg.Monitor.MaxConcurrentFetches,
		CycleTimeout:         cfg.Monitor.CycleTimeout,
		ShutdownTimeout:      cfg.Monitor.ShutdownTimeout,
		PriceWindow:          cfg.Dedup.PriceWindow,
	})

	opts := []commands.Option{
		commands.WithResolver(resolver),
		commands.WithAnalyst(analyst),
		commands.WithStats(scheduler),
		commands.WithDisambiguationTTL(cfg.Monitor.DisambiguationTTL),
	}
	var publisher commands.EventPublisher
	if producer != nil {
		publisher = producer
		opts = append(opts, commands.WithPublisher(producer))
	}
	dispatcher := commands.NewDispatcher(st, gateway, opts...)
	inbox := commands.NewInbox(dispatcher, router, cfg.Telegram.AllowedChatIDs)

	handler := api.NewHandler(st, scheduler, publisher)
	for name, p := range checks {
		handler.AddHealthCheck(name, p)
	}

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	run(dedup.NewSweeper(fps, cfg.Dedup.Horizon, cfg.Dedup.SweepInterval).Run)
	run(telegram.NewPoller(tg, inbox, cfg.Telegram.PollTimeout).Run)

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.CommandTopic != "" {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.CommandTopic, cfg.Kafka.GroupID, inbox, fps)
		run(func(ctx context.Context) {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Kafka command consumer stopped")
			}
		})
	}

	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	go func() {
		if err := scheduler.RunNow(ctx); err != nil && !errors.Is(err, monitor.ErrStopping) {
			log.Warn().Err(err).Msg("Initial monitoring cycle failed")
		}
	}()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           api.WithCORS(api.SetupRoutes(handler, feed), cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Monitor.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown failed")
	}

	scheduler.Stop()
	wg.Wait()
	log.Info().Msg("Shutdown complete")
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// seedWatchlist loads the YAML seed for one chat. Existing entries are kept.
func seedWatchlist(ctx context.Context, st store.Store, path string, chatID int64) error {
	if chatID == 0 {
		log.Warn().Str("file", path).Msg("SEED_CHAT_ID not set, skipping watchlist seed")
		return nil
	}

	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	if err := st.EnsureUser(ctx, chatID); err != nil {
		return err
	}

	for _, e := range seed.Stocks {
		if _, err := st.AddTicker(ctx, chatID, e.Ticker); err != nil {
			return err
		}
		if !e.IsEnabled() {
			if err := st.SetEnabled(ctx, chatID, e.Ticker, false); err != nil {
				return err
			}
		}
	}
	log.Info().Int64("chat_id", chatID).Int("stocks", len(seed.Stocks)).Msg("Watchlist seeded")
	return nil
}
