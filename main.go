package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"roast-telegram-bot/bot"
	"roast-telegram-bot/config"
	"roast-telegram-bot/cooldown"
	"roast-telegram-bot/corpus"
	"roast-telegram-bot/metrics"
	"roast-telegram-bot/resolver"
	"roast-telegram-bot/scheduler"
	"roast-telegram-bot/server"
	"roast-telegram-bot/stats"
	"roast-telegram-bot/storage"
)

func main() {
	// Set up structured logging
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("starting RoastHimBot")

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env", "error", err)
	}

	// Load configuration
	configPath := config.GetConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		slog.Warn("invalid log level, keeping info", "level", cfg.LogLevel)
	}
	slog.Info("config loaded", "path", configPath, "roast_source", cfg.RoastSource, "stats_backend", cfg.StatsBackend)

	// Metrics
	registry := prometheus.NewRegistry()
	if cfg.MetricsEnabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	recorder := metrics.New(cfg.MetricsEnabled, registry)

	// Stats persistence
	var persister stats.Persister
	switch cfg.StatsBackend {
	case "sqlite":
		db, err := storage.NewDB(cfg.DBPath)
		if err != nil {
			slog.Error("failed to initialize database", "path", cfg.DBPath, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		persister = db
		slog.Info("database initialized", "path", cfg.DBPath)
	default:
		persister = stats.NewJSONFile(cfg.StatsFile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statsStore, err := stats.Open(ctx, persister)
	if err != nil {
		slog.Warn("failed to load stats, starting empty", "error", err)
	}

	// Initialize Telegram bot
	tgBot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		slog.Error("failed to initialize Telegram bot", "error", err)
		os.Exit(1)
	}
	slog.Info("telegram bot initialized", "username", tgBot.Self.UserName)

	// Roast corpus with periodic reload
	fetchTimeout := time.Duration(cfg.FetchTimeoutSecs) * time.Second
	roasts := corpus.New(corpus.NewSource(cfg.RoastSource, fetchTimeout), cfg.DefaultRoast)
	reload := func() {
		reloadCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()

		n, err := roasts.Load(reloadCtx)
		recorder.IncCorpusReload(err == nil)
		recorder.SetCorpusLines(roasts.Len())
		if err != nil {
			slog.Warn("failed to reload roasts, keeping previous corpus", "source", cfg.RoastSource, "error", err)
			return
		}
		slog.Info("roasts loaded", "source", cfg.RoastSource, "lines", n)
	}
	reload()

	sched := scheduler.NewScheduler(logger)
	if err := sched.Schedule(cfg.ReloadSchedule, reload); err != nil {
		slog.Error("failed to schedule corpus reload", "schedule", cfg.ReloadSchedule, "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	// Target resolution
	directory := resolver.NewDirectory(cfg.DirectorySizeMB, cfg.DirectoryTTLMins*60)
	targets := resolver.New(resolver.Chain{directory, resolver.NewTelegramLookup(tgBot)}, logger)

	handler := bot.NewCommandHandler(
		bot.NewTelegramSender(tgBot),
		roasts,
		cooldown.New(time.Duration(cfg.CooldownSecs)*time.Second),
		targets,
		statsStore,
		bot.WithTemplate(cfg.RoastTemplate),
		bot.WithBotUsername(tgBot.Self.UserName),
		bot.WithMetrics(recorder),
		bot.WithLogger(logger),
	)

	// Liveness server
	srvOpts := []server.Option{server.WithLogger(logger)}
	if cfg.MetricsEnabled {
		srvOpts = append(srvOpts, server.WithMetrics(metrics.Handler(registry)))
	}
	srv := server.New(cfg.Port, srvOpts...)
	go func() {
		if err := srv.Run(ctx); err != nil {
			slog.Error("liveness server failed", "error", err)
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	slog.Info("starting bot polling")
	run(ctx, tgBot, directory, handler)
	slog.Info("bot stopped")
}

// run handles updates one at a time until ctx is cancelled.
func run(ctx context.Context, tgBot *tgbotapi.BotAPI, directory *resolver.Directory, handler *bot.CommandHandler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := tgBot.GetUpdatesChan(u)
	defer tgBot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			directory.ObserveMessage(update.Message)
			handler.Dispatch(ctx, update.Message)
		}
	}
}
