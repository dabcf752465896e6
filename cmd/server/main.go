package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gocoax-monitor/internal/chipid"
	"gocoax-monitor/internal/config"
	"gocoax-monitor/internal/configflow"
	"gocoax-monitor/internal/db"
	"gocoax-monitor/internal/gocoax"
	"gocoax-monitor/internal/logger"
	"gocoax-monitor/internal/metrics"
	"gocoax-monitor/internal/notify"
	"gocoax-monitor/internal/poller"
	"gocoax-monitor/internal/web"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env if exists
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	if cfg.ChipTablePath != "" {
		if err := chipid.Load(cfg.ChipTablePath); err != nil {
			log.Fatal().Err(err).Str("path", cfg.ChipTablePath).Msg("failed to load chip table")
		}
	}

	if _, err := db.InitDB(cfg.DBPath); err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}

	var notifier notify.Notifier
	if cfg.TrapTarget != "" {
		notifier = notify.NewTrapNotifier(cfg.TrapTarget, uint16(cfg.TrapPort), cfg.TrapCommunity)
		log.Info().Str("target", cfg.TrapTarget).Int("port", cfg.TrapPort).Msg("link traps enabled")
	}

	p := poller.New(db.DB, poller.NewClientFactory(cfg.RequestTimeout(), cfg.InsecureSkipVerify), notifier)
	flow := configflow.New(db.DB, configflow.DefaultValidator(
		gocoax.WithTimeout(cfg.ValidateTimeout()),
		gocoax.WithInsecureSkipVerify(cfg.InsecureSkipVerify),
	))
	prometheus.MustRegister(metrics.NewCollector(p))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := p.SetupAll(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to set up config entries")
	}
	go p.Run(ctx, cfg.PollInterval())

	app := fiber.New(fiber.Config{
		Views:                 web.NewEngine(),
		DisableStartupMessage: true,
	})
	web.SetupRoutes(app, web.Deps{
		DB:           db.DB,
		Poller:       p,
		Flow:         flow,
		SetupTimeout: cfg.RequestTimeout() * 3,
	})

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr()).Dur("poll_interval", cfg.PollInterval()).Msg("server running")
	if err := app.Listen(cfg.ListenAddr()); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
