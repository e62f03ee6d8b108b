package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/handlers"
	"github.com/dreambot-go/internal/i18n"
	"github.com/dreambot-go/internal/middleware"
	"github.com/dreambot-go/internal/services/conversation"
	"github.com/dreambot-go/internal/services/responses"
	"github.com/dreambot-go/internal/services/storage"
	"github.com/dreambot-go/internal/tasks"
	"github.com/dreambot-go/pkg/logger"
	"github.com/dreambot-go/pkg/zalgo"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateDiscord(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting Dreambot...")
	log.WithField("token_length", len(cfg.Discord.Token)).Info("Bot token loaded")

	metrics := middleware.NewMetrics()
	startedAt := time.Now()

	storageManager, err := storage.NewManager(cfg, log, metrics)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	defer func() {
		if err := storageManager.Close(); err != nil {
			log.WithError(err).Error("Failed to close storage")
		}
	}()

	community, err := storage.OpenCommunity(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize community store")
	}
	defer func() {
		if err := community.Close(); err != nil {
			log.WithError(err).Error("Failed to close community store")
		}
	}()

	catalog, err := responses.LoadFile(cfg.Engine.CatalogPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load response catalog")
	}
	log.WithField("pools", len(catalog.Names())).Info("Response catalog loaded")

	contexts := conversation.NewContextManager(cfg.Engine, log)
	selector := conversation.NewSelector(storageManager, log, nil)
	engine, err := conversation.NewEngine(catalog, contexts, selector, cfg.Engine, log,
		conversation.WithEngineRecorder(metrics))
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize conversation engine")
	}

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, metrics, log)
	styler := zalgo.NewStyler(nil)

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		log.WithError(err).Fatal("Failed to create Discord session")
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	commandHandler := handlers.NewCommandHandler(
		cfg,
		session,
		engine,
		storageManager,
		community,
		rateLimiter,
		localizer,
		styler,
		metrics,
		log,
	)
	messageHandler := handlers.NewMessageHandler(cfg, session, engine, styler, metrics, log)
	router := handlers.NewRouter(commandHandler, messageHandler, metrics, log)

	session.AddHandler(router.OnReady)
	session.AddHandler(router.OnMessageCreate)

	if err := session.Open(); err != nil {
		log.WithError(err).Fatal("Failed to open Discord connection")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Monitoring.Server.Enabled {
		server := middleware.NewServer(&cfg.Monitoring, func() middleware.Status {
			return middleware.Status{
				Online:       session.DataReady,
				TrackedUsers: contexts.TrackedUsers(),
				StartedAt:    startedAt,
			}
		}, log)
		g.Go(func() error { return server.Run(gctx) })
	}

	if cfg.Persona.WhisperEnabled {
		whisperer := tasks.NewWhisperer(&cfg.Persona, cfg.Discord.WhisperChannel, session, engine, styler, nil, metrics, log)
		g.Go(func() error { return whisperer.Run(gctx) })
	}

	if cfg.Persona.StatusEnabled {
		rotator := tasks.NewStatusRotator(&cfg.Persona, session, catalog.Activities(), nil, metrics, log)
		g.Go(func() error { return rotator.Run(gctx) })
	}

	digest := tasks.NewDigest(&cfg.Community, session, community, localizer, log)
	g.Go(func() error { return digest.Run(gctx) })

	maintenance := tasks.NewMaintenance(contexts, rateLimiter, metrics, log)
	g.Go(func() error { return maintenance.Run(gctx) })

	log.Info("Dreambot is awake")

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Background task failed")
	}
	log.Info("Shutdown signal received")

	if err := session.Close(); err != nil {
		log.WithError(err).Error("Failed to close Discord connection")
	}

	log.WithFields(logrus.Fields{
		"uptime":        time.Since(startedAt).Round(time.Second),
		"tracked_users": contexts.TrackedUsers(),
	}).Info("Bot stopped")
}
