package cmd

import (
	"context"
	"fmt"
	"time"

	"aviator/bot"
	"aviator/config"
	"aviator/database"
	"aviator/engine"
	"aviator/events"
	"aviator/httpapi"
	"aviator/infrastructure"
	"aviator/infrastructure/observability"
	"aviator/repository"
	"aviator/repository/memstore"
	"aviator/service"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Info("Starting aviator...")

	// Load configuration
	cfg := config.Get()

	// Initialize metrics
	metrics, err := observability.InitializeGlobalMetrics(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := observability.ShutdownGlobalMetrics(shutdownCtx); err != nil {
			log.WithError(err).Warn("Error shutting down metrics")
		}
	}()

	// Initialize event bus
	eventBus := events.NewBus()
	metrics.AttachToBus(eventBus)

	// Initialize storage
	var uowFactory service.UnitOfWorkFactory
	if cfg.UsesDatabase() {
		log.Info("Connecting to database...")
		db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		log.Info("Database connection established successfully")
		uowFactory = repository.NewUnitOfWorkFactory(db, eventBus)
	} else {
		log.Warn("DATABASE_URL not set, game state is kept in memory")
		uowFactory = memstore.NewUnitOfWorkFactory(memstore.New(), eventBus)
	}

	// Initialize services
	bands, err := cfg.CrashBands()
	if err != nil {
		return err
	}
	generator, err := engine.NewCrashPointGenerator(bands, nil)
	if err != nil {
		return fmt.Errorf("failed to create crash point generator: %w", err)
	}

	accounts := service.NewAccountService(uowFactory, service.AccountSettings{
		StartingBalance:     cfg.StartingBalance,
		DemoStartingBalance: cfg.DemoStartingBalance,
	})
	ledger := service.NewBetLedger(uowFactory)
	deposits := service.NewDepositPipeline(uowFactory, service.DepositSettings{
		Currency:              cfg.DepositCurrency,
		RequiredConfirmations: cfg.RequiredConfirmations,
	})
	rounds := service.NewRoundService(uowFactory, ledger)

	roundEngine := engine.New(engine.Config{
		Clock: engine.ClockConfig{
			Interval:  cfg.TickInterval,
			Increment: cfg.TickIncrement,
			OnStall: func(lag time.Duration) {
				log.WithField("lag", lag).Warn("Round clock stalled")
				metrics.RecordTickStall(context.Background(), lag)
			},
		},
		Cooldown:      cfg.RoundCooldown,
		BettingWindow: cfg.BettingWindow,
	}, generator, rounds, ledger)
	game := service.NewGameService(roundEngine, accounts, ledger, deposits, rounds)

	roundEngine.Subscribe(service.NewAutoCashOut(ledger, roundEngine))
	roundEngine.Subscribe(metrics)

	if err := rounds.RecoverInterrupted(ctx); err != nil {
		return fmt.Errorf("failed to recover interrupted rounds: %w", err)
	}

	// Initialize NATS
	if cfg.NATSServers != "" {
		natsClient, err := startNATS(ctx, cfg, eventBus, roundEngine, game, metrics)
		if err != nil {
			return err
		}
		defer natsClient.Close()
	}

	// Initialize Discord bot
	if cfg.DiscordToken != "" {
		log.Info("Initializing Discord bot...")
		discordBot, err := bot.New(bot.Config{
			Token:          cfg.DiscordToken,
			GuildID:        cfg.DiscordGuildID,
			CrashChannelID: cfg.CrashChannelID,
		}, game)
		if err != nil {
			return fmt.Errorf("failed to initialize Discord bot: %w", err)
		}
		defer func() {
			if err := discordBot.Close(); err != nil {
				log.WithError(err).Warn("Error closing Discord bot")
			}
		}()
		log.Info("Discord bot initialized successfully")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return roundEngine.Run(gctx)
	})

	stopCredits := service.NewDepositCreditWorker(deposits, cfg.DepositCreditInterval).Start(gctx)
	defer stopCredits()

	server := httpapi.NewServer(cfg.HTTPAddr, httpapi.NewRouter(game, cfg.CORSAllowedOrigins))
	g.Go(func() error {
		return server.Run(gctx, shutdownTimeout)
	})

	log.Infof("Aviator is running in %s mode...", cfg.Environment)
	err = g.Wait()
	log.Info("Shutting down...")
	return err
}

// startNATS connects to NATS and wires the domain event stream, the live
// round feed and the deposit confirmation consumer.
func startNATS(ctx context.Context, cfg *config.Config, bus *events.Bus, roundEngine *engine.Engine, game service.GameService, metrics *observability.MetricsProvider) (*infrastructure.NATSClient, error) {
	log.Info("Connecting to NATS...")
	client := infrastructure.NewNATSClient(cfg.NATSServers)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	mapper := infrastructure.NewEventSubjectMapper()
	if err := client.EnsureStream(infrastructure.DomainEventStream, mapper.GetAllSubjects(), "Aviator domain events"); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create event stream: %w", err)
	}
	if err := client.EnsureStream(infrastructure.ConfirmationStream, []string{infrastructure.DepositConfirmationsSubject}, "Deposit confirmation reports"); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create confirmation stream: %w", err)
	}

	publisher := infrastructure.NewNATSEventPublisher(client, mapper)
	publisher.OnPublish(metrics.RecordNATSPublished)
	publisher.Attach(bus)

	roundEngine.Subscribe(infrastructure.NewRoundFeedPublisher(client))

	if err := infrastructure.NewDepositConfirmationConsumer(game).Start(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start deposit confirmation consumer: %w", err)
	}

	log.Info("NATS wiring complete")
	return client, nil
}
