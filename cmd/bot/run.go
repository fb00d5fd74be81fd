package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"

	discordrouter "github.com/jose-valero/queuebot/internal/adapters/discord"
	"github.com/jose-valero/queuebot/internal/app/dispatch"
	"github.com/jose-valero/queuebot/internal/app/service"
	"github.com/jose-valero/queuebot/internal/events"
	"github.com/jose-valero/queuebot/internal/infra/storage"
)

// publisher es service.Publisher más Close.
type publisher interface {
	service.Publisher
	Close() error
}

func newRunCommand(ctx *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Conecta el bot y atiende colas hasta recibir SIGINT/SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), ctx)
		},
	}
}

func runBot(parent context.Context, cc *cliContext) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	log := cc.log
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("db ready")

	// Repos
	queueRepo := storage.NewQueueRepo(db)
	memberRepo := storage.NewMemberRepo(db)
	ruleRepo := storage.NewRuleRepo(db)
	settingsRepo := storage.NewGuildSettingsRepo(db)
	displayRepo := storage.NewDisplayRepo(db)

	// Eventos
	var pub publisher = events.Noop{}
	if cfg.NATSURL != "" {
		np, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		pub = np
		log.Info("publishing events to nats", "url", cfg.NATSURL)
	}
	defer pub.Close()

	// Discord session
	auth := strings.TrimSpace(cfg.DiscordToken)
	if !strings.HasPrefix(strings.ToLower(auth), "bot ") {
		auth = "Bot " + auth
	}
	s, err := discordgo.New(auth)
	if err != nil {
		return err
	}
	s.SyncEvents = true
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	// Display + dispatcher (el snapshotter se engancha cuando existe QueueService)
	tune := cfg.Tuning
	display := discordrouter.NewDisplay(s, nil, displayRepo, settingsRepo, log)
	platform := discordrouter.NewPlatform(s, displayRepo, log)
	dispatcher := dispatch.New(display, platform,
		dispatch.WithLogger(log),
		dispatch.WithFlushPeriod(tune.FlushPeriod()),
		dispatch.WithFlushConcurrency(tune.FlushConcurrency),
		dispatch.WithMoveWindow(tune.MoveBurst, tune.MoveWindow()),
	)

	// Services
	store := service.NewMembership(memberRepo, ruleRepo,
		service.WithMembershipLogger(log),
		service.WithMembershipEvents(pub),
	)
	planner := service.NewPlanner(store, queueRepo, platform, dispatcher, log, pub)
	interp := service.NewInterpreter(queueRepo, store, planner, dispatcher,
		service.WithInterpreterLogger(log),
		service.WithInterpreterEvents(pub),
		service.WithSettleDelay(tune.SettleDelay()),
	)
	queueSvc := service.NewQueueService(queueRepo, ruleRepo, settingsRepo, store, planner, dispatcher, log, pub)
	display.SetSnapshotter(queueSvc)

	intake := service.NewIntake(interp, tune.IntakeWorkers, log)
	intake.Start(ctx)
	defer intake.Stop()

	r := discordrouter.NewRouter(s, log, cfg.DiscordGuild, cfg.AdminRoleIDs, queueSvc, intake, display)
	// handlers antes de Open: el primer GuildCreate dispara la reconciliación
	r.Handlers()

	if err := s.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	defer s.Close()
	log.Info("connected", "user", s.State.User.Username, "id", s.State.User.ID)

	if err := r.Register(); err != nil {
		return fmt.Errorf("registrando comandos: %w", err)
	}
	log.Info("commands registered", "guild", cfg.DiscordGuild)

	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatcher.Run(ctx)
	}()

	<-ctx.Done()
	log.Info("shutting down")
	intake.Stop()
	<-done
	return nil
}
