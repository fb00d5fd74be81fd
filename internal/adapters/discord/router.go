package discord

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/queuebot/internal/app/service"
)

const (
	commandTimeout   = 12 * time.Second
	cleanupTimeout   = 10 * time.Second
	reconcileTimeout = 30 * time.Second
	clickWindow      = time.Second
)

type Router struct {
	s       *discordgo.Session
	log     *slog.Logger
	guildID string // "" = comandos globales

	adminRoleIDs []string
	queue        *service.QueueService
	intake       *service.Intake
	display      *Display
	clickLimiter *userLimiter
}

func NewRouter(
	s *discordgo.Session,
	log *slog.Logger,
	guildID string,
	adminRoleIDs []string,
	queue *service.QueueService,
	intake *service.Intake,
	display *Display,
) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		s:            s,
		log:          log,
		guildID:      guildID,
		adminRoleIDs: adminRoleIDs,
		queue:        queue,
		intake:       intake,
		display:      display,
		clickLimiter: newUserLimiter(clickWindow),
	}
}

// Register crea (o pisa) los slash commands.
func (r *Router) Register() error {
	appID := r.s.State.User.ID
	_, err := r.s.ApplicationCommandBulkOverwrite(appID, r.guildID, Commands)
	return err
}

// Handlers engancha interacciones, voz y borrado de canales.
func (r *Router) Handlers() {
	r.s.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		switch ic.Type {
		case discordgo.InteractionApplicationCommand:
			r.handleSlashCommand(s, ic)
		case discordgo.InteractionMessageComponent:
			r.handleMessageComponent(s, ic)
		}
	})
	r.s.AddHandler(r.onVoiceStateUpdate)
	r.s.AddHandler(r.onChannelDelete)
	r.s.AddHandler(r.onGuildCreate)
}

// onGuildCreate llega al conectar (y reconectar): las colas de voz se
// alinean con quién está conectado ahora.
func (r *Router) onGuildCreate(s *discordgo.Session, gc *discordgo.GuildCreate) {
	if gc.Guild == nil || gc.Unavailable {
		return
	}
	if r.guildID != "" && gc.ID != r.guildID {
		return
	}
	selfID := ""
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	present := presentByChannel(gc.Guild, selfID, func(uid string) bool { return isBotMember(s, gc.ID, uid) })

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()
		if _, _, err := r.queue.Reconcile(ctx, gc.ID, present); err != nil {
			r.log.Warn("reconcile failed", "guild", gc.ID, "err", err)
		}
	}()
}

func (r *Router) onChannelDelete(_ *discordgo.Session, cd *discordgo.ChannelDelete) {
	if cd.Channel == nil || cd.GuildID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := r.queue.ChannelDeleted(ctx, cd.GuildID, cd.ID); err != nil {
		r.log.Warn("channel delete cleanup failed", "guild", cd.GuildID, "channel", cd.ID, "err", err)
	}
}
