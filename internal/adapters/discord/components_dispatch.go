package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

const componentTimeout = 8 * time.Second

// botones del listado de colas de texto
func (r *Router) handleMessageComponent(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	data := ic.MessageComponentData()
	action, queueID, ok := parseComponentID(data.CustomID)
	if !ok {
		return
	}
	userID := invokerID(ic)
	log := r.log.With("component", action, "queue", queueID, "by", userID, "guild", ic.GuildID)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic in component", "panic", rec)
		}
	}()

	_ = DeferEphemeral(s, ic)
	if !r.clickLimiter.Allow(userID) {
		ReplyEphemeral(s, ic, "⏳ Esperá un segundo…")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), componentTimeout)
	defer cancel()

	var (
		msg string
		err error
	)
	switch action {
	case actionJoin:
		msg, err = r.queue.Join(ctx, ic.GuildID, queueID, userID, "")
	case actionLeave:
		msg, err = r.queue.Leave(ctx, ic.GuildID, queueID, userID)
	default:
		return
	}
	if err != nil {
		log.Warn("component failed", "err", err)
		msg = "⚠️ No se pudo completar: " + err.Error()
	}
	ReplyEphemeral(s, ic, msg)
}
