// esta es la logica de InteractionApplicationCommand de discordgo
// aqui solo manejamos la interaccion del usuario y despachamos al QueueService
package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/queuebot/internal/app/service"
	"github.com/jose-valero/queuebot/internal/domain"
	"github.com/jose-valero/queuebot/internal/infra/storage"
)

// subcomandos que cualquiera puede usar
var publicSubcommands = map[string]bool{"status": true, "join": true, "leave": true, "mine": true}

func (r *Router) handleSlashCommand(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	cmd := ic.ApplicationCommandData()
	sub, _ := subcmdName(ic)
	log := r.log.With("cmd", cmd.Name, "sub", sub, "by", invokerID(ic), "guild", ic.GuildID)
	log.Debug("slash command")

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic in slash command", "panic", rec)
			ReplyEphemeral(s, ic, "❌ Ocurrió un error inesperado procesando el comando. Contacta con un administrador.")
		}
	}()
	defer step(log, "slash command done")()

	_ = DeferEphemeral(s, ic)
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if cmd.Name != "queue" || sub == "" {
		ReplyEphemeral(s, ic, "Usa `/queue add`, `/queue status`, `/queue mine`…")
		return
	}
	if ic.GuildID == "" {
		ReplyEphemeral(s, ic, "Este comando sólo funciona dentro de un servidor.")
		return
	}
	if !publicSubcommands[sub] && !r.requireAdminOrRoles(s, ic) {
		return
	}

	msg, err := r.runQueueCommand(ctx, ic, sub)
	if err != nil {
		log.Warn("queue command failed", "err", err)
		msg = "⚠️ No se pudo completar: " + err.Error()
	}
	ReplyEphemeral(s, ic, msg)
}

func (r *Router) runQueueCommand(ctx context.Context, ic *discordgo.InteractionCreate, sub string) (string, error) {
	guildID, userID := ic.GuildID, invokerID(ic)
	channelID, _ := optID(ic, "channel")

	switch sub {
	case "add":
		ch, err := r.safeGetChannel(channelID)
		if err != nil {
			return "", fmt.Errorf("canal: %w", err)
		}
		set := settingsFromOptions(ic)
		set.Kind = domain.KindText
		if ch.Type == discordgo.ChannelTypeGuildVoice || ch.Type == discordgo.ChannelTypeGuildStageVoice {
			set.Kind = domain.KindVoice
		}
		return r.queue.Add(ctx, guildID, channelID, set)

	case "set":
		set := settingsFromOptions(ic)
		var patch storage.QueuePatch
		if v, ok := optInt(ic, "capacity"); ok {
			patch.Capacity = &v
		}
		if v, ok := optInt(ic, "grace"); ok {
			patch.GraceSeconds = &v
		}
		if set.AutoFill != "" {
			patch.AutoFill = &set.AutoFill
		}
		if v, ok := optInt(ic, "pullnum"); ok {
			patch.PullNum = &v
		}
		return r.queue.Configure(ctx, guildID, channelID, patch)

	case "remove":
		return r.queue.Remove(ctx, guildID, channelID)

	case "pull":
		n, _ := optInt(ic, "count")
		return r.queue.Pull(ctx, guildID, channelID, n)

	case "shuffle":
		return r.queue.Shuffle(ctx, guildID, channelID)

	case "kick":
		target, _ := optID(ic, "user")
		return r.queue.Kick(ctx, guildID, channelID, target)

	case "deny", "priority":
		target, _ := optID(ic, "user")
		on := true
		if v, ok := optBool(ic, "enabled"); ok {
			on = v
		}
		kind := storage.RuleDeny
		if sub == "priority" {
			kind = storage.RulePriority
		}
		return r.queue.SetRule(ctx, guildID, channelID, target, kind, on)

	case "display":
		err := r.display.Publish(ctx, guildID, channelID, ic.ChannelID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Sprintf("❌ <#%s> no es una cola.", channelID), nil
		}
		if err != nil {
			return "", fmt.Errorf("publicar listado: %w", err)
		}
		return fmt.Sprintf("✅ Listado de <#%s> publicado aquí.", channelID), nil

	case "mode":
		mode, _ := optStr(ic, "mode")
		return r.queue.SetDisplayMode(ctx, guildID, storage.DisplayMode(mode))

	case "status":
		return r.queue.Status(ctx, guildID, channelID)

	case "join":
		note, _ := optStr(ic, "note")
		return r.queue.Join(ctx, guildID, channelID, userID, note)

	case "leave":
		return r.queue.Leave(ctx, guildID, channelID, userID)

	case "mine":
		return r.queue.Mine(ctx, guildID, userID)
	}
	return "Subcomando desconocido.", nil
}

func settingsFromOptions(ic *discordgo.InteractionCreate) service.QueueSettings {
	var set service.QueueSettings
	set.Capacity, _ = optInt(ic, "capacity")
	set.GraceSeconds, _ = optInt(ic, "grace")
	set.PullNum, _ = optInt(ic, "pullnum")
	if v, ok := optStr(ic, "autofill"); ok {
		set.AutoFill = domain.AutoFill(v)
	}
	return set
}
