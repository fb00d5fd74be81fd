package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/queuebot/internal/domain"
	"github.com/jose-valero/queuebot/internal/infra/storage"
)

// códigos JSON de Discord
const (
	codeUnknownChannel = 10003
	codeUnknownMessage = 10008
	codeUnknownWebhook = 10015
)

// DisplayStore lo implementa storage.DisplayRepo
type DisplayStore interface {
	Get(ctx context.Context, queueID string) (storage.QueueDisplay, error)
	Upsert(ctx context.Context, queueID, channelID, messageID string) error
}

// Platform es la vista del core sobre Discord: canales, permisos y moves.
type Platform struct {
	s        *discordgo.Session
	log      *slog.Logger
	displays DisplayStore
}

func NewPlatform(s *discordgo.Session, displays DisplayStore, log *slog.Logger) *Platform {
	if log == nil {
		log = slog.Default()
	}
	return &Platform{s: s, log: log, displays: displays}
}

func (p *Platform) Channel(ctx context.Context, guildID, channelID string) (domain.ChannelInfo, error) {
	ch, err := p.channel(ctx, channelID)
	if err != nil {
		return domain.ChannelInfo{}, err
	}
	info := domain.ChannelInfo{ID: ch.ID, GuildID: guildID, Capacity: ch.UserLimit}
	if states, err := snapshotVoiceStates(p.s.State, guildID); err == nil {
		// isBotMember toma el lock del state: va fuera de la copia
		info.NonBotOccupants = countOccupants(states, channelID, func(uid string) bool { return isBotMember(p.s, guildID, uid) })
	}
	return info, nil
}

// snapshotVoiceStates copia los voice states de la guild bajo el lock del
// state; el gateway los reescribe en otra goroutine.
func snapshotVoiceStates(st *discordgo.State, guildID string) ([]discordgo.VoiceState, error) {
	g, err := st.Guild(guildID)
	if err != nil {
		return nil, err
	}
	st.RLock()
	defer st.RUnlock()
	return copyVoiceStates(g), nil
}

func copyVoiceStates(g *discordgo.Guild) []discordgo.VoiceState {
	out := make([]discordgo.VoiceState, 0, len(g.VoiceStates))
	for _, vs := range g.VoiceStates {
		if vs != nil {
			out = append(out, *vs)
		}
	}
	return out
}

func (p *Platform) CanMoveInto(ctx context.Context, guildID, channelID string) (bool, error) {
	if _, err := p.channel(ctx, channelID); err != nil {
		return false, err
	}
	perms, err := p.s.State.UserChannelPermissions(p.s.State.User.ID, channelID)
	if err != nil {
		return false, fmt.Errorf("permissions: %w", err)
	}
	return canMove(perms), nil
}

func (p *Platform) RelocateMember(ctx context.Context, guildID, userID, channelID string) error {
	err := p.s.GuildMemberMove(guildID, userID, &channelID, discordgo.WithContext(ctx))
	if isUnknown(err, codeUnknownChannel) {
		return domain.ErrChannelNotFound
	}
	return err
}

// NotifyOperator escribe en el canal del display de la cola o, si no hay,
// por DM al dueño del server.
func (p *Platform) NotifyOperator(ctx context.Context, guildID, queueID, msg string) error {
	if d, err := p.displays.Get(ctx, queueID); err == nil && d.ChannelID != "" {
		_, err := p.s.ChannelMessageSend(d.ChannelID, msg, discordgo.WithContext(ctx))
		if err == nil {
			return nil
		}
		p.log.Warn("notice to display channel failed, trying owner", "guild", guildID, "queue", queueID, "err", err)
	}

	g, err := p.s.State.Guild(guildID)
	if err != nil {
		if g, err = p.s.Guild(guildID, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("guild lookup: %w", err)
		}
	}
	dm, err := p.s.UserChannelCreate(g.OwnerID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("owner dm: %w", err)
	}
	_, err = p.s.ChannelMessageSend(dm.ID, msg, discordgo.WithContext(ctx))
	return err
}

func (p *Platform) channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if ch, err := p.s.State.Channel(channelID); err == nil && ch != nil {
		return ch, nil
	}
	ch, err := p.s.Channel(channelID, discordgo.WithContext(ctx))
	if isUnknown(err, codeUnknownChannel) {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, err
	}
	_ = p.s.State.ChannelAdd(ch)
	return ch, nil
}

// countOccupants cuenta usuarios no-bot conectados al canal.
func countOccupants(states []discordgo.VoiceState, channelID string, isBot func(string) bool) int {
	n := 0
	for _, vs := range states {
		if vs.ChannelID != channelID {
			continue
		}
		if vs.Member != nil && vs.Member.User != nil {
			if vs.Member.User.Bot {
				continue
			}
		} else if isBot != nil && isBot(vs.UserID) {
			continue
		}
		n++
	}
	return n
}

func canMove(perms int64) bool {
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return perms&discordgo.PermissionVoiceMoveMembers != 0
}

// isUnknown: 404 de Discord con el código JSON indicado.
func isUnknown(err error, code int) bool {
	var re *discordgo.RESTError
	if !errors.As(err, &re) {
		return false
	}
	if re.Message != nil && re.Message.Code == code {
		return true
	}
	return re.Message == nil && re.Response != nil && re.Response.StatusCode == http.StatusNotFound
}
