package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/queuebot/internal/domain"
)

func (r *Router) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil || vs.GuildID == "" {
		return
	}
	selfID := ""
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	ch, ok := presenceFromVoiceState(vs, selfID, func(uid string) bool { return isBotMember(s, vs.GuildID, uid) })
	if !ok {
		return
	}
	if !r.intake.Submit(ch) {
		r.log.Debug("presence dropped after shutdown", "guild", ch.GuildID, "user", ch.UserID)
	}
}

// presenceFromVoiceState arma la transición; false si no cambió de canal.
func presenceFromVoiceState(vs *discordgo.VoiceStateUpdate, selfID string, isBot func(string) bool) (domain.PresenceChange, bool) {
	before := ""
	if vs.BeforeUpdate != nil {
		before = vs.BeforeUpdate.ChannelID
	}
	if before == vs.ChannelID {
		return domain.PresenceChange{}, false
	}
	bot := false
	if vs.Member != nil && vs.Member.User != nil {
		bot = vs.Member.User.Bot
	} else if isBot != nil {
		bot = isBot(vs.UserID)
	}
	self := selfID != "" && vs.UserID == selfID
	return domain.PresenceChange{
		GuildID: vs.GuildID,
		UserID:  vs.UserID,
		Bot:     bot || self,
		Self:    self,
		Before:  before,
		After:   vs.ChannelID,
	}, true
}

func isBotMember(s *discordgo.Session, guildID, userID string) bool {
	if s.State == nil {
		return false
	}
	m, err := s.State.Member(guildID, userID)
	if err != nil || m == nil || m.User == nil {
		return false
	}
	return m.User.Bot
}

func (r *Router) safeGetChannel(id string) (*discordgo.Channel, error) {
	return getChannel(r.s, id)
}

func getChannel(s *discordgo.Session, id string) (*discordgo.Channel, error) {
	if ch, err := s.State.Channel(id); err == nil && ch != nil {
		return ch, nil
	}
	ch, err := s.Channel(id)
	if err != nil {
		return nil, err
	}
	_ = s.State.ChannelAdd(ch)
	return ch, nil
}

// presentByChannel agrupa por canal a los no-bots conectados en la guild.
func presentByChannel(g *discordgo.Guild, selfID string, isBot func(string) bool) map[string][]string {
	bots := map[string]bool{}
	for _, m := range g.Members {
		if m != nil && m.User != nil && m.User.Bot {
			bots[m.User.ID] = true
		}
	}
	out := map[string][]string{}
	for _, vs := range g.VoiceStates {
		if vs == nil || vs.ChannelID == "" || vs.UserID == selfID {
			continue
		}
		if bots[vs.UserID] {
			continue
		}
		if vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot {
			continue
		}
		if isBot != nil && isBot(vs.UserID) {
			continue
		}
		out[vs.ChannelID] = append(out[vs.ChannelID], vs.UserID)
	}
	return out
}
