package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/queuebot/internal/app/dispatch"
	"github.com/jose-valero/queuebot/internal/domain"
	"github.com/jose-valero/queuebot/internal/infra/storage"
)

// displayLimit: filas por embed (la descripción tope es 4096 chars).
const displayLimit = 50

type Snapshotter interface {
	Snapshot(ctx context.Context, queueID string) (domain.Queue, []domain.Member, error)
}

type SettingsStore interface {
	DisplayMode(ctx context.Context, guildID string) (storage.DisplayMode, error)
}

// Display publica y refresca el listado visible de cada cola. Implementa
// dispatch.Renderer; el dispatcher decide cuándo llamarlo.
type Display struct {
	s        *discordgo.Session
	log      *slog.Logger
	queues   Snapshotter
	displays DisplayStore
	settings SettingsStore
	now      func() time.Time
}

func NewDisplay(s *discordgo.Session, queues Snapshotter, displays DisplayStore, settings SettingsStore, log *slog.Logger) *Display {
	if log == nil {
		log = slog.Default()
	}
	return &Display{s: s, log: log, queues: queues, displays: displays, settings: settings, now: time.Now}
}

// SetSnapshotter cierra el ciclo display <-> QueueService al armar main.
func (d *Display) SetSnapshotter(q Snapshotter) { d.queues = q }

func (d *Display) RenderAndPublish(ctx context.Context, req dispatch.DisplayRequest) error {
	cur, err := d.displays.Get(ctx, req.QueueID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("display lookup: %w", err)
	}

	q, members, err := d.queues.Snapshot(ctx, req.QueueID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	embed, comps := renderQueueEmbed(q, members, d.now())

	mode, err := d.settings.DisplayMode(ctx, q.GuildID)
	if err != nil {
		d.log.Warn("display mode lookup failed, using edit", "guild", q.GuildID, "err", err)
		mode = storage.DisplayEdit
	}

	if mode == storage.DisplayEdit && cur.MessageID != "" {
		em := []*discordgo.MessageEmbed{embed}
		_, err := d.s.ChannelMessageEditComplex(&discordgo.MessageEdit{
			Channel:    cur.ChannelID,
			ID:         cur.MessageID,
			Embeds:     &em,
			Components: &comps,
		}, discordgo.WithContext(ctx))
		if err == nil {
			return nil
		}
		if !isUnknown(err, codeUnknownMessage) {
			return fmt.Errorf("edit display: %w", err)
		}
		d.log.Info("display message gone, reposting", "queue", q.ID, "channel", cur.ChannelID)
	}
	return d.send(ctx, q.ID, cur, cur.ChannelID, embed, comps)
}

// Publish postea el display de la cola en channelID (comando /queue display).
func (d *Display) Publish(ctx context.Context, guildID, queueID, channelID string) error {
	cur, err := d.displays.Get(ctx, queueID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	q, members, err := d.queues.Snapshot(ctx, queueID)
	if err != nil {
		return err
	}
	if q.GuildID != guildID {
		return storage.ErrNotFound
	}
	embed, comps := renderQueueEmbed(q, members, d.now())
	return d.send(ctx, queueID, cur, channelID, embed, comps)
}

// send manda un mensaje nuevo, guarda la referencia y borra el viejo.
func (d *Display) send(ctx context.Context, queueID string, old storage.QueueDisplay, channelID string, embed *discordgo.MessageEmbed, comps []discordgo.MessageComponent) error {
	msg, err := d.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: comps,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send display: %w", err)
	}
	if err := d.displays.Upsert(ctx, queueID, channelID, msg.ID); err != nil {
		return fmt.Errorf("save display: %w", err)
	}
	if old.MessageID != "" && old.MessageID != msg.ID {
		err := d.s.ChannelMessageDelete(old.ChannelID, old.MessageID, discordgo.WithContext(ctx))
		if err != nil && !isUnknown(err, codeUnknownMessage) {
			d.log.Debug("old display delete failed", "queue", queueID, "message", old.MessageID, "err", err)
		}
	}
	return nil
}

func renderQueueEmbed(q domain.Queue, members []domain.Member, now time.Time) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	var b strings.Builder
	fmt.Fprintf(&b, "<#%s>", q.ID)
	if q.TargetID != "" {
		fmt.Fprintf(&b, " → <#%s>", q.TargetID)
	}
	b.WriteString("\n\n")

	if len(members) == 0 {
		b.WriteString("Nadie en cola.")
	}
	for i, m := range members {
		if i == displayLimit {
			fmt.Fprintf(&b, "… y %d más", len(members)-displayLimit)
			break
		}
		star := ""
		if m.Priority {
			star = " ⭐"
		}
		note := ""
		if m.Note != "" {
			note = " · " + m.Note
		}
		fmt.Fprintf(&b, "%d) <@%s>%s · <t:%d:R>%s\n", i+1, m.UserID, star, m.JoinedAt().Unix(), note)
	}

	footer := fmt.Sprintf("%d en cola", len(members))
	if q.Capacity > 0 {
		footer = fmt.Sprintf("%d/%d en cola", len(members), q.Capacity)
	}
	embed := &discordgo.MessageEmbed{
		Title:       "Cola",
		Description: b.String(),
		Footer:      &discordgo.MessageEmbedFooter{Text: footer},
		Timestamp:   now.Format(time.RFC3339),
	}

	if q.Kind != domain.KindText {
		return embed, []discordgo.MessageComponent{}
	}
	return embed, []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Style:    discordgo.PrimaryButton,
					Label:    "Unirme",
					CustomID: componentID(actionJoin, q.ID),
					Emoji:    &discordgo.ComponentEmoji{Name: "🌕"},
				},
				discordgo.Button{
					Style:    discordgo.SecondaryButton,
					Label:    "Salir",
					CustomID: componentID(actionLeave, q.ID),
					Emoji:    &discordgo.ComponentEmoji{Name: "👋"},
				},
			},
		},
	}
}
