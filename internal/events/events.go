// Package events publica los cambios de las colas para consumidores externos
// (dashboards, auditoría). Publicar es best-effort: un error nunca frena al core.
package events

import (
	"context"
	"time"

	"github.com/jose-valero/queuebot/internal/domain"
)

const (
	TopicMemberAdded   = "queuebot.member.added"
	TopicMemberRemoved = "queuebot.member.removed"
	TopicMoveScheduled = "queuebot.move.scheduled"
	TopicTargetSet     = "queuebot.target.set"
	TopicQueueDeleted  = "queuebot.queue.deleted"
)

type MemberAdded struct {
	GuildID  string        `json:"guild_id"`
	Member   domain.Member `json:"member"`
	Restored bool          `json:"restored"`
}

type MemberRemoved struct {
	GuildID string        `json:"guild_id"`
	Member  domain.Member `json:"member"`
	Held    bool          `json:"held"` // quedó un hold de gracia
}

type MoveScheduled struct {
	GuildID  string    `json:"guild_id"`
	QueueID  string    `json:"queue_id"`
	UserID   string    `json:"user_id"`
	TargetID string    `json:"target_id"`
	At       time.Time `json:"at"`
}

type TargetSet struct {
	GuildID  string `json:"guild_id"`
	QueueID  string `json:"queue_id"`
	TargetID string `json:"target_id"`
}

type QueueDeleted struct {
	GuildID string `json:"guild_id"`
	QueueID string `json:"queue_id"`
}

// Noop no publica nada (cuando NATS no está configurado).
type Noop struct{}

func (Noop) Publish(ctx context.Context, topic string, event any) error { return nil }

func (Noop) Close() error { return nil }
