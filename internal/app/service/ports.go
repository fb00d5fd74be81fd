package service

import (
	"context"

	"github.com/jose-valero/queuebot/internal/app/dispatch"
	"github.com/jose-valero/queuebot/internal/domain"
	"github.com/jose-valero/queuebot/internal/infra/storage"
)

// Lo implementa internal/infra/storage.QueueRepo
type QueueRepo interface {
	Get(ctx context.Context, queueID string) (domain.Queue, error)
	ListByTarget(ctx context.Context, guildID, targetID string) ([]domain.Queue, error)
	ListByGuild(ctx context.Context, guildID string) ([]domain.Queue, error)
	Upsert(ctx context.Context, q domain.Queue) error
	SetTarget(ctx context.Context, queueID, targetID string) error
	ClearTargetRefs(ctx context.Context, guildID, targetID string) (int64, error)
	Delete(ctx context.Context, queueID string) (bool, error)
	Patch(ctx context.Context, queueID string, u storage.QueuePatch) (domain.Queue, error)
}

// Lo implementa internal/infra/storage.MemberRepo
type MemberRepo interface {
	Get(ctx context.Context, queueID, userID string) (domain.Member, bool, error)
	Insert(ctx context.Context, m domain.Member) error
	Count(ctx context.Context, queueID string) (int, error)
	List(ctx context.Context, queueID string, limit int) ([]domain.Member, error)
	MaxPosition(ctx context.Context, queueID string) (int64, error)
	Delete(ctx context.Context, queueID string, userIDs []string) ([]domain.Member, error)
	SetPriority(ctx context.Context, queueID, userID string, priority bool) (bool, error)
	SetPositions(ctx context.Context, queueID string, positions map[string]int64) error
	ListByUser(ctx context.Context, guildID, userID string) ([]domain.Member, error)
}

// Lo implementa internal/infra/storage.RuleRepo
type AdmissionPolicy interface {
	Admission(ctx context.Context, queueID, userID string) (domain.Admission, error)
}

// Lo implementa internal/adapters/discord.Platform
type Platform interface {
	Channel(ctx context.Context, guildID, channelID string) (domain.ChannelInfo, error)
	CanMoveInto(ctx context.Context, guildID, channelID string) (bool, error)
	RelocateMember(ctx context.Context, guildID, userID, channelID string) error
	// NotifyOperator avisa en el canal de display si existe, si no al owner.
	NotifyOperator(ctx context.Context, guildID, queueID, msg string) error
}

// Lo implementa internal/app/dispatch.Dispatcher
type Dispatcher interface {
	ScheduleDisplayUpdate(req dispatch.DisplayRequest)
	ScheduleMove(ctx context.Context, guildID, userID, channelID string) dispatch.Task
	TryMoveNow(ctx context.Context, guildID, userID, channelID string) bool
}

// Lo implementa internal/events (NATS o noop)
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// Lo implementa internal/infra/storage.RuleRepo
type RuleRepo interface {
	AdmissionPolicy
	Add(ctx context.Context, queueID, userID string, kind storage.RuleKind) error
	Remove(ctx context.Context, queueID, userID string, kind storage.RuleKind) (bool, error)
}

// Lo implementa internal/infra/storage.GuildSettingsRepo
type SettingsRepo interface {
	DisplayMode(ctx context.Context, guildID string) (storage.DisplayMode, error)
	SetDisplayMode(ctx context.Context, guildID string, mode storage.DisplayMode) error
}
