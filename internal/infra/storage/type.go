package storage

import (
	"database/sql"
	"time"

	"github.com/jose-valero/queuebot/internal/domain"
)

type queueRow struct {
	ChannelID    string
	GuildID      string
	Kind         string
	TargetID     sql.NullString
	Capacity     int
	GraceSeconds int
	AutoFill     string
	PullNum      int
}

func (r queueRow) toDomain() domain.Queue {
	return domain.Queue{
		ID:          r.ChannelID,
		GuildID:     r.GuildID,
		Kind:        domain.Kind(r.Kind),
		TargetID:    r.TargetID.String,
		Capacity:    r.Capacity,
		GracePeriod: time.Duration(r.GraceSeconds) * time.Second,
		AutoFill:    domain.AutoFill(r.AutoFill),
		PullNum:     r.PullNum,
	}
}

// Para updates parciales desde /queue set
type QueuePatch struct {
	Capacity     *int
	GraceSeconds *int
	AutoFill     *domain.AutoFill
	PullNum      *int
}

type QueueDisplay struct {
	QueueID   string
	ChannelID string
	MessageID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type DisplayMode string

const (
	DisplayEdit    DisplayMode = "edit"
	DisplayReplace DisplayMode = "replace"
)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
