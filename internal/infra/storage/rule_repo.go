package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jose-valero/queuebot/internal/domain"
)

type RuleKind string

const (
	RuleDeny     RuleKind = "deny"
	RulePriority RuleKind = "priority"
)

// RuleRepo guarda denylist y prioridad por cola.
type RuleRepo struct{ db *sql.DB }

func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

func (r *RuleRepo) Admission(ctx context.Context, queueID, userID string) (domain.Admission, error) {
	var a domain.Admission
	err := r.db.QueryRowContext(ctx, `
SELECT COALESCE(bool_or(kind = 'deny'), false),
       COALESCE(bool_or(kind = 'priority'), false)
  FROM queue_rules
 WHERE queue_id = $1 AND user_id = $2
`, queueID, userID).Scan(&a.Blocked, &a.Priority)
	return a, err
}

func (r *RuleRepo) Add(ctx context.Context, queueID, userID string, kind RuleKind) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO queue_rules (queue_id, user_id, kind)
VALUES ($1, $2, $3)
ON CONFLICT (queue_id, user_id, kind) DO NOTHING
`, queueID, userID, string(kind))
	return err
}

func (r *RuleRepo) Remove(ctx context.Context, queueID, userID string, kind RuleKind) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM queue_rules WHERE queue_id = $1 AND user_id = $2 AND kind = $3
`, queueID, userID, string(kind))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GuildSettingsRepo: preferencias por guild (modo de display).
type GuildSettingsRepo struct{ db *sql.DB }

func NewGuildSettingsRepo(db *sql.DB) *GuildSettingsRepo { return &GuildSettingsRepo{db: db} }

// DisplayMode devuelve edit si la guild no configuró nada.
func (r *GuildSettingsRepo) DisplayMode(ctx context.Context, guildID string) (DisplayMode, error) {
	var mode string
	err := r.db.QueryRowContext(ctx, `
SELECT display_mode FROM guild_settings WHERE guild_id = $1
`, guildID).Scan(&mode)
	if errors.Is(err, sql.ErrNoRows) {
		return DisplayEdit, nil
	}
	if err != nil {
		return "", err
	}
	return DisplayMode(mode), nil
}

func (r *GuildSettingsRepo) SetDisplayMode(ctx context.Context, guildID string, mode DisplayMode) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO guild_settings (guild_id, display_mode)
VALUES ($1, $2)
ON CONFLICT (guild_id) DO UPDATE SET
  display_mode = EXCLUDED.display_mode,
  updated_at   = now()
`, guildID, string(mode))
	return err
}
