package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jose-valero/queuebot/internal/domain"
)

const queueColumns = `channel_id, guild_id, kind, target_id, capacity, grace_seconds, auto_fill, pull_num`

type QueueRepo struct{ db *sql.DB }

func NewQueueRepo(db *sql.DB) *QueueRepo { return &QueueRepo{db: db} }

func scanQueue(sc interface{ Scan(...any) error }) (domain.Queue, error) {
	var r queueRow
	if err := sc.Scan(&r.ChannelID, &r.GuildID, &r.Kind, &r.TargetID, &r.Capacity, &r.GraceSeconds, &r.AutoFill, &r.PullNum); err != nil {
		return domain.Queue{}, err
	}
	return r.toDomain(), nil
}

func (r *QueueRepo) Get(ctx context.Context, queueID string) (domain.Queue, error) {
	q, err := scanQueue(r.db.QueryRowContext(ctx, `
SELECT `+queueColumns+`
  FROM queues
 WHERE channel_id = $1
`, queueID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Queue{}, ErrNotFound
	}
	return q, err
}

func (r *QueueRepo) list(ctx context.Context, query string, args ...any) ([]domain.Queue, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Queue
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// ListByTarget: colas cuyo destino es targetID, orden estable por id.
func (r *QueueRepo) ListByTarget(ctx context.Context, guildID, targetID string) ([]domain.Queue, error) {
	return r.list(ctx, `
SELECT `+queueColumns+`
  FROM queues
 WHERE guild_id = $1 AND target_id = $2
 ORDER BY channel_id ASC
`, guildID, targetID)
}

func (r *QueueRepo) ListByGuild(ctx context.Context, guildID string) ([]domain.Queue, error) {
	return r.list(ctx, `
SELECT `+queueColumns+`
  FROM queues
 WHERE guild_id = $1
 ORDER BY channel_id ASC
`, guildID)
}

func (r *QueueRepo) Upsert(ctx context.Context, q domain.Queue) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO queues
  (channel_id, guild_id, kind, target_id, capacity, grace_seconds, auto_fill, pull_num, created_at, updated_at)
VALUES
  ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
ON CONFLICT (channel_id) DO UPDATE SET
  kind          = EXCLUDED.kind,
  target_id     = EXCLUDED.target_id,
  capacity      = EXCLUDED.capacity,
  grace_seconds = EXCLUDED.grace_seconds,
  auto_fill     = EXCLUDED.auto_fill,
  pull_num      = EXCLUDED.pull_num,
  updated_at    = NOW()
`, q.ID, q.GuildID, string(q.Kind), nullString(q.TargetID), q.Capacity, int(q.GracePeriod/time.Second), string(q.AutoFill), q.PullCount())
	return err
}

// SetTarget: targetID vacío limpia el destino.
func (r *QueueRepo) SetTarget(ctx context.Context, queueID, targetID string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE queues SET target_id = $2, updated_at = now() WHERE channel_id = $1
`, queueID, nullString(targetID))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearTargetRefs borra targetID de toda cola que lo use (canal borrado).
func (r *QueueRepo) ClearTargetRefs(ctx context.Context, guildID, targetID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE queues SET target_id = NULL, updated_at = now() WHERE guild_id = $1 AND target_id = $2
`, guildID, targetID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Delete borra la cola; miembros, reglas y display caen por cascade.
func (r *QueueRepo) Delete(ctx context.Context, queueID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM queues WHERE channel_id = $1`, queueID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Patch aplica sólo los campos presentes.
func (r *QueueRepo) Patch(ctx context.Context, queueID string, u QueuePatch) (domain.Queue, error) {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	i := 1

	if u.Capacity != nil {
		sets = append(sets, fmt.Sprintf("capacity = $%d", i))
		args = append(args, *u.Capacity)
		i++
	}
	if u.GraceSeconds != nil {
		sets = append(sets, fmt.Sprintf("grace_seconds = $%d", i))
		args = append(args, *u.GraceSeconds)
		i++
	}
	if u.AutoFill != nil {
		sets = append(sets, fmt.Sprintf("auto_fill = $%d", i))
		args = append(args, string(*u.AutoFill))
		i++
	}
	if u.PullNum != nil {
		sets = append(sets, fmt.Sprintf("pull_num = $%d", i))
		args = append(args, *u.PullNum)
		i++
	}
	if len(sets) == 0 {
		return r.Get(ctx, queueID)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, queueID)

	res, err := r.db.ExecContext(ctx, `
UPDATE queues
   SET `+strings.Join(sets, ", ")+`
 WHERE channel_id = $`+fmt.Sprint(i), args...)
	if err != nil {
		return domain.Queue{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Queue{}, ErrNotFound
	}
	return r.Get(ctx, queueID)
}
