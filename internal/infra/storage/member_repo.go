package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	pq "github.com/lib/pq"

	"github.com/jose-valero/queuebot/internal/domain"
)

type MemberRepo struct{ db *sql.DB }

func NewMemberRepo(db *sql.DB) *MemberRepo { return &MemberRepo{db: db} }

func scanMember(sc interface{ Scan(...any) error }) (domain.Member, error) {
	var (
		m    domain.Member
		note sql.NullString
	)
	if err := sc.Scan(&m.QueueID, &m.UserID, &m.Position, &m.Priority, &note); err != nil {
		return domain.Member{}, err
	}
	m.Note = note.String
	return m, nil
}

func (r *MemberRepo) Get(ctx context.Context, queueID, userID string) (domain.Member, bool, error) {
	m, err := scanMember(r.db.QueryRowContext(ctx, `
SELECT queue_id, user_id, position_key, is_priority, note
  FROM queue_members
 WHERE queue_id = $1 AND user_id = $2
`, queueID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Member{}, false, nil
	}
	if err != nil {
		return domain.Member{}, false, err
	}
	return m, true, nil
}

func (r *MemberRepo) Insert(ctx context.Context, m domain.Member) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO queue_members (queue_id, user_id, position_key, is_priority, note)
VALUES ($1, $2, $3, $4, $5)
`, m.QueueID, m.UserID, m.Position, m.Priority, nullString(m.Note))
	return err
}

func (r *MemberRepo) Count(ctx context.Context, queueID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_members WHERE queue_id = $1`, queueID).Scan(&n)
	return n, err
}

// List por orden de llegada; limit < 1 devuelve todos.
func (r *MemberRepo) List(ctx context.Context, queueID string, limit int) ([]domain.Member, error) {
	query := `
SELECT queue_id, user_id, position_key, is_priority, note
  FROM queue_members
 WHERE queue_id = $1
 ORDER BY position_key ASC, user_id ASC`
	args := []any{queueID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

func (r *MemberRepo) list(ctx context.Context, query string, args ...any) ([]domain.Member, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MemberRepo) MaxPosition(ctx context.Context, queueID string) (int64, error) {
	var hi int64
	err := r.db.QueryRowContext(ctx, `
SELECT COALESCE(MAX(position_key), 0) FROM queue_members WHERE queue_id = $1
`, queueID).Scan(&hi)
	return hi, err
}

// Delete devuelve sólo las filas que existían.
func (r *MemberRepo) Delete(ctx context.Context, queueID string, userIDs []string) ([]domain.Member, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, `
DELETE FROM queue_members
 WHERE queue_id = $1 AND user_id = ANY($2)
RETURNING queue_id, user_id, position_key, is_priority, note
`, queueID, pq.Array(userIDs))
}

func (r *MemberRepo) SetPriority(ctx context.Context, queueID, userID string, priority bool) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE queue_members SET is_priority = $3 WHERE queue_id = $1 AND user_id = $2
`, queueID, userID, priority)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetPositions reescribe posiciones en una sola transacción.
func (r *MemberRepo) SetPositions(ctx context.Context, queueID string, positions map[string]int64) (err error) {
	if len(positions) == 0 {
		return nil
	}
	users := make([]string, 0, len(positions))
	keys := make([]int64, 0, len(positions))
	for u, p := range positions {
		users = append(users, u)
		keys = append(keys, p)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
UPDATE queue_members AS m
   SET position_key = v.position_key
  FROM UNNEST($2::text[], $3::bigint[]) AS v(user_id, position_key)
 WHERE m.queue_id = $1 AND m.user_id = v.user_id
`, queueID, pq.Array(users), pq.Array(keys))
	if err != nil {
		return fmt.Errorf("update positions: %w", err)
	}
	return tx.Commit()
}

// ListByUser: membresías del usuario en colas de la guild.
func (r *MemberRepo) ListByUser(ctx context.Context, guildID, userID string) ([]domain.Member, error) {
	return r.list(ctx, `
SELECT m.queue_id, m.user_id, m.position_key, m.is_priority, m.note
  FROM queue_members m
  JOIN queues q ON q.channel_id = m.queue_id
 WHERE q.guild_id = $1 AND m.user_id = $2
 ORDER BY m.queue_id ASC
`, guildID, userID)
}
