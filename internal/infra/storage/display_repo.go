package storage

import (
	"context"
	"database/sql"
	"errors"
)

// DisplayRepo: mensaje de display publicado por cola.
type DisplayRepo struct{ db *sql.DB }

func NewDisplayRepo(db *sql.DB) *DisplayRepo { return &DisplayRepo{db: db} }

func (r *DisplayRepo) Get(ctx context.Context, queueID string) (QueueDisplay, error) {
	var d QueueDisplay
	err := r.db.QueryRowContext(ctx, `
SELECT queue_id, channel_id, message_id, created_at, updated_at
  FROM queue_displays
 WHERE queue_id = $1
`, queueID).Scan(&d.QueueID, &d.ChannelID, &d.MessageID, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return QueueDisplay{}, ErrNotFound
	}
	return d, err
}

func (r *DisplayRepo) Upsert(ctx context.Context, queueID, channelID, messageID string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO queue_displays (queue_id, channel_id, message_id)
VALUES ($1,$2,$3)
ON CONFLICT (queue_id) DO UPDATE SET
  channel_id = EXCLUDED.channel_id,
  message_id = EXCLUDED.message_id,
  updated_at = now()
`, queueID, channelID, messageID)
	return err
}

func (r *DisplayRepo) Delete(ctx context.Context, queueID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM queue_displays WHERE queue_id = $1`, queueID)
	return err
}

// ListByChannel: displays publicados en un canal de texto.
func (r *DisplayRepo) ListByChannel(ctx context.Context, channelID string) ([]QueueDisplay, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT queue_id, channel_id, message_id, created_at, updated_at
  FROM queue_displays
 WHERE channel_id = $1
`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QueueDisplay
	for rows.Next() {
		var d QueueDisplay
		if err := rows.Scan(&d.QueueID, &d.ChannelID, &d.MessageID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
