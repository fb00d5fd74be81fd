package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultTextMemberDays = 7

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type cleanup struct {
	name string
	sql  string
	args []any
}

// cleanups: miembros viejos de colas de texto (nadie los saca al desconectar),
// displays que nunca llegaron a publicarse y settings de guilds sin colas.
func cleanups(textMemberDays int) []cleanup {
	return []cleanup{
		// Borra directo en SQL: el bot no se entera y los listados se
		// redibujan en el próximo cambio de la cola o al reconectar.
		{
			name: "text_members",
			sql: `
DELETE FROM queue_members m
USING queues q
WHERE m.queue_id = q.channel_id
  AND q.kind = 'text'
  AND m.created_at < now() - make_interval(days => $1);`,
			args: []any{textMemberDays},
		},
		{
			name: "unpublished_displays",
			sql:  `DELETE FROM queue_displays WHERE message_id = '' AND updated_at < now() - INTERVAL '1 day';`,
		},
		{
			name: "orphan_settings",
			sql: `
DELETE FROM guild_settings s
WHERE s.updated_at < now() - INTERVAL '30 days'
  AND NOT EXISTS (SELECT 1 FROM queues q WHERE q.guild_id = s.guild_id);`,
		},
	}
}

// sweep corre todas las limpiezas; una que falla no frena a las demás.
func sweep(ctx context.Context, db execer, log *slog.Logger, textMemberDays int) string {
	var out []string
	for _, c := range cleanups(textMemberDays) {
		tag, err := db.Exec(ctx, c.sql, c.args...)
		if err != nil {
			log.Warn("cleanup failed", "cleanup", c.name, "err", err)
			out = append(out, c.name+"=err")
			continue
		}
		log.Info("cleanup done", "cleanup", c.name, "rows", tag.RowsAffected())
		out = append(out, fmt.Sprintf("%s=%d", c.name, tag.RowsAffected()))
	}
	return strings.Join(out, " ")
}

func textMemberDays() int {
	if v, err := strconv.Atoi(os.Getenv("JANITOR_TEXT_MEMBER_DAYS")); err == nil && v > 0 {
		return v
	}
	return defaultTextMemberDays
}

func handler(ctx context.Context) (string, error) {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return "no DATABASE_URL", nil
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Sprintf("parse: %v", err), nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Sprintf("pool: %v", err), nil
	}
	defer pool.Close()

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return sweep(cctx, pool, log, textMemberDays()), nil
}

func main() { lambda.Start(handler) }
