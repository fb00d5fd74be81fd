// status expone por HTTP (API Gateway + Lambda) una vista de sólo lectura
// de las colas de una guild, para dashboards y overlays.
package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	log         = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	secretHdr   = strings.ToLower(getenv("STATUS_HEADER_NAME", "x-queuebot-key"))
	secretValue = os.Getenv("STATUS_HEADER_VALUE")
	store       lister
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// queueView es una cola con sus miembros en orden.
type queueView struct {
	QueueID  string   `db:"queue_id" json:"queue_id"`
	Kind     string   `db:"kind" json:"kind"`
	TargetID string   `db:"target_id" json:"target_id,omitempty"`
	Capacity int      `db:"capacity" json:"capacity"`
	Members  []string `db:"members" json:"members"`
}

type lister interface {
	ListQueues(ctx context.Context, guildID string) ([]queueView, error)
}

type pgStore struct{ db *pgxpool.Pool }

func (s pgStore) ListQueues(ctx context.Context, guildID string) ([]queueView, error) {
	rows, err := s.db.Query(ctx, `
SELECT q.channel_id AS queue_id,
       q.kind,
       COALESCE(q.target_id, '') AS target_id,
       q.capacity,
       COALESCE(array_agg(m.user_id ORDER BY m.position_key, m.user_id)
                FILTER (WHERE m.user_id IS NOT NULL), '{}') AS members
FROM queues q
LEFT JOIN queue_members m ON m.queue_id = q.channel_id
WHERE q.guild_id = $1
GROUP BY q.channel_id
ORDER BY q.channel_id`, guildID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[queueView])
}

func init() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Warn("DATABASE_URL empty; status will answer 503")
		return
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		log.Error("pgx ParseConfig", "err", err)
		return
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		log.Error("pgxpool New", "err", err)
		return
	}
	store = pgStore{db: pool}
}

func readSecret(req events.APIGatewayV2HTTPRequest) string {
	for k, v := range req.Headers {
		if strings.ToLower(k) == secretHdr && v != "" {
			return v
		}
	}
	return req.QueryStringParameters["key"]
}

func reply(code int, body any) events.APIGatewayV2HTTPResponse {
	b, err := json.Marshal(body)
	if err != nil {
		code, b = 500, []byte(`{"error":"encode"}`)
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: code,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(b),
	}
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	log.Info("status hit", "path", req.RawPath, "method", req.RequestContext.HTTP.Method, "ip", req.RequestContext.HTTP.SourceIP)

	if m := req.RequestContext.HTTP.Method; m != "" && m != "GET" {
		return reply(405, map[string]string{"error": "method not allowed"}), nil
	}
	got := readSecret(req)
	if secretValue == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secretValue)) != 1 {
		return reply(401, map[string]string{"error": "unauthorized"}), nil
	}

	guildID := req.PathParameters["guild"]
	if guildID == "" {
		guildID = req.QueryStringParameters["guild"]
	}
	if guildID == "" {
		return reply(400, map[string]string{"error": "missing guild"}), nil
	}
	if store == nil {
		return reply(503, map[string]string{"error": "no database"}), nil
	}

	qctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	qs, err := store.ListQueues(qctx, guildID)
	if err != nil {
		log.Error("list queues", "guild", guildID, "err", err)
		return reply(500, map[string]string{"error": fmt.Sprintf("list queues: %v", err)}), nil
	}
	if qs == nil {
		qs = []queueView{}
	}
	return reply(200, map[string]any{"guild_id": guildID, "queues": qs}), nil
}

func main() { lambda.Start(handler) }
