package service

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/jose-valero/queuebot/internal/domain"
)

const (
	DefaultIntakeWorkers = 8
	intakeBuffer         = 256
)

// PresenceHandler lo implementa Interpreter.
type PresenceHandler interface {
	NotifyPresenceChange(ctx context.Context, ch domain.PresenceChange)
}

// Intake reparte transiciones de voz en workers fijos. Un mismo (guild,
// usuario) siempre cae en el mismo worker, así se procesa en orden.
type Intake struct {
	log     *slog.Logger
	handler PresenceHandler
	shards  []chan domain.PresenceChange

	wg       sync.WaitGroup
	stopOnce sync.Once
	mu       sync.RWMutex
	stopped  bool
}

func NewIntake(h PresenceHandler, workers int, log *slog.Logger) *Intake {
	if workers < 1 {
		workers = DefaultIntakeWorkers
	}
	if log == nil {
		log = slog.Default()
	}
	in := &Intake{log: log, handler: h, shards: make([]chan domain.PresenceChange, workers)}
	for i := range in.shards {
		in.shards[i] = make(chan domain.PresenceChange, intakeBuffer)
	}
	return in
}

// Start lanza los workers; terminan con Stop (drenando lo encolado).
func (in *Intake) Start(ctx context.Context) {
	for i, ch := range in.shards {
		in.wg.Add(1)
		go in.worker(ctx, i, ch)
	}
}

// Submit bloquea si el shard está lleno. Después de Stop descarta.
func (in *Intake) Submit(ch domain.PresenceChange) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.stopped {
		return false
	}
	in.shards[in.shardFor(ch.GuildID, ch.UserID)] <- ch
	return true
}

func (in *Intake) Stop() {
	in.stopOnce.Do(func() {
		in.mu.Lock()
		in.stopped = true
		for _, ch := range in.shards {
			close(ch)
		}
		in.mu.Unlock()
	})
	in.wg.Wait()
}

func (in *Intake) shardFor(guildID, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(guildID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(in.shards)))
}

func (in *Intake) worker(ctx context.Context, id int, ch <-chan domain.PresenceChange) {
	defer in.wg.Done()
	for ev := range ch {
		in.handle(ctx, id, ev)
	}
}

func (in *Intake) handle(ctx context.Context, id int, ev domain.PresenceChange) {
	defer func() {
		if rec := recover(); rec != nil {
			in.log.Error("panic in intake worker", "worker", id, "guild", ev.GuildID, "user", ev.UserID, "panic", rec)
		}
	}()
	in.handler.NotifyPresenceChange(ctx, ev)
}
