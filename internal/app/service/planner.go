package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jose-valero/queuebot/internal/domain"
	"github.com/jose-valero/queuebot/internal/events"
)

// Planner decide a quién jalar de una cola hacia su destino. No saca a nadie
// de la cola: eso pasa cuando la plataforma reporta el move (presence).
type Planner struct {
	log      *slog.Logger
	store    *Membership
	queues   QueueRepo
	platform Platform
	dispatch Dispatcher
	events   Publisher

	// cola -> destino ya avisado; se borra cuando el permiso vuelve
	noticeMu sync.Mutex
	notified map[string]string
}

func NewPlanner(store *Membership, queues QueueRepo, platform Platform, d Dispatcher, log *slog.Logger, pub Publisher) *Planner {
	if log == nil {
		log = slog.Default()
	}
	if pub == nil {
		pub = events.Noop{}
	}
	return &Planner{
		log:      log,
		store:    store,
		queues:   queues,
		platform: platform,
		dispatch: d,
		events:   pub,
		notified: map[string]string{},
	}
}

// FillPlan es lo que Fill decidió (útil para comandos y tests).
type FillPlan struct {
	Waiting  int
	Selected []domain.Member
	Tasks    []PlannedMove
}

type PlannedMove struct {
	UserID string
	At     time.Time
}

// Fill pide moves para llenar destination con los primeros de la cola.
func (p *Planner) Fill(ctx context.Context, q domain.Queue, destination string) (FillPlan, error) {
	return p.fill(ctx, q, destination, 0)
}

// Pull es el "pull" manual: count > 0 fuerza la cantidad, si no aplica la
// misma regla que Fill.
func (p *Planner) Pull(ctx context.Context, q domain.Queue, count int) (FillPlan, error) {
	if q.TargetID == "" {
		return FillPlan{}, nil
	}
	return p.fill(ctx, q, q.TargetID, count)
}

func (p *Planner) fill(ctx context.Context, q domain.Queue, destination string, force int) (FillPlan, error) {
	var plan FillPlan
	if q.Kind != domain.KindVoice || destination == "" {
		return plan, nil
	}

	ok, err := p.platform.CanMoveInto(ctx, q.GuildID, destination)
	if errors.Is(err, domain.ErrChannelNotFound) {
		p.clearDanglingTarget(ctx, q, destination)
		return plan, nil
	}
	if err != nil {
		return plan, fmt.Errorf("permission check: %w", err)
	}
	if !ok {
		p.noticeMissingPermission(ctx, q, destination)
		return plan, nil
	}
	p.permissionRestored(q.ID)

	waiting, err := p.store.Next(ctx, q.ID, 0)
	if err != nil {
		return plan, fmt.Errorf("list waiting: %w", err)
	}
	plan.Waiting = len(waiting)
	if len(waiting) == 0 {
		return plan, nil
	}

	n := force
	if n <= 0 {
		n = q.PullCount()
		if q.AutoFill == domain.AutoFillCapacity {
			info, err := p.platform.Channel(ctx, q.GuildID, destination)
			if errors.Is(err, domain.ErrChannelNotFound) {
				p.clearDanglingTarget(ctx, q, destination)
				return plan, nil
			}
			if err != nil {
				return plan, fmt.Errorf("destination lookup: %w", err)
			}
			if info.Capacity > 0 {
				n = info.Vacancies()
			}
		}
	}
	n = min(n, len(waiting))

	plan.Selected = waiting[:n]
	for _, m := range plan.Selected {
		t := p.dispatch.ScheduleMove(ctx, q.GuildID, m.UserID, destination)
		plan.Tasks = append(plan.Tasks, PlannedMove{UserID: m.UserID, At: t.At})
		if err := p.events.Publish(ctx, events.TopicMoveScheduled, events.MoveScheduled{
			GuildID: q.GuildID, QueueID: q.ID, UserID: m.UserID, TargetID: destination, At: t.At,
		}); err != nil {
			p.log.Warn("publish event failed", "topic", events.TopicMoveScheduled, "err", err)
		}
	}
	p.log.Debug("fill planned", "guild", q.GuildID, "queue", q.ID, "target", destination, "waiting", len(waiting), "selected", n)
	return plan, nil
}

// clearDanglingTarget: el destino ya no existe, se limpia la referencia.
func (p *Planner) clearDanglingTarget(ctx context.Context, q domain.Queue, destination string) {
	if q.TargetID != destination {
		return
	}
	if err := p.queues.SetTarget(ctx, q.ID, ""); err != nil {
		p.log.Warn("clear dangling target failed", "queue", q.ID, "target", destination, "err", err)
		return
	}
	p.log.Info("dangling target cleared", "guild", q.GuildID, "queue", q.ID, "target", destination)
}

func (p *Planner) noticeMissingPermission(ctx context.Context, q domain.Queue, destination string) {
	if !p.markNotified(q.ID, destination) {
		return
	}
	msg := fmt.Sprintf("⚠️ No tengo permiso para mover miembros a <#%s> (cola <#%s>). Dame **Move Members** en ese canal.", destination, q.ID)
	if err := p.platform.NotifyOperator(ctx, q.GuildID, q.ID, msg); err != nil {
		p.log.Warn("permission notice failed", "guild", q.GuildID, "queue", q.ID, "err", err)
	}
}

// markNotified devuelve true solo la primera vez por (cola, destino).
func (p *Planner) markNotified(queueID, destination string) bool {
	p.noticeMu.Lock()
	defer p.noticeMu.Unlock()
	if p.notified[queueID] == destination {
		return false
	}
	p.notified[queueID] = destination
	return true
}

func (p *Planner) permissionRestored(queueID string) {
	p.noticeMu.Lock()
	delete(p.notified, queueID)
	p.noticeMu.Unlock()
}
