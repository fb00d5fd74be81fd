package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jose-valero/queuebot/internal/app/dispatch"
	"github.com/jose-valero/queuebot/internal/domain"
	"github.com/jose-valero/queuebot/internal/events"
	"github.com/jose-valero/queuebot/internal/infra/storage"
)

const (
	// DefaultSettleDelay: cuánto esperamos después de devolver al bot a la
	// cola antes de empezar a mover gente al nuevo destino.
	DefaultSettleDelay = 2 * time.Second

	settleTimeout = 15 * time.Second
)

// Interpreter traduce transiciones de canal en cambios de cola, pedidos de
// fill y refrescos de display. Nunca devuelve error ni panic hacia afuera.
type Interpreter struct {
	log      *slog.Logger
	clock    clockwork.Clock
	queues   QueueRepo
	store    *Membership
	planner  *Planner
	dispatch Dispatcher
	events   Publisher

	settleDelay time.Duration
	pick        func(n int) int

	// guild -> cola a la que mandamos al bot de vuelta tras un arrastre
	returnMu  sync.Mutex
	returning map[string]string
}

type InterpreterOption func(*Interpreter)

func WithInterpreterClock(c clockwork.Clock) InterpreterOption {
	return func(i *Interpreter) { i.clock = c }
}

func WithInterpreterLogger(l *slog.Logger) InterpreterOption {
	return func(i *Interpreter) { i.log = l }
}

func WithInterpreterEvents(p Publisher) InterpreterOption {
	return func(i *Interpreter) { i.events = p }
}

// WithSettleDelay: 0 llena apenas el bot vuelve a la cola.
func WithSettleDelay(d time.Duration) InterpreterOption {
	return func(i *Interpreter) {
		if d >= 0 {
			i.settleDelay = d
		}
	}
}

// WithPicker reemplaza el sorteo entre colas que comparten destino.
func WithPicker(f func(n int) int) InterpreterOption {
	return func(i *Interpreter) { i.pick = f }
}

func NewInterpreter(queues QueueRepo, store *Membership, planner *Planner, d Dispatcher, opts ...InterpreterOption) *Interpreter {
	i := &Interpreter{
		log:         slog.Default(),
		clock:       clockwork.NewRealClock(),
		queues:      queues,
		store:       store,
		planner:     planner,
		dispatch:    d,
		events:      events.Noop{},
		settleDelay: DefaultSettleDelay,
		pick:        rand.Intn,
		returning:   map[string]string{},
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// NotifyPresenceChange procesa una transición. Cambios sin cambio de canal
// (mute, deafen) se ignoran.
func (i *Interpreter) NotifyPresenceChange(ctx context.Context, ch domain.PresenceChange) {
	if ch.Before == ch.After {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			i.log.Error("panic in presence handler", "guild", ch.GuildID, "user", ch.UserID, "panic", rec)
		}
	}()

	if ch.Self {
		i.onSelfMoved(ctx, ch)
		return
	}
	if ch.Bot {
		return
	}
	if ch.Before != "" {
		i.onLeave(ctx, ch)
	}
	if ch.After != "" {
		i.onEnter(ctx, ch)
	}
}

func (i *Interpreter) voiceQueue(ctx context.Context, channelID string) (domain.Queue, bool) {
	q, err := i.queues.Get(ctx, channelID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			i.log.Warn("queue lookup failed", "channel", channelID, "err", err)
		}
		return domain.Queue{}, false
	}
	return q, q.Kind == domain.KindVoice
}

// onLeave: salir de una cola y liberar un destino ajeno.
func (i *Interpreter) onLeave(ctx context.Context, ch domain.PresenceChange) {
	if q, ok := i.voiceQueue(ctx, ch.Before); ok {
		removed, err := i.store.Dequeue(ctx, q, []string{ch.UserID}, true)
		if err != nil {
			i.log.Warn("dequeue failed", "queue", q.ID, "user", ch.UserID, "err", err)
		} else if len(removed) > 0 {
			i.dispatch.ScheduleDisplayUpdate(dispatch.DisplayRequest{GuildID: q.GuildID, QueueID: q.ID})
		}
	}

	owners, err := i.queues.ListByTarget(ctx, ch.GuildID, ch.Before)
	if err != nil {
		i.log.Warn("target lookup failed", "guild", ch.GuildID, "channel", ch.Before, "err", err)
		return
	}
	var auto []domain.Queue
	for _, q := range owners {
		if q.Kind == domain.KindVoice && q.AutoFillEnabled() {
			auto = append(auto, q)
		}
	}
	if len(auto) == 0 {
		return
	}
	q := auto[0]
	if len(auto) > 1 {
		q = auto[i.pick(len(auto))]
	}
	if _, err := i.planner.Fill(ctx, q, ch.Before); err != nil {
		i.log.Warn("fill failed", "queue", q.ID, "target", ch.Before, "err", err)
	}
}

// onEnter: entrar a una cola de voz.
func (i *Interpreter) onEnter(ctx context.Context, ch domain.PresenceChange) {
	q, ok := i.voiceQueue(ctx, ch.After)
	if !ok {
		return
	}

	if i.redirectToEmptyTarget(ctx, q, ch.UserID) {
		i.log.Debug("redirected to empty target", "queue", q.ID, "target", q.TargetID, "user", ch.UserID)
		return
	}

	res, err := i.store.Enqueue(ctx, q, ch.UserID, "")
	if err != nil {
		i.log.Warn("enqueue failed", "queue", q.ID, "user", ch.UserID, "err", err)
		return
	}
	switch res.Outcome {
	case domain.Added:
		i.dispatch.ScheduleDisplayUpdate(dispatch.DisplayRequest{GuildID: q.GuildID, QueueID: q.ID})
	case domain.RejectedFull, domain.RejectedBlocked:
		i.log.Debug("enqueue rejected", "queue", q.ID, "user", ch.UserID, "outcome", res.Outcome)
	}
}

// redirectToEmptyTarget manda directo al destino a quien entra a la cola si
// el destino tiene capacidad numérica y está vacío. Si no se puede ya, el
// usuario se encola normalmente.
func (i *Interpreter) redirectToEmptyTarget(ctx context.Context, q domain.Queue, userID string) bool {
	if !q.Relocatable() || !q.AutoFillEnabled() {
		return false
	}
	info, err := i.planner.platform.Channel(ctx, q.GuildID, q.TargetID)
	if err != nil {
		if errors.Is(err, domain.ErrChannelNotFound) {
			i.planner.clearDanglingTarget(ctx, q, q.TargetID)
		}
		return false
	}
	if info.Capacity <= 0 || info.NonBotOccupants != 0 {
		return false
	}
	return i.dispatch.TryMoveNow(ctx, q.GuildID, userID, q.TargetID)
}

// onSelfMoved: arrastrar al bot fuera de una cola designa el destino
// de la cola. El bot vuelve a la cola y tras settleDelay se llena una vez.
// La vuelta que pedimos nosotros no es un arrastre.
func (i *Interpreter) onSelfMoved(ctx context.Context, ch domain.PresenceChange) {
	if i.takeReturn(ch.GuildID, ch.After) {
		i.log.Debug("bot back in queue", "guild", ch.GuildID, "queue", ch.After)
		return
	}
	if ch.Before == "" || ch.After == "" {
		return
	}
	q, ok := i.voiceQueue(ctx, ch.Before)
	if !ok {
		return
	}
	dest := ch.After

	// una cola no puede ser destino de otra
	if _, err := i.queues.Get(ctx, dest); err == nil {
		i.log.Info("target refused: destination is a queue", "guild", q.GuildID, "queue", q.ID, "target", dest)
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		i.log.Warn("queue lookup failed", "channel", dest, "err", err)
		return
	}

	i.expectReturn(q.GuildID, q.ID)
	i.dispatch.ScheduleMove(ctx, q.GuildID, ch.UserID, q.ID)

	if err := i.queues.SetTarget(ctx, q.ID, dest); err != nil {
		i.log.Warn("set target failed", "queue", q.ID, "target", dest, "err", err)
		return
	}
	q.TargetID = dest
	i.log.Info("target designated", "guild", q.GuildID, "queue", q.ID, "target", dest)
	if err := i.events.Publish(ctx, events.TopicTargetSet, events.TargetSet{GuildID: q.GuildID, QueueID: q.ID, TargetID: dest}); err != nil {
		i.log.Warn("publish event failed", "topic", events.TopicTargetSet, "err", err)
	}
	i.dispatch.ScheduleDisplayUpdate(dispatch.DisplayRequest{GuildID: q.GuildID, QueueID: q.ID})

	i.clock.AfterFunc(i.settleDelay, func() {
		sctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
		defer cancel()
		if _, err := i.planner.Fill(sctx, q, dest); err != nil {
			i.log.Warn("fill after designate failed", "queue", q.ID, "target", dest, "err", err)
		}
	})
}

func (i *Interpreter) expectReturn(guildID, queueID string) {
	i.returnMu.Lock()
	i.returning[guildID] = queueID
	i.returnMu.Unlock()
}

// takeReturn consume la vuelta pendiente si el bot llegó a esa cola.
func (i *Interpreter) takeReturn(guildID, channelID string) bool {
	if channelID == "" {
		return false
	}
	i.returnMu.Lock()
	defer i.returnMu.Unlock()
	if q, ok := i.returning[guildID]; ok && q == channelID {
		delete(i.returning, guildID)
		return true
	}
	return false
}
