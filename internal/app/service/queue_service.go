package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jose-valero/queuebot/internal/app/dispatch"
	"github.com/jose-valero/queuebot/internal/domain"
	"github.com/jose-valero/queuebot/internal/events"
	"github.com/jose-valero/queuebot/internal/infra/storage"
)

// statusLimit: cuántos miembros se listan en respuestas de texto.
const statusLimit = 25

// QueueService atiende los comandos de administración y consulta. Devuelve
// el texto a mostrar; el error sólo para fallas de infraestructura.
type QueueService struct {
	log      *slog.Logger
	queues   QueueRepo
	rules    RuleRepo
	settings SettingsRepo
	store    *Membership
	planner  *Planner
	dispatch Dispatcher
	events   Publisher
}

func NewQueueService(queues QueueRepo, rules RuleRepo, settings SettingsRepo, store *Membership, planner *Planner, d Dispatcher, log *slog.Logger, pub Publisher) *QueueService {
	if log == nil {
		log = slog.Default()
	}
	if pub == nil {
		pub = events.Noop{}
	}
	return &QueueService{
		log:      log,
		queues:   queues,
		rules:    rules,
		settings: settings,
		store:    store,
		planner:  planner,
		dispatch: d,
		events:   pub,
	}
}

type QueueSettings struct {
	Kind         domain.Kind
	Capacity     int
	GraceSeconds int
	AutoFill     domain.AutoFill
	PullNum      int
}

var errNotQueue = errors.New("not a queue")

func (s *QueueService) queue(ctx context.Context, guildID, channelID string) (domain.Queue, error) {
	q, err := s.queues.Get(ctx, channelID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && q.GuildID != guildID) {
		return domain.Queue{}, errNotQueue
	}
	return q, err
}

func notQueueMsg(channelID string) string {
	return fmt.Sprintf("❌ <#%s> no es una cola.", channelID)
}

func (s *QueueService) refresh(q domain.Queue) {
	s.dispatch.ScheduleDisplayUpdate(dispatch.DisplayRequest{GuildID: q.GuildID, QueueID: q.ID})
}

// Add crea la cola o actualiza su configuración conservando el destino.
func (s *QueueService) Add(ctx context.Context, guildID, channelID string, set QueueSettings) (string, error) {
	if set.Capacity < 0 || set.GraceSeconds < 0 || set.PullNum < 0 {
		return "❌ Los valores no pueden ser negativos.", nil
	}
	switch set.AutoFill {
	case "":
		set.AutoFill = domain.AutoFillPullNum
	case domain.AutoFillOff, domain.AutoFillPullNum, domain.AutoFillCapacity:
	default:
		return fmt.Sprintf("❌ autofill inválido: `%s`", set.AutoFill), nil
	}
	if set.Kind == "" {
		set.Kind = domain.KindVoice
	}

	q := domain.Queue{
		ID:          channelID,
		GuildID:     guildID,
		Kind:        set.Kind,
		Capacity:    set.Capacity,
		GracePeriod: time.Duration(set.GraceSeconds) * time.Second,
		AutoFill:    set.AutoFill,
		PullNum:     set.PullNum,
	}
	verb := "creada"
	cur, err := s.queue(ctx, guildID, channelID)
	switch {
	case err == nil:
		verb = "actualizada"
		if q.Kind == domain.KindVoice {
			q.TargetID = cur.TargetID
		}
	case !errors.Is(err, errNotQueue):
		return "", err
	}

	if err := s.queues.Upsert(ctx, q); err != nil {
		return "", fmt.Errorf("upsert queue: %w", err)
	}
	s.log.Info("queue saved", "guild", guildID, "queue", channelID, "kind", q.Kind, "capacity", q.Capacity, "autofill", q.AutoFill)
	s.refresh(q)
	return fmt.Sprintf("✅ Cola <#%s> %s.\n%s", channelID, verb, describe(q)), nil
}

// Configure cambia sólo los campos indicados de una cola existente.
func (s *QueueService) Configure(ctx context.Context, guildID, channelID string, patch storage.QueuePatch) (string, error) {
	if _, err := s.queue(ctx, guildID, channelID); errors.Is(err, errNotQueue) {
		return notQueueMsg(channelID), nil
	} else if err != nil {
		return "", err
	}
	for _, v := range []*int{patch.Capacity, patch.GraceSeconds} {
		if v != nil && *v < 0 {
			return "❌ Los valores no pueden ser negativos.", nil
		}
	}
	if patch.PullNum != nil && *patch.PullNum < 1 {
		return "❌ pullnum debe ser al menos 1.", nil
	}
	if patch.AutoFill != nil {
		switch *patch.AutoFill {
		case domain.AutoFillOff, domain.AutoFillPullNum, domain.AutoFillCapacity:
		default:
			return fmt.Sprintf("❌ autofill inválido: `%s`", *patch.AutoFill), nil
		}
	}
	q, err := s.queues.Patch(ctx, channelID, patch)
	if err != nil {
		return "", fmt.Errorf("patch queue: %w", err)
	}
	s.refresh(q)
	return fmt.Sprintf("✅ Cola <#%s> actualizada.\n%s", q.ID, describe(q)), nil
}

// Remove borra la cola con sus miembros, reglas y display.
func (s *QueueService) Remove(ctx context.Context, guildID, channelID string) (string, error) {
	if _, err := s.queue(ctx, guildID, channelID); errors.Is(err, errNotQueue) {
		return notQueueMsg(channelID), nil
	} else if err != nil {
		return "", err
	}
	if err := s.drop(ctx, guildID, channelID); err != nil {
		return "", err
	}
	return fmt.Sprintf("🗑️ Cola <#%s> eliminada.", channelID), nil
}

func (s *QueueService) drop(ctx context.Context, guildID, channelID string) error {
	ok, err := s.queues.Delete(ctx, channelID)
	if err != nil {
		return fmt.Errorf("delete queue: %w", err)
	}
	s.store.Forget(channelID)
	if !ok {
		return nil
	}
	s.log.Info("queue deleted", "guild", guildID, "queue", channelID)
	if err := s.events.Publish(ctx, events.TopicQueueDeleted, events.QueueDeleted{GuildID: guildID, QueueID: channelID}); err != nil {
		s.log.Warn("publish event failed", "topic", events.TopicQueueDeleted, "err", err)
	}
	return nil
}

// ChannelDeleted limpia una cola cuyo canal desapareció y toda cola que lo
// usaba como destino.
func (s *QueueService) ChannelDeleted(ctx context.Context, guildID, channelID string) error {
	if err := s.drop(ctx, guildID, channelID); err != nil {
		return err
	}
	owners, err := s.queues.ListByTarget(ctx, guildID, channelID)
	if err != nil {
		return fmt.Errorf("list owners: %w", err)
	}
	if len(owners) == 0 {
		return nil
	}
	n, err := s.queues.ClearTargetRefs(ctx, guildID, channelID)
	if err != nil {
		return fmt.Errorf("clear target refs: %w", err)
	}
	s.log.Info("target references cleared", "guild", guildID, "target", channelID, "queues", n)
	for _, q := range owners {
		s.refresh(q)
	}
	return nil
}

// Pull: en voz mueve al destino; en texto saca a los primeros y los anuncia.
func (s *QueueService) Pull(ctx context.Context, guildID, channelID string, count int) (string, error) {
	q, err := s.queue(ctx, guildID, channelID)
	if errors.Is(err, errNotQueue) {
		return notQueueMsg(channelID), nil
	}
	if err != nil {
		return "", err
	}

	if q.Kind == domain.KindText {
		if count < 1 {
			count = q.PullCount()
		}
		next, err := s.store.Next(ctx, q.ID, count)
		if err != nil {
			return "", err
		}
		if len(next) == 0 {
			return "ℹ️ La cola está vacía.", nil
		}
		ids := make([]string, len(next))
		for i, m := range next {
			ids[i] = m.UserID
		}
		if _, err := s.store.Dequeue(ctx, q, ids, false); err != nil {
			return "", err
		}
		s.refresh(q)
		return "📣 Siguientes: " + mentions(ids), nil
	}

	if q.TargetID == "" {
		return fmt.Sprintf("ℹ️ <#%s> no tiene destino. Arrastra al bot al canal destino para fijarlo.", q.ID), nil
	}
	plan, err := s.planner.Pull(ctx, q, count)
	if err != nil {
		return "", err
	}
	if len(plan.Selected) == 0 {
		return "ℹ️ No hay a quién mover.", nil
	}
	ids := make([]string, len(plan.Selected))
	for i, m := range plan.Selected {
		ids[i] = m.UserID
	}
	return fmt.Sprintf("🚚 Moviendo a <#%s>: %s", q.TargetID, mentions(ids)), nil
}

func (s *QueueService) Shuffle(ctx context.Context, guildID, channelID string) (string, error) {
	q, err := s.queue(ctx, guildID, channelID)
	if errors.Is(err, errNotQueue) {
		return notQueueMsg(channelID), nil
	}
	if err != nil {
		return "", err
	}
	if err := s.store.Shuffle(ctx, q.ID); err != nil {
		return "", err
	}
	s.refresh(q)
	return fmt.Sprintf("🔀 Cola <#%s> mezclada.", q.ID), nil
}

// Kick saca al usuario sin dejarle hold de gracia.
func (s *QueueService) Kick(ctx context.Context, guildID, channelID, userID string) (string, error) {
	q, err := s.queue(ctx, guildID, channelID)
	if errors.Is(err, errNotQueue) {
		return notQueueMsg(channelID), nil
	}
	if err != nil {
		return "", err
	}
	removed, err := s.store.Dequeue(ctx, q, []string{userID}, false)
	if err != nil {
		return "", err
	}
	if len(removed) == 0 {
		return fmt.Sprintf("ℹ️ <@%s> no estaba en <#%s>.", userID, q.ID), nil
	}
	s.refresh(q)
	return fmt.Sprintf("👢 <@%s> fuera de <#%s>.", userID, q.ID), nil
}

// Join sólo aplica a colas de texto; a las de voz se entra conectándose.
func (s *QueueService) Join(ctx context.Context, guildID, channelID, userID, note string) (string, error) {
	q, err := s.queue(ctx, guildID, channelID)
	if errors.Is(err, errNotQueue) {
		return notQueueMsg(channelID), nil
	}
	if err != nil {
		return "", err
	}
	if q.Kind != domain.KindText {
		return fmt.Sprintf("ℹ️ Para unirte a <#%s> conéctate al canal de voz.", q.ID), nil
	}
	res, err := s.store.Enqueue(ctx, q, userID, note)
	if err != nil {
		return "", err
	}
	switch res.Outcome {
	case domain.AlreadyPresent:
		return "ℹ️ Ya estabas en la cola.", nil
	case domain.RejectedFull:
		return "❌ La cola está llena.", nil
	case domain.RejectedBlocked:
		return "⛔ No puedes unirte a esta cola.", nil
	}
	s.refresh(q)
	pos, err := s.store.PositionOf(ctx, q.ID, userID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Te uniste a <#%s> (#%d).", q.ID, pos), nil
}

func (s *QueueService) Leave(ctx context.Context, guildID, channelID, userID string) (string, error) {
	q, err := s.queue(ctx, guildID, channelID)
	if errors.Is(err, errNotQueue) {
		return notQueueMsg(channelID), nil
	}
	if err != nil {
		return "", err
	}
	removed, err := s.store.Dequeue(ctx, q, []string{userID}, true)
	if err != nil {
		return "", err
	}
	if len(removed) == 0 {
		return "ℹ️ No estabas en la cola.", nil
	}
	s.refresh(q)
	return "✅ Saliste de la cola.", nil
}

// SetRule agrega o quita una regla (deny/priority) para un usuario.
func (s *QueueService) SetRule(ctx context.Context, guildID, channelID, userID string, kind storage.RuleKind, on bool) (string, error) {
	q, err := s.queue(ctx, guildID, channelID)
	if errors.Is(err, errNotQueue) {
		return notQueueMsg(channelID), nil
	}
	if err != nil {
		return "", err
	}
	if on {
		if err := s.rules.Add(ctx, q.ID, userID, kind); err != nil {
			return "", err
		}
	} else if _, err := s.rules.Remove(ctx, q.ID, userID, kind); err != nil {
		return "", err
	}
	if kind == storage.RulePriority {
		if ok, err := s.store.SetPriority(ctx, q.ID, userID, on); err != nil {
			return "", err
		} else if ok {
			s.refresh(q)
		}
	}
	state := "quitada"
	if on {
		state = "agregada"
	}
	return fmt.Sprintf("✅ Regla `%s` %s para <@%s> en <#%s>.", kind, state, userID, q.ID), nil
}

// Mine lista las colas donde está el usuario y su posición.
func (s *QueueService) Mine(ctx context.Context, guildID, userID string) (string, error) {
	ms, err := s.store.QueuesOf(ctx, guildID, userID)
	if err != nil {
		return "", err
	}
	if len(ms) == 0 {
		return "ℹ️ No estás en ninguna cola.", nil
	}
	var b strings.Builder
	b.WriteString("📋 **Tus colas**\n")
	for _, m := range ms {
		pos, err := s.store.PositionOf(ctx, m.QueueID, userID)
		if err != nil {
			return "", err
		}
		n, err := s.store.Length(ctx, m.QueueID)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "• <#%s>: #%d de %d\n", m.QueueID, pos, n)
	}
	return b.String(), nil
}

// Status: listado de texto de una cola.
func (s *QueueService) Status(ctx context.Context, guildID, channelID string) (string, error) {
	q, err := s.queue(ctx, guildID, channelID)
	if errors.Is(err, errNotQueue) {
		return notQueueMsg(channelID), nil
	}
	if err != nil {
		return "", err
	}
	all, err := s.store.List(ctx, q.ID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 **Cola <#%s>** (%d)\n%s\n", q.ID, len(all), describe(q))
	if len(all) == 0 {
		b.WriteString("_vacía_")
		return b.String(), nil
	}
	for i, m := range all {
		if i == statusLimit {
			fmt.Fprintf(&b, "… y %d más", len(all)-statusLimit)
			break
		}
		suf := ""
		if m.Priority {
			suf = " ⭐"
		}
		fmt.Fprintf(&b, "%d) <@%s>%s\n", i+1, m.UserID, suf)
	}
	return b.String(), nil
}

// Snapshot: cola y miembros actuales, para renderizar el display.
func (s *QueueService) Snapshot(ctx context.Context, queueID string) (domain.Queue, []domain.Member, error) {
	q, err := s.queues.Get(ctx, queueID)
	if err != nil {
		return domain.Queue{}, nil, err
	}
	all, err := s.store.List(ctx, q.ID)
	if err != nil {
		return domain.Queue{}, nil, err
	}
	return q, all, nil
}

func (s *QueueService) SetDisplayMode(ctx context.Context, guildID string, mode storage.DisplayMode) (string, error) {
	switch mode {
	case storage.DisplayEdit, storage.DisplayReplace:
	default:
		return fmt.Sprintf("❌ modo inválido: `%s`", mode), nil
	}
	if err := s.settings.SetDisplayMode(ctx, guildID, mode); err != nil {
		return "", err
	}
	qs, err := s.queues.ListByGuild(ctx, guildID)
	if err != nil {
		return "", err
	}
	for _, q := range qs {
		s.refresh(q)
	}
	return fmt.Sprintf("✅ Modo de display: `%s`.", mode), nil
}

func describe(q domain.Queue) string {
	target := "sin destino"
	if q.TargetID != "" {
		target = "<#" + q.TargetID + ">"
	}
	capacity := "∞"
	if q.Capacity > 0 {
		capacity = fmt.Sprint(q.Capacity)
	}
	return fmt.Sprintf("• tipo: **%s** · destino: %s · capacidad: **%s** · gracia: **%s** · autofill: **%s** (%d)",
		q.Kind, target, capacity, q.GracePeriod, q.AutoFill, q.PullCount())
}

func mentions(ids []string) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "<@" + id + ">"
	}
	return strings.Join(out, " ")
}

// Reconcile alinea las colas de voz de la guild con quién está conectado
// (al arrancar o reconectar, cuando se perdieron eventos). present mapea
// canal -> usuarios no-bot conectados. Devuelve removidos y agregados.
func (s *QueueService) Reconcile(ctx context.Context, guildID string, present map[string][]string) (removed, added int, err error) {
	qs, err := s.queues.ListByGuild(ctx, guildID)
	if err != nil {
		return 0, 0, fmt.Errorf("list queues: %w", err)
	}
	for _, q := range qs {
		if q.Kind != domain.KindVoice {
			// el janitor poda text_members por SQL; redibujamos al reconectar
			s.refresh(q)
			continue
		}
		here := make(map[string]bool, len(present[q.ID]))
		for _, u := range present[q.ID] {
			here[u] = true
		}

		all, err := s.store.List(ctx, q.ID)
		if err != nil {
			return removed, added, err
		}
		var gone []string
		for _, m := range all {
			if here[m.UserID] {
				delete(here, m.UserID)
				continue
			}
			gone = append(gone, m.UserID)
		}
		out, err := s.store.Dequeue(ctx, q, gone, false)
		if err != nil {
			return removed, added, err
		}
		removed += len(out)

		// orden estable para los que entraron mientras no mirábamos
		for _, u := range present[q.ID] {
			if !here[u] {
				continue
			}
			res, err := s.store.Enqueue(ctx, q, u, "")
			if err != nil {
				return removed, added, err
			}
			if res.Outcome == domain.Added {
				added++
			}
		}
		if len(out) > 0 || len(here) > 0 {
			s.refresh(q)
		}
	}
	if removed > 0 || added > 0 {
		s.log.Info("queues reconciled", "guild", guildID, "removed", removed, "added", added)
	}
	return removed, added, nil
}
