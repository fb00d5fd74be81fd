package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/jose-valero/queuebot/internal/domain"
	"github.com/jose-valero/queuebot/internal/events"
)

// Membership es el único escritor de quién espera en cada cola. Las
// mutaciones se serializan por cola y quedan persistidas antes de volver.
type Membership struct {
	log     *slog.Logger
	clock   clockwork.Clock
	members MemberRepo
	policy  AdmissionPolicy
	holds   *GraceHolds
	events  Publisher
	locks   *keyedMutex

	lastMu sync.Mutex
	last   map[string]int64

	shuffle func(n int, swap func(i, j int))
}

type MembershipOption func(*Membership)

func WithMembershipClock(c clockwork.Clock) MembershipOption {
	return func(m *Membership) { m.clock = c }
}

func WithMembershipLogger(l *slog.Logger) MembershipOption {
	return func(m *Membership) { m.log = l }
}

func WithMembershipEvents(p Publisher) MembershipOption {
	return func(m *Membership) { m.events = p }
}

// WithShuffle reemplaza la permutación usada por Shuffle (tests).
func WithShuffle(f func(n int, swap func(i, j int))) MembershipOption {
	return func(m *Membership) { m.shuffle = f }
}

func NewMembership(members MemberRepo, policy AdmissionPolicy, opts ...MembershipOption) *Membership {
	m := &Membership{
		log:     slog.Default(),
		clock:   clockwork.NewRealClock(),
		members: members,
		policy:  policy,
		events:  events.Noop{},
		locks:   newKeyedMutex(),
		last:    map[string]int64{},
		shuffle: rand.Shuffle,
	}
	for _, o := range opts {
		o(m)
	}
	m.holds = NewGraceHolds(m.clock)
	return m
}

// Holds expone los holds de gracia (lectura/diagnóstico).
func (s *Membership) Holds() *GraceHolds { return s.holds }

func (s *Membership) Enqueue(ctx context.Context, q domain.Queue, userID, note string) (domain.EnqueueResult, error) {
	unlock := s.locks.Lock(q.ID)
	defer unlock()

	if cur, ok, err := s.members.Get(ctx, q.ID, userID); err != nil {
		return domain.EnqueueResult{}, fmt.Errorf("lookup member: %w", err)
	} else if ok {
		return domain.EnqueueResult{Outcome: domain.AlreadyPresent, Member: cur}, nil
	}

	var adm domain.Admission
	if s.policy != nil {
		a, err := s.policy.Admission(ctx, q.ID, userID)
		if err != nil {
			return domain.EnqueueResult{}, fmt.Errorf("admission: %w", err)
		}
		adm = a
	}
	if adm.Blocked && !adm.Priority {
		return domain.EnqueueResult{Outcome: domain.RejectedBlocked}, nil
	}

	if q.Capacity > 0 {
		n, err := s.members.Count(ctx, q.ID)
		if err != nil {
			return domain.EnqueueResult{}, fmt.Errorf("count members: %w", err)
		}
		if n >= q.Capacity {
			return domain.EnqueueResult{Outcome: domain.RejectedFull}, nil
		}
	}

	pos, restored := s.holds.Take(q.ID, userID)
	if !restored {
		p, err := s.nextPosition(ctx, q.ID)
		if err != nil {
			return domain.EnqueueResult{}, err
		}
		pos = p
	}

	m := domain.Member{QueueID: q.ID, UserID: userID, Position: pos, Priority: adm.Priority, Note: note}
	if err := s.members.Insert(ctx, m); err != nil {
		return domain.EnqueueResult{}, fmt.Errorf("insert member: %w", err)
	}
	s.publish(ctx, events.TopicMemberAdded, events.MemberAdded{GuildID: q.GuildID, Member: m, Restored: restored})
	return domain.EnqueueResult{Outcome: domain.Added, Member: m, Restored: restored}, nil
}

// Dequeue saca a los usuarios indicados. Los que no estaban se ignoran. Con
// startHold y grace > 0 cada removido deja un hold para volver a su lugar.
func (s *Membership) Dequeue(ctx context.Context, q domain.Queue, userIDs []string, startHold bool) ([]domain.Member, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	unlock := s.locks.Lock(q.ID)
	defer unlock()

	removed, err := s.members.Delete(ctx, q.ID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("delete members: %w", err)
	}
	for _, m := range removed {
		if startHold && q.GracePeriod > 0 {
			s.holds.Put(q.ID, m.UserID, m.Position, q.GracePeriod)
		}
		s.publish(ctx, events.TopicMemberRemoved, events.MemberRemoved{GuildID: q.GuildID, Member: m, Held: startHold && q.GracePeriod > 0})
	}
	return removed, nil
}

// Next devuelve hasta limit miembros por orden de llegada; limit < 1 = todos.
// La prioridad no reordena.
func (s *Membership) Next(ctx context.Context, queueID string, limit int) ([]domain.Member, error) {
	return s.members.List(ctx, queueID, limit)
}

func (s *Membership) List(ctx context.Context, queueID string) ([]domain.Member, error) {
	return s.members.List(ctx, queueID, 0)
}

func (s *Membership) Length(ctx context.Context, queueID string) (int, error) {
	return s.members.Count(ctx, queueID)
}

// PositionOf es 1-based; 0 si el usuario no está en la cola.
func (s *Membership) PositionOf(ctx context.Context, queueID, userID string) (int, error) {
	all, err := s.members.List(ctx, queueID, 0)
	if err != nil {
		return 0, err
	}
	for i, m := range all {
		if m.UserID == userID {
			return i + 1, nil
		}
	}
	return 0, nil
}

// QueuesOf lista las membresías de un usuario en una guild.
func (s *Membership) QueuesOf(ctx context.Context, guildID, userID string) ([]domain.Member, error) {
	return s.members.ListByUser(ctx, guildID, userID)
}

func (s *Membership) SetPriority(ctx context.Context, queueID, userID string, priority bool) (bool, error) {
	unlock := s.locks.Lock(queueID)
	defer unlock()
	return s.members.SetPriority(ctx, queueID, userID, priority)
}

// Reorder reemplaza las posiciones de los miembros indicados.
func (s *Membership) Reorder(ctx context.Context, queueID string, positions map[string]int64) error {
	if len(positions) == 0 {
		return nil
	}
	unlock := s.locks.Lock(queueID)
	defer unlock()
	return s.reorderLocked(ctx, queueID, positions)
}

// reorderLocked asume el lock de la cola tomado.
func (s *Membership) reorderLocked(ctx context.Context, queueID string, positions map[string]int64) error {
	if err := s.members.SetPositions(ctx, queueID, positions); err != nil {
		return fmt.Errorf("set positions: %w", err)
	}
	var hi int64
	for _, p := range positions {
		hi = max(hi, p)
	}
	s.lastMu.Lock()
	s.last[queueID] = max(s.last[queueID], hi)
	s.lastMu.Unlock()
	return nil
}

// Shuffle permuta al azar las posiciones existentes de la cola. Lectura y
// escritura van bajo el mismo lock: un dequeue en el medio dejaría un hold
// con una clave ya reasignada.
func (s *Membership) Shuffle(ctx context.Context, queueID string) error {
	unlock := s.locks.Lock(queueID)
	defer unlock()

	all, err := s.members.List(ctx, queueID, 0)
	if err != nil {
		return err
	}
	if len(all) < 2 {
		return nil
	}
	keys := make([]int64, len(all))
	for i, m := range all {
		keys[i] = m.Position
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	users := make([]string, len(all))
	for i, m := range all {
		users[i] = m.UserID
	}
	s.shuffle(len(users), func(i, j int) { users[i], users[j] = users[j], users[i] })

	positions := make(map[string]int64, len(users))
	for i, u := range users {
		positions[u] = keys[i]
	}
	return s.reorderLocked(ctx, queueID, positions)
}

// Forget limpia el estado en memoria de una cola borrada.
func (s *Membership) Forget(queueID string) {
	s.holds.DropQueue(queueID)
	s.lastMu.Lock()
	delete(s.last, queueID)
	s.lastMu.Unlock()
}

// nextPosition: timestamp del join, estrictamente creciente dentro de la cola.
func (s *Membership) nextPosition(ctx context.Context, queueID string) (int64, error) {
	s.lastMu.Lock()
	last, seen := s.last[queueID]
	s.lastMu.Unlock()
	if !seen {
		hi, err := s.members.MaxPosition(ctx, queueID)
		if err != nil {
			return 0, fmt.Errorf("max position: %w", err)
		}
		last = hi
	}

	pos := s.clock.Now().UnixNano()
	if pos <= last {
		pos = last + 1
	}
	s.lastMu.Lock()
	s.last[queueID] = pos
	s.lastMu.Unlock()
	return pos, nil
}

func (s *Membership) publish(ctx context.Context, topic string, ev any) {
	if err := s.events.Publish(ctx, topic, ev); err != nil {
		s.log.Warn("publish event failed", "topic", topic, "err", err)
	}
}
