package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jose-valero/queuebot/internal/app/dispatch"
	"github.com/jose-valero/queuebot/internal/domain"
	"github.com/jose-valero/queuebot/internal/infra/storage"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// repos en memoria
// ---------------------------------------------------------------------------

type memQueues struct {
	mu sync.Mutex
	qs map[string]domain.Queue
}

func newMemQueues(qs ...domain.Queue) *memQueues {
	m := &memQueues{qs: map[string]domain.Queue{}}
	for _, q := range qs {
		m.qs[q.ID] = q
	}
	return m
}

func (m *memQueues) Get(_ context.Context, id string) (domain.Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.qs[id]
	if !ok {
		return domain.Queue{}, storage.ErrNotFound
	}
	return q, nil
}

func (m *memQueues) filter(keep func(domain.Queue) bool) []domain.Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Queue
	for _, q := range m.qs {
		if keep(q) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memQueues) ListByTarget(_ context.Context, guildID, targetID string) ([]domain.Queue, error) {
	return m.filter(func(q domain.Queue) bool { return q.GuildID == guildID && q.TargetID == targetID }), nil
}

func (m *memQueues) ListByGuild(_ context.Context, guildID string) ([]domain.Queue, error) {
	return m.filter(func(q domain.Queue) bool { return q.GuildID == guildID }), nil
}

func (m *memQueues) Upsert(_ context.Context, q domain.Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qs[q.ID] = q
	return nil
}

func (m *memQueues) SetTarget(_ context.Context, id, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.qs[id]
	if !ok {
		return storage.ErrNotFound
	}
	q.TargetID = target
	m.qs[id] = q
	return nil
}

func (m *memQueues) ClearTargetRefs(_ context.Context, guildID, target string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, q := range m.qs {
		if q.GuildID == guildID && q.TargetID == target {
			q.TargetID = ""
			m.qs[id] = q
			n++
		}
	}
	return n, nil
}

func (m *memQueues) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.qs[id]
	delete(m.qs, id)
	return ok, nil
}

func (m *memQueues) Patch(_ context.Context, id string, u storage.QueuePatch) (domain.Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.qs[id]
	if !ok {
		return domain.Queue{}, storage.ErrNotFound
	}
	if u.Capacity != nil {
		q.Capacity = *u.Capacity
	}
	if u.GraceSeconds != nil {
		q.GracePeriod = time.Duration(*u.GraceSeconds) * time.Second
	}
	if u.AutoFill != nil {
		q.AutoFill = *u.AutoFill
	}
	if u.PullNum != nil {
		q.PullNum = *u.PullNum
	}
	m.qs[id] = q
	return q, nil
}

type memMembers struct {
	mu     sync.Mutex
	queues *memQueues
	rows   map[string]map[string]domain.Member
}

func newMemMembers(queues *memQueues) *memMembers {
	return &memMembers{queues: queues, rows: map[string]map[string]domain.Member{}}
}

func (m *memMembers) Get(_ context.Context, q, u string) (domain.Member, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.rows[q][u]
	return mem, ok, nil
}

func (m *memMembers) Insert(_ context.Context, mem domain.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[mem.QueueID] == nil {
		m.rows[mem.QueueID] = map[string]domain.Member{}
	}
	m.rows[mem.QueueID][mem.UserID] = mem
	return nil
}

func (m *memMembers) Count(_ context.Context, q string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows[q]), nil
}

func (m *memMembers) sorted(q string) []domain.Member {
	out := make([]domain.Member, 0, len(m.rows[q]))
	for _, mem := range m.rows[q] {
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (m *memMembers) List(_ context.Context, q string, limit int) ([]domain.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted(q)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memMembers) MaxPosition(_ context.Context, q string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hi int64
	for _, mem := range m.rows[q] {
		hi = max(hi, mem.Position)
	}
	return hi, nil
}

func (m *memMembers) Delete(_ context.Context, q string, users []string) ([]domain.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Member
	for _, u := range users {
		if mem, ok := m.rows[q][u]; ok {
			out = append(out, mem)
			delete(m.rows[q], u)
		}
	}
	return out, nil
}

func (m *memMembers) SetPriority(_ context.Context, q, u string, p bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.rows[q][u]
	if !ok {
		return false, nil
	}
	mem.Priority = p
	m.rows[q][u] = mem
	return true, nil
}

func (m *memMembers) SetPositions(_ context.Context, q string, pos map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for u, p := range pos {
		if mem, ok := m.rows[q][u]; ok {
			mem.Position = p
			m.rows[q][u] = mem
		}
	}
	return nil
}

func (m *memMembers) ListByUser(ctx context.Context, guildID, u string) ([]domain.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Member
	for qid, rows := range m.rows {
		q, err := m.queues.Get(ctx, qid)
		if err != nil || q.GuildID != guildID {
			continue
		}
		if mem, ok := rows[u]; ok {
			out = append(out, mem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueueID < out[j].QueueID })
	return out, nil
}

func (m *memMembers) users(q string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, mem := range m.sorted(q) {
		out = append(out, mem.UserID)
	}
	return out
}

type memRules struct {
	mu    sync.Mutex
	rules map[[3]string]bool
}

func newMemRules() *memRules { return &memRules{rules: map[[3]string]bool{}} }

func (r *memRules) Admission(_ context.Context, q, u string) (domain.Admission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.Admission{
		Blocked:  r.rules[[3]string{q, u, string(storage.RuleDeny)}],
		Priority: r.rules[[3]string{q, u, string(storage.RulePriority)}],
	}, nil
}

func (r *memRules) Add(_ context.Context, q, u string, k storage.RuleKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[[3]string{q, u, string(k)}] = true
	return nil
}

func (r *memRules) Remove(_ context.Context, q, u string, k storage.RuleKind) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [3]string{q, u, string(k)}
	ok := r.rules[key]
	delete(r.rules, key)
	return ok, nil
}

type memSettings struct {
	modes map[string]storage.DisplayMode
}

func (s *memSettings) DisplayMode(_ context.Context, g string) (storage.DisplayMode, error) {
	if m, ok := s.modes[g]; ok {
		return m, nil
	}
	return storage.DisplayEdit, nil
}

func (s *memSettings) SetDisplayMode(_ context.Context, g string, m storage.DisplayMode) error {
	if s.modes == nil {
		s.modes = map[string]storage.DisplayMode{}
	}
	s.modes[g] = m
	return nil
}

// ---------------------------------------------------------------------------
// plataforma y dispatcher
// ---------------------------------------------------------------------------

type fakePlatform struct {
	mu       sync.Mutex
	channels map[string]domain.ChannelInfo
	noMove   map[string]bool
	notices  []string
	moved    []string
}

func newFakePlatform(chs ...domain.ChannelInfo) *fakePlatform {
	p := &fakePlatform{channels: map[string]domain.ChannelInfo{}, noMove: map[string]bool{}}
	for _, c := range chs {
		p.channels[c.ID] = c
	}
	return p
}

func (p *fakePlatform) Channel(_ context.Context, _, id string) (domain.ChannelInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.channels[id]
	if !ok {
		return domain.ChannelInfo{}, domain.ErrChannelNotFound
	}
	return c, nil
}

func (p *fakePlatform) CanMoveInto(_ context.Context, _, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.channels[id]; !ok {
		return false, domain.ErrChannelNotFound
	}
	return !p.noMove[id], nil
}

func (p *fakePlatform) RelocateMember(_ context.Context, _, u, ch string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moved = append(p.moved, u+"->"+ch)
	return nil
}

func (p *fakePlatform) NotifyOperator(_ context.Context, _, _, msg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, msg)
	return nil
}

type move struct{ user, channel string }

type fakeDispatcher struct {
	mu       sync.Mutex
	now      func() time.Time
	displays []dispatch.DisplayRequest
	moves    []move
	tryNow   bool
	tries    []move
}

func (d *fakeDispatcher) ScheduleDisplayUpdate(req dispatch.DisplayRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.displays = append(d.displays, req)
}

func (d *fakeDispatcher) ScheduleMove(_ context.Context, _, u, ch string) dispatch.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.moves = append(d.moves, move{u, ch})
	at := epoch
	if d.now != nil {
		at = d.now()
	}
	return dispatch.Task{At: at}
}

func (d *fakeDispatcher) TryMoveNow(_ context.Context, _, u, ch string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tries = append(d.tries, move{u, ch})
	return d.tryNow
}

func (d *fakeDispatcher) movesTo(ch string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, m := range d.moves {
		if m.channel == ch {
			out = append(out, m.user)
		}
	}
	return out
}

func (d *fakeDispatcher) displayed(queueID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.displays {
		if r.QueueID == queueID {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.topics {
		if t == topic {
			n++
		}
	}
	return n
}
