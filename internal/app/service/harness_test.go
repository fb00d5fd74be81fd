package service

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jose-valero/queuebot/internal/domain"
)

type harness struct {
	clock    clockwork.FakeClock
	queues   *memQueues
	members  *memMembers
	rules    *memRules
	settings *memSettings
	platform *fakePlatform
	disp     *fakeDispatcher
	pub      *recordingPublisher
	store    *Membership
	planner  *Planner
	interp   *Interpreter
	svc      *QueueService
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newHarness(t *testing.T, qs []domain.Queue, chs []domain.ChannelInfo, opts ...InterpreterOption) *harness {
	t.Helper()
	h := &harness{
		clock:    clockwork.NewFakeClockAt(epoch),
		queues:   newMemQueues(qs...),
		rules:    newMemRules(),
		settings: &memSettings{},
		platform: newFakePlatform(chs...),
		pub:      &recordingPublisher{},
	}
	h.members = newMemMembers(h.queues)
	h.disp = &fakeDispatcher{now: h.clock.Now}
	log := quietLogger()

	h.store = NewMembership(h.members, h.rules,
		WithMembershipClock(h.clock),
		WithMembershipLogger(log),
		WithMembershipEvents(h.pub),
	)
	h.planner = NewPlanner(h.store, h.queues, h.platform, h.disp, log, h.pub)
	base := []InterpreterOption{
		WithInterpreterClock(h.clock),
		WithInterpreterLogger(log),
		WithInterpreterEvents(h.pub),
	}
	h.interp = NewInterpreter(h.queues, h.store, h.planner, h.disp, append(base, opts...)...)
	h.svc = NewQueueService(h.queues, h.rules, h.settings, h.store, h.planner, h.disp, log, h.pub)
	return h
}

// eventually espera a que cond se cumpla; los AfterFunc del reloj falso
// corren en su propia goroutine.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func voiceQueue(id, target string) domain.Queue {
	return domain.Queue{ID: id, GuildID: "g1", Kind: domain.KindVoice, TargetID: target, AutoFill: domain.AutoFillPullNum, PullNum: 1}
}

func channel(id string, capacity, occupants int) domain.ChannelInfo {
	return domain.ChannelInfo{ID: id, GuildID: "g1", Capacity: capacity, NonBotOccupants: occupants}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
