package service

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type holdKey struct{ queueID, userID string }

type hold struct {
	position int64
	expires  time.Time
	timer    clockwork.Timer
}

// GraceHolds recuerda la posición de quien salió de una cola mientras dure
// su período de gracia. Vive sólo en memoria.
type GraceHolds struct {
	mu    sync.Mutex
	clock clockwork.Clock
	holds map[holdKey]*hold
}

func NewGraceHolds(c clockwork.Clock) *GraceHolds {
	return &GraceHolds{clock: c, holds: map[holdKey]*hold{}}
}

// Put reemplaza cualquier hold previo del mismo (cola, usuario) y devuelve
// el timer que lo vence.
func (g *GraceHolds) Put(queueID, userID string, position int64, grace time.Duration) clockwork.Timer {
	k := holdKey{queueID, userID}
	h := &hold{position: position, expires: g.clock.Now().Add(grace)}

	g.mu.Lock()
	if old, ok := g.holds[k]; ok && old.timer != nil {
		old.timer.Stop()
	}
	g.holds[k] = h
	g.mu.Unlock()

	t := g.clock.AfterFunc(grace, func() { g.expire(k, h) })
	g.mu.Lock()
	h.timer = t
	g.mu.Unlock()
	return t
}

// Take consume el hold si sigue vivo.
func (g *GraceHolds) Take(queueID, userID string) (int64, bool) {
	k := holdKey{queueID, userID}
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.holds[k]
	if !ok {
		return 0, false
	}
	delete(g.holds, k)
	if h.timer != nil {
		h.timer.Stop()
	}
	if !g.clock.Now().Before(h.expires) {
		return 0, false
	}
	return h.position, true
}

// DropQueue descarta todos los holds de una cola borrada.
func (g *GraceHolds) DropQueue(queueID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, h := range g.holds {
		if k.queueID != queueID {
			continue
		}
		if h.timer != nil {
			h.timer.Stop()
		}
		delete(g.holds, k)
	}
}

func (g *GraceHolds) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.holds)
}

func (g *GraceHolds) expire(k holdKey, h *hold) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.holds[k]; ok && cur == h {
		delete(g.holds, k)
	}
}
