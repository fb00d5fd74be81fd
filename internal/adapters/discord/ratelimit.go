package discord

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userLimiter: un click por usuario por ventana.
type userLimiter struct {
	mu    sync.Mutex
	users map[string]*rate.Limiter
	win   time.Duration
	now   func() time.Time
}

func newUserLimiter(window time.Duration) *userLimiter {
	return &userLimiter{users: map[string]*rate.Limiter{}, win: window, now: time.Now}
}

func (l *userLimiter) Allow(userID string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.users[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.win), 1)
		l.users[userID] = lim
	}
	ok = lim.AllowN(now, 1)
	l.sweep(now)
	return ok
}

// sweep suelta limiters llenos para que el mapa no crezca sin fin. Corre
// después de AllowN: el limiter recién usado ya no está lleno.
func (l *userLimiter) sweep(now time.Time) {
	if len(l.users) < 1024 {
		return
	}
	for id, lim := range l.users {
		if lim.TokensAt(now) >= 1 {
			delete(l.users, id)
		}
	}
}
