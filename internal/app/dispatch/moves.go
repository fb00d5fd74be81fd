package dispatch

import (
	"context"
	"sync"
	"time"
)

// moveWindow guarda los últimos burst timestamps de moves de una guild,
// el más viejo primero. Pueden ser timestamps futuros (moves diferidos).
type moveWindow struct {
	mu     sync.Mutex
	stamps []time.Time
	burst  int
	span   time.Duration
}

func newMoveWindow(burst int, span time.Duration) *moveWindow {
	return &moveWindow{stamps: make([]time.Time, 0, burst), burst: burst, span: span}
}

// reserve devuelve el primer instante legal para el próximo move y lo anota.
func (w *moveWindow) reserve(now time.Time) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.stamps) < w.burst {
		w.stamps = append(w.stamps, now)
		return now
	}
	oldest := w.stamps[0]
	w.stamps = append(w.stamps[1:], time.Time{})
	at := oldest.Add(w.span)
	if at.Before(now) {
		at = now
	}
	w.stamps[len(w.stamps)-1] = at
	return at
}

// tryReserve anota un move sólo si puede correr ya.
func (w *moveWindow) tryReserve(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.stamps) < w.burst {
		w.stamps = append(w.stamps, now)
		return true
	}
	if w.stamps[0].Add(w.span).After(now) {
		return false
	}
	w.stamps = append(w.stamps[1:], now)
	return true
}

func (d *Dispatcher) window(guildID string) *moveWindow {
	d.windowsMu.Lock()
	defer d.windowsMu.Unlock()
	w, ok := d.windows[guildID]
	if !ok {
		w = newMoveWindow(d.moveBurst, d.moveSpan)
		d.windows[guildID] = w
	}
	return w
}

// ScheduleMove corre el move ya si la ventana de la guild lo permite, si no
// lo difiere hasta el primer instante legal. No se reintenta nunca.
func (d *Dispatcher) ScheduleMove(ctx context.Context, guildID, userID, channelID string) Task {
	now := d.clock.Now()
	at := d.window(guildID).reserve(now)
	if !at.After(now) {
		d.execMove(ctx, guildID, userID, channelID)
		return Task{At: now}
	}

	d.log.Debug("move deferred", "guild", guildID, "user", userID, "channel", channelID, "in", at.Sub(now))
	timer := d.clock.AfterFunc(at.Sub(now), func() {
		mctx, cancel := context.WithTimeout(context.Background(), moveTimeout)
		defer cancel()
		d.execMove(mctx, guildID, userID, channelID)
	})
	return Task{timer: timer, At: at}
}

// TryMoveNow mueve sólo si hay lugar en la ventana en este instante, sin
// re-chequear el destino. Devuelve false si no se movió.
func (d *Dispatcher) TryMoveNow(ctx context.Context, guildID, userID, channelID string) bool {
	if !d.window(guildID).tryReserve(d.clock.Now()) {
		return false
	}
	if err := d.mover.RelocateMember(ctx, guildID, userID, channelID); err != nil {
		d.log.Warn("redirect failed", "guild", guildID, "user", userID, "channel", channelID, "err", err)
		return false
	}
	return true
}

func (d *Dispatcher) execMove(ctx context.Context, guildID, userID, channelID string) {
	info, err := d.mover.Channel(ctx, guildID, channelID)
	if err != nil {
		d.log.Warn("move skipped: channel lookup", "guild", guildID, "channel", channelID, "err", err)
		return
	}
	// alguien pudo llenar el destino mientras esperábamos
	if info.Full() {
		d.log.Debug("move dropped: destination full", "guild", guildID, "user", userID, "channel", channelID)
		return
	}
	if err := d.mover.RelocateMember(ctx, guildID, userID, channelID); err != nil {
		d.log.Warn("move failed", "guild", guildID, "user", userID, "channel", channelID, "err", err)
		return
	}
	d.log.Debug("member moved", "guild", guildID, "user", userID, "channel", channelID)
}
