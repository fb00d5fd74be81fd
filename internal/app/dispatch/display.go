package dispatch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ScheduleDisplayUpdate marca la cola para el próximo flush. Varias llamadas
// antes del flush colapsan en una (gana la última).
func (d *Dispatcher) ScheduleDisplayUpdate(req DisplayRequest) {
	if req.QueueID == "" {
		return
	}
	d.displayMu.Lock()
	d.pending[req.QueueID] = req
	d.displayMu.Unlock()
}

// PendingDisplays cuenta las colas esperando render.
func (d *Dispatcher) PendingDisplays() int {
	d.displayMu.Lock()
	defer d.displayMu.Unlock()
	return len(d.pending)
}

// Flush renderiza todo lo pendiente. Cada cola es independiente: un error se
// loguea y no frena al resto. Devuelve cuántas colas se procesaron.
func (d *Dispatcher) Flush(ctx context.Context) int {
	d.displayMu.Lock()
	batch := d.pending
	d.pending = make(map[string]DisplayRequest, len(batch))
	d.displayMu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	start := d.clock.Now()
	var g errgroup.Group
	g.SetLimit(d.flushConcurrency)
	for _, req := range batch {
		req := req
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(ctx, renderTimeout)
			defer cancel()
			if err := d.renderer.RenderAndPublish(rctx, req); err != nil {
				d.log.Warn("display render failed", "guild", req.GuildID, "queue", req.QueueID, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	d.log.Debug("display flush", "n", len(batch), "dur", d.clock.Since(start))
	return len(batch)
}
