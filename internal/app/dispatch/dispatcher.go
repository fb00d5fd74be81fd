// Package dispatch throttles the two effects the platform rate-limits: edits
// of the queue listing and member moves. It knows nothing about queues beyond
// the ids it is handed.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jose-valero/queuebot/internal/domain"
)

const (
	DefaultFlushPeriod = 1100 * time.Millisecond
	DefaultMoveBurst   = 10
	DefaultMoveWindow  = 12 * time.Second

	defaultFlushConcurrency = 4
	moveTimeout             = 10 * time.Second
	renderTimeout           = 5 * time.Second
)

// Renderer publica el listado de una cola leyendo el estado actual.
type Renderer interface {
	RenderAndPublish(ctx context.Context, req DisplayRequest) error
}

// Mover es la parte de la plataforma que necesita el carril de moves.
type Mover interface {
	Channel(ctx context.Context, guildID, channelID string) (domain.ChannelInfo, error)
	RelocateMember(ctx context.Context, guildID, userID, channelID string) error
}

type DisplayRequest struct {
	GuildID string
	QueueID string
}

// Task es el token de un move diferido. El zero value es un move que ya corrió.
type Task struct {
	timer clockwork.Timer
	At    time.Time
}

// Deferred reporta si el move quedó agendado para más tarde.
func (t Task) Deferred() bool { return t.timer != nil }

// Cancel detiene un move diferido que todavía no corrió.
func (t Task) Cancel() bool {
	if t.timer == nil {
		return false
	}
	return t.timer.Stop()
}

type Dispatcher struct {
	log      *slog.Logger
	clock    clockwork.Clock
	renderer Renderer
	mover    Mover

	flushPeriod      time.Duration
	flushConcurrency int
	moveBurst        int
	moveSpan         time.Duration

	displayMu sync.Mutex
	pending   map[string]DisplayRequest

	windowsMu sync.Mutex
	windows   map[string]*moveWindow
}

type Option func(*Dispatcher)

func WithClock(c clockwork.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

func WithFlushPeriod(p time.Duration) Option {
	return func(d *Dispatcher) {
		if p > 0 {
			d.flushPeriod = p
		}
	}
}

// WithFlushConcurrency limita cuántos renders corren a la vez en un flush.
func WithFlushConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.flushConcurrency = n
		}
	}
}

// WithMoveWindow ajusta el rate limit de moves: burst moves por span, por guild.
func WithMoveWindow(burst int, span time.Duration) Option {
	return func(d *Dispatcher) {
		if burst > 0 {
			d.moveBurst = burst
		}
		if span > 0 {
			d.moveSpan = span
		}
	}
}

func New(r Renderer, m Mover, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:              slog.Default(),
		clock:            clockwork.NewRealClock(),
		renderer:         r,
		mover:            m,
		flushPeriod:      DefaultFlushPeriod,
		flushConcurrency: defaultFlushConcurrency,
		moveBurst:        DefaultMoveBurst,
		moveSpan:         DefaultMoveWindow,
		pending:          map[string]DisplayRequest{},
		windows:          map[string]*moveWindow{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run flushea el carril de display cada flushPeriod hasta que ctx termine.
func (d *Dispatcher) Run(ctx context.Context) {
	t := d.clock.NewTicker(d.flushPeriod)
	defer t.Stop()
	d.log.Info("dispatcher started", "flush_period", d.flushPeriod, "move_burst", d.moveBurst, "move_window", d.moveSpan)
	for {
		select {
		case <-ctx.Done():
			d.Flush(context.Background())
			return
		case <-t.Chan():
			d.Flush(ctx)
		}
	}
}
