package pipeline

import (
	"context"
	"log/slog"
	"time"

	"creasense-go/bus"
	"creasense-go/errcode"
	"creasense-go/services/telemetry"
	"creasense-go/types"
	"creasense-go/x/slogx"
	"creasense-go/x/timex"
)

// Sampler produces one raw reading per call. It must return within its own
// timeout.
type Sampler interface {
	Sample(ctx context.Context) types.Reading
}

// Session is the scheduler's view of the collector link.
type Session interface {
	Poll()
	EnsureConnected()
	Send(ctx context.Context, payload []byte) error
	State() types.LinkState
	Close() error
}

type Encoder interface {
	Encode(r types.Reading, category string, appValue float64) (telemetry.Event, []byte, error)
}

// Indicator shows the link state. Tick drives cooperative blinking.
type Indicator interface {
	Set(mode types.IndicatorMode)
	Tick(now time.Time)
}

type Watchdog interface {
	Feed()
}

// Observer is told about each outcome of a sampling cycle. Implementations
// must not block.
type Observer interface {
	EventSent(ev telemetry.Event)
	SendFailed(ev telemetry.Event, err error)
	SensorFault(r types.Reading)
}

var TopicFault = bus.T("node", "fault")

type Options struct {
	Interval  time.Duration // sampling period
	Tick      time.Duration // loop period
	Indicator Indicator
	Watchdog  Watchdog
	Observer  Observer
	Conn      *bus.Connection
	Clock     timex.Clock
	Logger    *slog.Logger
}

// Scheduler runs the node's single control loop: it keeps the link alive
// every tick and runs sample, classify, normalize, encode and send once per
// interval. It owns all pipeline state; nothing in it is safe for use from
// another goroutine.
type Scheduler[C Category] struct {
	cap     Capability[C]
	sampler Sampler
	enc     Encoder
	session Session

	interval time.Duration
	tick     time.Duration
	ind      Indicator
	wd       Watchdog
	obs      Observer
	conn     *bus.Connection
	clock    timex.Clock
	log      *slog.Logger

	started    time.Time
	lastSample time.Time
	faultRun   int
}

func NewScheduler[C Category](c Capability[C], sampler Sampler, enc Encoder, session Session, opts Options) *Scheduler[C] {
	s := &Scheduler[C]{
		cap:      c,
		sampler:  sampler,
		enc:      enc,
		session:  session,
		interval: opts.Interval,
		tick:     opts.Tick,
		ind:      opts.Indicator,
		wd:       opts.Watchdog,
		obs:      opts.Observer,
		conn:     opts.Conn,
		clock:    opts.Clock,
		log:      opts.Logger,
	}
	if s.tick <= 0 {
		s.tick = 100 * time.Millisecond
	}
	if s.interval <= 0 {
		s.interval = time.Second
	}
	if s.clock == nil {
		s.clock = timex.System
	}
	if s.log == nil {
		s.log = slogx.Discard()
	}
	s.log = s.log.With("component", "scheduler", "kind", string(c.Kind()))
	return s
}

// Step runs one tick at now. The first call only arms the sampling timer.
func (s *Scheduler[C]) Step(ctx context.Context, now time.Time) {
	s.session.Poll()
	s.session.EnsureConnected()

	if s.ind != nil {
		s.ind.Set(types.IndicatorFor(s.session.State()))
		s.ind.Tick(now)
	}
	if s.wd != nil {
		s.wd.Feed()
	}

	if s.started.IsZero() {
		s.started, s.lastSample = now, now
		return
	}
	if now.Sub(s.lastSample) < s.interval {
		return
	}
	s.lastSample = now
	s.cycle(ctx)
}

func (s *Scheduler[C]) cycle(ctx context.Context) {
	r := s.sampler.Sample(ctx)
	if !r.Valid {
		s.faultRun++
		s.log.Warn("sensor fault", "code", string(errcode.Of(r.Err)), "run", s.faultRun, slogx.ErrAttr(r.Err))
		s.publishFault(r)
		if s.obs != nil {
			s.obs.SensorFault(r)
		}
		return
	}
	if s.faultRun > 0 {
		s.log.Info("sensor recovered", "after", s.faultRun)
		s.faultRun = 0
		s.clearFault()
	}

	cat := s.cap.Classify(r.Value)
	app := s.cap.Normalize(r.Value)
	ev, payload, err := s.enc.Encode(r, cat.String(), app)
	if err != nil {
		s.log.Error("encode failed", slogx.ErrAttr(err))
		return
	}

	if err := s.session.Send(ctx, payload); err != nil {
		s.log.Debug("event dropped", "seq", ev.Sequence, "code", string(errcode.Of(err)), slogx.ErrAttr(err))
		if s.obs != nil {
			s.obs.SendFailed(ev, err)
		}
		return
	}
	s.log.Debug("event sent", "seq", ev.Sequence, "value", ev.Value, "category", ev.Category, "app_value", ev.AppValue)
	if s.obs != nil {
		s.obs.EventSent(ev)
	}
}

func (s *Scheduler[C]) publishFault(r types.Reading) {
	if s.conn == nil {
		return
	}
	f := types.Fault{
		Code: string(errcode.Of(r.Err)),
		Last: r.Value,
		Run:  s.faultRun,
		TS:   timex.NowMs(),
	}
	if r.Err != nil {
		f.Error = r.Err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(TopicFault, f, true))
}

func (s *Scheduler[C]) clearFault() {
	if s.conn != nil {
		s.conn.Publish(s.conn.NewMessage(TopicFault, nil, true))
	}
}

// Run drives Step from a ticker until ctx is cancelled, then closes the
// session.
func (s *Scheduler[C]) Run(ctx context.Context) error {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	defer func() {
		if err := s.session.Close(); err != nil {
			s.log.Warn("session close", slogx.ErrAttr(err))
		}
	}()

	s.log.Info("scheduler started", "interval", s.interval, "tick", s.tick)
	s.Step(ctx, s.clock.Now())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-t.C:
			s.Step(ctx, s.clock.Now())
		}
	}
}
