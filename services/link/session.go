package link

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"creasense-go/bus"
	"creasense-go/errcode"
	"creasense-go/types"
	"creasense-go/x/slogx"
	"creasense-go/x/timex"

	"github.com/cenkalti/backoff/v4"
)

var TopicLink = bus.T("node", "link")

// Options tune a Session. Zero values get defaults.
type Options struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	// IdleFactor times the heartbeat interval without inbound traffic marks
	// the link lost.
	IdleFactor int
	Backoff    backoff.BackOff
	Clock      timex.Clock
	Conn       *bus.Connection
	Logger     *slog.Logger
}

// Stats are cumulative counters since start.
type Stats struct {
	Attempts     uint64 `json:"attempts"`
	Connects     uint64 `json:"connects"`
	Losses       uint64 `json:"losses"`
	Sends        uint64 `json:"sends"`
	SendFailures uint64 `json:"send_failures"`
	Drops        uint64 `json:"drops"`
	Heartbeats   uint64 `json:"heartbeats"`
}

type dialResult struct {
	conn Conn
	err  error
}

// Session keeps one link to the collector alive without ever blocking its
// caller on the network. EnsureConnected starts dials in the background;
// Poll collects their outcome and any failure of the live connection; Send
// writes synchronously within the write timeout and drops the event on
// failure. All methods except Stats and State are for the scheduler
// goroutine only.
type Session struct {
	tr    Transport
	hello Hello
	opts  Options
	bo    backoff.BackOff
	clock timex.Clock
	log   *slog.Logger
	conn  *bus.Connection

	mu      sync.Mutex
	state   types.LinkState
	stats   Stats
	attempt int

	next       time.Time
	dialCh     chan dialResult
	cancelDial context.CancelFunc
	c          Conn
	lastTx     time.Time
}

func NewSession(tr Transport, hello Hello, opts Options) *Session {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = time.Second
	}
	if opts.IdleFactor <= 0 {
		opts.IdleFactor = 3
	}
	if opts.Clock == nil {
		opts.Clock = timex.System
	}
	if opts.Logger == nil {
		opts.Logger = slogx.Discard()
	}
	bo := opts.Backoff
	if bo == nil {
		bo = NewBackoff(500*time.Millisecond, 30*time.Second, 2, 0.2, opts.Clock)
	}
	s := &Session{
		tr:    tr,
		hello: hello,
		opts:  opts,
		bo:    bo,
		clock: opts.Clock,
		log:   opts.Logger.With("component", "link", "transport", tr.String()),
		conn:  opts.Conn,
	}
	s.publish("init", nil)
	return s
}

// NewBackoff returns a capped exponential backoff that never gives up.
func NewBackoff(initial, max time.Duration, multiplier, jitter float64, clock timex.Clock) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: jitter,
		Multiplier:          multiplier,
		MaxInterval:         max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               clock,
	}
	b.Reset()
	return b
}

func (s *Session) State() types.LinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// NextAttempt is the earliest time a new dial may start.
func (s *Session) NextAttempt() time.Time { return s.next }

// EnsureConnected starts a background dial when the link is down and the
// backoff has elapsed. Otherwise it does nothing.
func (s *Session) EnsureConnected() {
	if s.State() != types.LinkDisconnected {
		return
	}
	now := s.clock.Now()
	if now.Before(s.next) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ConnectTimeout)
	ch := make(chan dialResult, 1)
	s.dialCh, s.cancelDial = ch, cancel

	s.mu.Lock()
	s.state = types.LinkConnecting
	s.attempt++
	s.stats.Attempts++
	s.mu.Unlock()
	s.publish("connecting", nil)
	s.log.Debug("dialing", "attempt", s.attempt)

	tr, hello := s.tr, s.hello
	go func() {
		c, err := tr.Dial(ctx, hello)
		ch <- dialResult{c, err}
	}()
}

// Poll collects a finished dial, notices a failed connection and sends a
// keep-alive when one is due. It never blocks beyond the write timeout.
func (s *Session) Poll() {
	if s.dialCh != nil {
		select {
		case res := <-s.dialCh:
			s.onDial(res)
		default:
		}
	}
	if s.c == nil {
		return
	}

	select {
	case <-s.c.Done():
		s.lost("link_lost", errcode.New(errcode.LinkLost, "link.recv", s.c.Err()))
		return
	default:
	}

	iv := s.c.HeartbeatInterval()
	if iv <= 0 {
		return
	}
	now := s.clock.Now()
	if idle := now.Sub(s.c.LastRx()); idle > time.Duration(s.opts.IdleFactor)*iv {
		s.lost("heartbeat_timeout", errcode.Newf(errcode.LinkLost, "link.recv", "peer silent for "+idle.Truncate(time.Millisecond).String()))
		return
	}
	if now.Sub(s.lastTx) >= iv {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
		err := s.c.Heartbeat(ctx)
		cancel()
		if err != nil {
			s.lost("heartbeat_failed", errcode.New(errcode.SendFailed, "link.heartbeat", err))
			return
		}
		s.lastTx = now
		s.mu.Lock()
		s.stats.Heartbeats++
		s.mu.Unlock()
	}
}

func (s *Session) onDial(res dialResult) {
	s.dialCh = nil
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	if res.err != nil {
		code := errcode.Of(res.err)
		if code != errcode.HandshakeFailed {
			code = errcode.DialFailed
		}
		s.down("dial_failed", errcode.New(code, "link.dial", res.err))
		return
	}

	s.c = res.conn
	s.lastTx = s.clock.Now()
	s.bo.Reset()
	s.mu.Lock()
	s.state = types.LinkConnected
	s.stats.Connects++
	s.attempt = 0
	s.mu.Unlock()
	s.publish("handshake_ok", nil)
	s.log.Info("link up", "heartbeat", s.c.HeartbeatInterval())
}

// Send writes payload on the live link. Nothing is queued: when the link is
// down the event is dropped, and a failed write drops the event and tears
// the link down.
func (s *Session) Send(ctx context.Context, payload []byte) error {
	if s.State() != types.LinkConnected || s.c == nil {
		s.mu.Lock()
		s.stats.Drops++
		s.mu.Unlock()
		return errcode.NotConnected
	}
	wctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	if err := s.c.Send(wctx, payload); err != nil {
		e := errcode.New(errcode.SendFailed, "link.send", err)
		s.mu.Lock()
		s.stats.SendFailures++
		s.stats.Drops++
		s.mu.Unlock()
		s.lost("send_failed", e)
		return e
	}
	s.lastTx = s.clock.Now()
	s.mu.Lock()
	s.stats.Sends++
	s.mu.Unlock()
	return nil
}

// Close tears down the live link or abandons an in-flight dial.
func (s *Session) Close() error {
	var err error
	if s.dialCh != nil {
		ch := s.dialCh
		s.cancelDial()
		s.dialCh, s.cancelDial = nil, nil
		go func() {
			if res := <-ch; res.conn != nil {
				_ = res.conn.Close()
			}
		}()
	}
	if s.c != nil {
		err = s.c.Close()
		s.c = nil
	}
	s.mu.Lock()
	s.state = types.LinkDisconnected
	s.mu.Unlock()
	s.publish("closed", nil)
	return err
}

func (s *Session) lost(status string, err error) {
	if s.c != nil {
		_ = s.c.Close()
		s.c = nil
	}
	s.mu.Lock()
	s.stats.Losses++
	s.mu.Unlock()
	s.down(status, err)
}

func (s *Session) down(status string, err error) {
	d := s.bo.NextBackOff()
	if d == backoff.Stop {
		d = s.opts.ConnectTimeout
	}
	s.next = s.clock.Now().Add(d)
	s.mu.Lock()
	s.state = types.LinkDisconnected
	s.mu.Unlock()
	s.publish(status, err)
	s.log.Warn("link down", "status", status, "retry_in", d, slogx.ErrAttr(err))
}

func (s *Session) publish(status string, err error) {
	if s.conn == nil {
		return
	}
	s.mu.Lock()
	st := types.LinkStatus{
		State:   s.state,
		Status:  status,
		Attempt: s.attempt,
		TS:      timex.NowMs(),
	}
	s.mu.Unlock()
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(TopicLink, st, true))
}
