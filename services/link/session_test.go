package link

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"creasense-go/bus"
	"creasense-go/errcode"
	"creasense-go/services/config"
	"creasense-go/types"
	"creasense-go/x/timex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	*liveness
	hb time.Duration

	mu      sync.Mutex
	rx      time.Time
	sent    [][]byte
	beats   int
	sendErr error
	closed  bool
}

func newFakeConn(hb time.Duration, rx time.Time) *fakeConn {
	return &fakeConn{liveness: newLiveness(), hb: hb, rx: rx}
}

func (c *fakeConn) Send(_ context.Context, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, p)
	return nil
}

func (c *fakeConn) Heartbeat(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beats++
	return nil
}

func (c *fakeConn) HeartbeatInterval() time.Duration { return c.hb }

func (c *fakeConn) LastRx() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rx
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.fail(errors.New("closed"))
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeTransport hands out conns from next, or fails with err.
type fakeTransport struct {
	mu    sync.Mutex
	dials int
	err   error
	next  func() *fakeConn
	// gate, when set, holds Dial until it is closed (ignoring ctx).
	gate    chan struct{}
	sawDone chan struct{}
}

func (t *fakeTransport) String() string { return "fake" }

func (t *fakeTransport) Dial(ctx context.Context, _ Hello) (Conn, error) {
	t.mu.Lock()
	t.dials++
	err, next, gate := t.err, t.next, t.gate
	t.mu.Unlock()
	if gate != nil {
		<-ctx.Done()
		if t.sawDone != nil {
			close(t.sawDone)
		}
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return next(), nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

var start = time.Unix(1_000, 0)

var testHello = Hello{Sensor: "LightSensor", Kind: types.KindLight, BootID: "0190f2a4-1111-7000-8000-000000000000"}

type sessionHarness struct {
	s     *Session
	tr    *fakeTransport
	clock *timex.Manual
	bus   *bus.Bus
}

func newHarness(t *testing.T, tr *fakeTransport) *sessionHarness {
	t.Helper()
	clock := timex.NewManual(start)
	b := bus.NewBus(8)
	s := NewSession(tr, Hello{Sensor: "LightSensor", Kind: types.KindLight}, Options{
		ConnectTimeout: time.Second,
		WriteTimeout:   100 * time.Millisecond,
		Backoff:        NewBackoff(500*time.Millisecond, 4*time.Second, 2, 0, clock),
		Clock:          clock,
		Conn:           b.NewConnection("link"),
	})
	return &sessionHarness{s: s, tr: tr, clock: clock, bus: b}
}

// settle polls until no dial is in flight.
func (h *sessionHarness) settle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.s.dialCh != nil {
		if time.Now().After(deadline) {
			t.Fatal("dial did not finish")
		}
		h.s.Poll()
		time.Sleep(time.Millisecond)
	}
}

func (h *sessionHarness) lastStatus(t *testing.T) types.LinkStatus {
	t.Helper()
	m, ok := h.bus.Retained(TopicLink)
	require.True(t, ok)
	st, ok := m.Payload.(types.LinkStatus)
	require.True(t, ok)
	return st
}

func TestSession_ConnectIsAsyncAndIdempotent(t *testing.T) {
	var conn *fakeConn
	tr := &fakeTransport{next: func() *fakeConn { conn = newFakeConn(0, time.Time{}); return conn }}
	h := newHarness(t, tr)
	assert.Equal(t, types.LinkDisconnected, h.s.State())

	h.s.EnsureConnected()
	assert.Equal(t, types.LinkConnecting, h.s.State())
	h.s.EnsureConnected()

	h.settle(t)
	require.Equal(t, types.LinkConnected, h.s.State())
	assert.Equal(t, "handshake_ok", h.lastStatus(t).Status)

	h.s.EnsureConnected()
	h.s.Poll()
	assert.Equal(t, types.LinkConnected, h.s.State())
	assert.Equal(t, 1, tr.dialCount())

	require.NoError(t, h.s.Send(context.Background(), []byte(`{"a":1}`)))
	assert.Equal(t, [][]byte{[]byte(`{"a":1}`)}, conn.sent)

	st := h.s.Stats()
	assert.Equal(t, uint64(1), st.Attempts)
	assert.Equal(t, uint64(1), st.Connects)
	assert.Equal(t, uint64(1), st.Sends)
}

func TestSession_SendWhileDownIsDropped(t *testing.T) {
	h := newHarness(t, &fakeTransport{err: errors.New("refused")})
	err := h.s.Send(context.Background(), []byte("x"))
	assert.Equal(t, errcode.NotConnected, errcode.Of(err))
	assert.Equal(t, uint64(1), h.s.Stats().Drops)
	assert.Equal(t, 0, h.tr.dialCount())
}

func TestSession_SendFailureDisconnectsAndWaitsForBackoff(t *testing.T) {
	var conn *fakeConn
	tr := &fakeTransport{next: func() *fakeConn { conn = newFakeConn(0, time.Time{}); return conn }}
	h := newHarness(t, tr)
	h.s.EnsureConnected()
	h.settle(t)
	require.Equal(t, types.LinkConnected, h.s.State())

	conn.sendErr = errors.New("broken pipe")
	err := h.s.Send(context.Background(), []byte("evt-1"))
	assert.Equal(t, errcode.SendFailed, errcode.Of(err))
	assert.Equal(t, types.LinkDisconnected, h.s.State())
	assert.True(t, conn.isClosed())
	assert.Equal(t, "send_failed", h.lastStatus(t).Status)

	// The event is gone; a later Send does not replay it.
	err = h.s.Send(context.Background(), []byte("evt-2"))
	assert.Equal(t, errcode.NotConnected, errcode.Of(err))

	h.s.EnsureConnected()
	assert.Equal(t, 1, tr.dialCount(), "reconnect before backoff elapsed")

	h.clock.Advance(499 * time.Millisecond)
	h.s.EnsureConnected()
	assert.Equal(t, 1, tr.dialCount())

	h.clock.Advance(time.Millisecond)
	h.s.EnsureConnected()
	h.settle(t)
	assert.Equal(t, 2, tr.dialCount())
	assert.Equal(t, types.LinkConnected, h.s.State())
	assert.Empty(t, conn.sent, "new conn carries no replayed events")

	st := h.s.Stats()
	assert.Equal(t, uint64(1), st.SendFailures)
	assert.Equal(t, uint64(2), st.Drops)
}

func TestSession_DialFailureBacksOffExponentially(t *testing.T) {
	h := newHarness(t, &fakeTransport{err: errcode.New(errcode.HandshakeFailed, "test", errors.New("no ack"))})

	for _, want := range []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second} {
		h.s.EnsureConnected()
		h.settle(t)
		require.Equal(t, types.LinkDisconnected, h.s.State())
		assert.Equal(t, want, h.s.NextAttempt().Sub(h.clock.Now()))
		h.clock.Advance(want)
	}

	st := h.lastStatus(t)
	assert.Equal(t, "dial_failed", st.Status)
	assert.Equal(t, 5, st.Attempt)
	assert.Contains(t, st.Error, string(errcode.HandshakeFailed))
	assert.Equal(t, uint64(5), h.s.Stats().Attempts)
}

func TestSession_HeartbeatAndIdleTimeout(t *testing.T) {
	var conn *fakeConn
	h := newHarness(t, &fakeTransport{next: func() *fakeConn { conn = newFakeConn(time.Second, start); return conn }})

	h.s.EnsureConnected()
	h.settle(t)
	require.Equal(t, types.LinkConnected, h.s.State())

	h.clock.Advance(999 * time.Millisecond)
	h.s.Poll()
	assert.Equal(t, 0, conn.beats)

	h.clock.Advance(time.Millisecond)
	h.s.Poll()
	assert.Equal(t, 1, conn.beats)

	// A send counts as traffic and postpones the next keep-alive.
	h.clock.Advance(500 * time.Millisecond)
	require.NoError(t, h.s.Send(context.Background(), []byte("x")))
	h.clock.Advance(600 * time.Millisecond)
	h.s.Poll()
	assert.Equal(t, 1, conn.beats)

	h.clock.Advance(3*time.Second - 2100*time.Millisecond)
	h.s.Poll()
	assert.Equal(t, types.LinkConnected, h.s.State(), "exactly 3 intervals idle is tolerated")

	h.clock.Advance(time.Millisecond)
	h.s.Poll()
	assert.Equal(t, types.LinkDisconnected, h.s.State())
	assert.Equal(t, "heartbeat_timeout", h.lastStatus(t).Status)
	assert.True(t, conn.isClosed())
	assert.Equal(t, uint64(1), h.s.Stats().Losses)
}

func TestSession_PeerFailureIsSeenOnPoll(t *testing.T) {
	var conn *fakeConn
	h := newHarness(t, &fakeTransport{next: func() *fakeConn { conn = newFakeConn(0, time.Time{}); return conn }})
	h.s.EnsureConnected()
	h.settle(t)

	conn.fail(errors.New("collector: Replaced by new connection"))
	assert.Equal(t, types.LinkConnected, h.s.State(), "state only changes on the scheduler goroutine")
	h.s.Poll()
	assert.Equal(t, types.LinkDisconnected, h.s.State())
	st := h.lastStatus(t)
	assert.Equal(t, "link_lost", st.Status)
	assert.Contains(t, st.Error, "Replaced by new connection")
}

func TestSession_CloseAbandonsInFlightDial(t *testing.T) {
	var conn atomic.Pointer[fakeConn]
	tr := &fakeTransport{
		gate:    make(chan struct{}),
		sawDone: make(chan struct{}),
		next: func() *fakeConn {
			c := newFakeConn(0, time.Time{})
			conn.Store(c)
			return c
		},
	}
	h := newHarness(t, tr)
	h.s.EnsureConnected()
	require.Equal(t, types.LinkConnecting, h.s.State())

	require.NoError(t, h.s.Close())
	assert.Equal(t, types.LinkDisconnected, h.s.State())
	assert.Equal(t, "closed", h.lastStatus(t).Status)

	select {
	case <-tr.sawDone:
	case <-time.After(time.Second):
		t.Fatal("dial context not cancelled")
	}
	close(tr.gate)
	require.Eventually(t, func() bool { c := conn.Load(); return c != nil && c.isClosed() }, time.Second, 5*time.Millisecond)
}

func TestNewTransport(t *testing.T) {
	assert.Subset(t, Transports(), []string{"mqtt", "serial", "ws"})

	cfg := &config.Config{Network: config.Network{Transport: "carrier-pigeon"}}
	_, err := NewTransport(cfg)
	assert.Equal(t, errcode.UnknownTransport, errcode.Of(err))

	cfg.Network = config.Network{Transport: "ws", Host: "collector.local", Port: 8080, Path: "/"}
	tr, err := NewTransport(cfg)
	require.NoError(t, err)
	assert.Equal(t, "ws", tr.String())
	assert.Equal(t, "ws://collector.local:8080/", tr.(*WSTransport).URL)
}
