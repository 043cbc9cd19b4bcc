// Package link owns the node's connection to the collector: a pluggable
// transport and a non-blocking session state machine driven by the
// scheduler.
package link

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"creasense-go/errcode"
	"creasense-go/services/config"
	"creasense-go/types"
)

// Hello identifies the node to the collector during the handshake.
type Hello struct {
	Sensor string
	Kind   types.Kind
	BootID string
}

// Conn is one established, handshaken link.
type Conn interface {
	// Send writes one telemetry payload within ctx.
	Send(ctx context.Context, payload []byte) error
	// Heartbeat writes an application keep-alive.
	Heartbeat(ctx context.Context) error
	// HeartbeatInterval is the keep-alive period agreed at handshake;
	// zero disables keep-alives and receive-idle detection.
	HeartbeatInterval() time.Duration
	// LastRx is when anything was last received from the peer.
	LastRx() time.Time
	// Done is closed once the connection has failed or been closed; Err
	// then reports why.
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Transport dials and handshakes a Conn.
type Transport interface {
	Dial(ctx context.Context, hello Hello) (Conn, error)
	String() string
}

type Factory func(cfg *config.Config) (Transport, error)

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

// RegisterTransport makes a transport available by name. Platform files
// register theirs from init.
func RegisterTransport(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

// NewTransport builds the transport named in cfg.Network.Transport.
func NewTransport(cfg *config.Config) (Transport, error) {
	name := cfg.Network.Transport
	regMu.RLock()
	f, ok := registry[name]
	regMu.RUnlock()
	if !ok {
		return nil, errcode.Newf(errcode.UnknownTransport, "link", fmt.Sprintf("%q (have %v)", name, Transports()))
	}
	return f(cfg)
}

// Transports lists registered transport names.
func Transports() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// liveness is the Done/Err/LastRx bookkeeping shared by the transports.
type liveness struct {
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	err    error
	lastRx atomic.Int64
}

func newLiveness() *liveness {
	l := &liveness{done: make(chan struct{})}
	l.touch()
	return l
}

func (l *liveness) fail(err error) {
	l.once.Do(func() {
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		close(l.done)
	})
}

func (l *liveness) touch() { l.lastRx.Store(time.Now().UnixNano()) }

func (l *liveness) Done() <-chan struct{} { return l.done }

func (l *liveness) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *liveness) LastRx() time.Time { return time.Unix(0, l.lastRx.Load()) }

func (l *liveness) failed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
