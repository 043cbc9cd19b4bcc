//go:build !rp2040 && !rp2350

// Package status is the host-only, read-only view of a running node:
// health, a JSON snapshot and Prometheus metrics.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"creasense-go/bus"
	"creasense-go/errcode"
	"creasense-go/services/indicator"
	"creasense-go/services/link"
	"creasense-go/services/pipeline"
	"creasense-go/services/telemetry"
	"creasense-go/types"
	"creasense-go/x/slogx"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Info is the fixed identity of the node.
type Info struct {
	Sensor    string     `json:"sensor"`
	Kind      types.Kind `json:"kind"`
	BootID    string     `json:"boot_id"`
	Transport string     `json:"transport"`
	Endpoint  string     `json:"endpoint"`
}

// LastEvent is the JSON form of the most recent telemetry event.
type LastEvent struct {
	Sequence uint64             `json:"sequence"`
	Value    float64            `json:"value"`
	Category string             `json:"category"`
	AppValue float64            `json:"app_value"`
	UptimeMs int64              `json:"uptime_ms"`
	Extra    map[string]float64 `json:"extra,omitempty"`
	Sent     bool               `json:"sent"`
	Error    string             `json:"error,omitempty"`
}

type Snapshot struct {
	Info
	UptimeMs  int64               `json:"uptime_ms"`
	Link      types.LinkStatus    `json:"link"`
	Stats     link.Stats          `json:"stats"`
	Indicator types.IndicatorMode `json:"indicator"`
	LastEvent *LastEvent          `json:"last_event,omitempty"`
	Fault     *types.Fault        `json:"fault,omitempty"`
}

// Service collects the snapshot from scheduler callbacks and bus topics.
type Service struct {
	info    Info
	started time.Time
	stats   func() link.Stats
	reg     *prometheus.Registry
	m       *Metrics
	log     *slog.Logger

	mu   sync.RWMutex
	snap Snapshot
}

var _ pipeline.Observer = (*Service)(nil)

// New builds the service. stats may be nil.
func New(info Info, stats func() link.Stats, log *slog.Logger) *Service {
	if log == nil {
		log = slogx.Discard()
	}
	reg := prometheus.NewRegistry()
	s := &Service{
		info:    info,
		started: time.Now(),
		stats:   stats,
		reg:     reg,
		log:     log.With("component", "status"),
	}
	s.m = NewMetrics(reg, info.Sensor, string(info.Kind), func() float64 {
		if s.stats == nil {
			return 0
		}
		return float64(s.stats().Connects)
	})
	s.snap.Info = info
	return s
}

func (s *Service) Registry() *prometheus.Registry { return s.reg }

func (s *Service) EventSent(ev telemetry.Event) {
	s.m.eventsSent.Inc()
	s.recordEvent(ev, nil)
}

func (s *Service) SendFailed(ev telemetry.Event, err error) {
	s.m.sendFailures.WithLabelValues(string(errcode.Of(err))).Inc()
	s.recordEvent(ev, err)
}

func (s *Service) SensorFault(r types.Reading) {
	s.m.sensorFaults.WithLabelValues(string(errcode.Of(r.Err))).Inc()
}

func (s *Service) recordEvent(ev telemetry.Event, err error) {
	s.m.appValue.Set(ev.AppValue)
	s.m.rawValue.Set(ev.Value)
	s.m.sequence.Set(float64(ev.Sequence))
	le := &LastEvent{
		Sequence: ev.Sequence,
		Value:    ev.Value,
		Category: ev.Category,
		AppValue: ev.AppValue,
		UptimeMs: ev.Uptime.Milliseconds(),
		Extra:    ev.Extra,
		Sent:     err == nil,
	}
	if err != nil {
		le.Error = err.Error()
	}
	s.mu.Lock()
	s.snap.LastEvent = le
	s.mu.Unlock()
}

// Watch follows link, fault and indicator topics until ctx is done.
func (s *Service) Watch(ctx context.Context, conn *bus.Connection) {
	linkSub := conn.Subscribe(link.TopicLink)
	faultSub := conn.Subscribe(pipeline.TopicFault)
	indSub := conn.Subscribe(indicator.TopicIndicator)
	defer func() {
		conn.Unsubscribe(linkSub)
		conn.Unsubscribe(faultSub)
		conn.Unsubscribe(indSub)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-linkSub.Channel():
			if !ok {
				return
			}
			if st, ok := msg.Payload.(types.LinkStatus); ok {
				s.m.linkState.Set(float64(st.State))
				s.mu.Lock()
				s.snap.Link = st
				s.mu.Unlock()
			}
		case msg, ok := <-faultSub.Channel():
			if !ok {
				return
			}
			f, isFault := msg.Payload.(types.Fault)
			s.mu.Lock()
			if isFault {
				s.snap.Fault = &f
			} else {
				s.snap.Fault = nil
			}
			s.mu.Unlock()
		case msg, ok := <-indSub.Channel():
			if !ok {
				return
			}
			if st, ok := msg.Payload.(types.IndicatorStatus); ok {
				s.mu.Lock()
				s.snap.Indicator = st.Mode
				s.mu.Unlock()
			}
		}
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	snap.UptimeMs = time.Since(s.started).Milliseconds()
	if s.stats != nil {
		snap.Stats = s.stats()
	}
	return snap
}

// Handler routes the read-only endpoints.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	return r
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
		s.log.Warn("status encode", slogx.ErrAttr(err))
	}
}

// ListenAndServe serves Handler on addr until ctx is cancelled.
func (s *Service) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
