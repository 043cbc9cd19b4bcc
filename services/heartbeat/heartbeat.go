// Package heartbeat logs a periodic "alive" line with uptime, link state and
// link counters, so a serial console shows the node is still running.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"creasense-go/bus"
	"creasense-go/services/link"
	"creasense-go/types"
	"creasense-go/x/slogx"
)

type Service struct {
	interval time.Duration
	stats    func() link.Stats
	log      *slog.Logger
	started  time.Time

	state types.LinkState
}

// New returns a heartbeat logger. stats may be nil.
func New(interval time.Duration, stats func() link.Stats, log *slog.Logger) *Service {
	if log == nil {
		log = slogx.Discard()
	}
	return &Service{interval: interval, stats: stats, log: log.With("component", "heartbeat"), started: time.Now()}
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(link.TopicLink)
	defer conn.Unsubscribe(sub)

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("heartbeat stopping")
			return
		case <-tick.C:
			s.beat()
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			if st, ok := msg.Payload.(types.LinkStatus); ok {
				s.state = st.State
			}
		}
	}
}

func (s *Service) beat() {
	attrs := []any{
		slogx.Since("uptime", s.started),
		"link", s.state.String(),
	}
	if s.stats != nil {
		st := s.stats()
		attrs = append(attrs, "sends", st.Sends, "drops", st.Drops, "losses", st.Losses)
	}
	s.log.Info("heartbeat", attrs...)
}

// Start runs the service until ctx is done. A non-positive interval is a
// no-op.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	if s.interval <= 0 {
		return
	}
	go s.serviceLoop(ctx, conn)
}
