package heartbeat

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"creasense-go/bus"
	"creasense-go/services/link"
	"creasense-go/types"
	"creasense-go/x/slogx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuf struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuf) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuf) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestHeartbeatLogsLinkAndStats(t *testing.T) {
	out := &syncBuf{}
	b := bus.NewBus(4)
	pub := b.NewConnection("link")
	s := New(10*time.Millisecond, func() link.Stats { return link.Stats{Sends: 7} }, slogx.New(out, slog.LevelInfo, "json"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, b.NewConnection("heartbeat"))
	pub.Publish(pub.NewMessage(link.TopicLink, types.LinkStatus{State: types.LinkConnected}, true))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"link":"connected"`)
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), `"msg":"heartbeat"`)
	assert.Contains(t, out.String(), `"sends":7`)
}

func TestHeartbeatDisabled(t *testing.T) {
	out := &syncBuf{}
	b := bus.NewBus(4)
	s := New(0, nil, slogx.New(out, slog.LevelDebug, "json"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, b.NewConnection("heartbeat"))
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, out.String())
}
