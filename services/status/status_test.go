//go:build !rp2040 && !rp2350

package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"creasense-go/bus"
	"creasense-go/errcode"
	"creasense-go/services/indicator"
	"creasense-go/services/link"
	"creasense-go/services/pipeline"
	"creasense-go/services/telemetry"
	"creasense-go/types"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService() *Service {
	return New(Info{Sensor: "LightSensor", Kind: types.KindLight, BootID: "b1", Transport: "ws"},
		func() link.Stats { return link.Stats{Sends: 3, Drops: 1, Connects: 2} }, nil)
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rec.Body)
	return rec.Code, string(body)
}

func TestObserverUpdatesMetricsAndSnapshot(t *testing.T) {
	s := newService()
	ev := telemetry.Event{Sensor: "LightSensor", Kind: types.KindLight, Value: 10, Category: "dark", AppValue: 0.25, Sequence: 4, Uptime: 4 * time.Second}

	s.EventSent(ev)
	ev.Sequence = 5
	s.SendFailed(ev, errcode.NotConnected)
	s.SensorFault(types.Reading{Err: errcode.New(errcode.Timeout, "sensor.read", errors.New("stuck"))})

	assert.Equal(t, 1.0, testutil.ToFloat64(s.m.eventsSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.m.sendFailures.WithLabelValues("not_connected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.m.sensorFaults.WithLabelValues("timeout")))
	assert.Equal(t, 0.25, testutil.ToFloat64(s.m.appValue))
	assert.Equal(t, 5.0, testutil.ToFloat64(s.m.sequence))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.m.reconnects), "read from link stats")

	snap := s.Snapshot()
	require.NotNil(t, snap.LastEvent)
	assert.Equal(t, uint64(5), snap.LastEvent.Sequence)
	assert.False(t, snap.LastEvent.Sent)
	assert.Equal(t, "not_connected", snap.LastEvent.Error)
	assert.Equal(t, uint64(3), snap.Stats.Sends)
}

func TestWatchFollowsBus(t *testing.T) {
	s := newService()
	b := bus.NewBus(8)
	pub := b.NewConnection("node")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Watch(ctx, b.NewConnection("status"))
		close(done)
	}()

	pub.Publish(pub.NewMessage(link.TopicLink, types.LinkStatus{State: types.LinkConnected, Status: "handshake_ok"}, true))
	pub.Publish(pub.NewMessage(pipeline.TopicFault, types.Fault{Code: "timeout", Run: 2}, true))
	pub.Publish(pub.NewMessage(indicator.TopicIndicator, types.IndicatorStatus{Mode: types.IndicatorOn}, true))

	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.Link.State == types.LinkConnected && snap.Fault != nil && snap.Indicator == types.IndicatorOn
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(s.m.linkState))

	pub.Publish(pub.NewMessage(pipeline.TopicFault, nil, true))
	require.Eventually(t, func() bool { return s.Snapshot().Fault == nil }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return")
	}
}

func TestHandler(t *testing.T) {
	s := newService()
	s.EventSent(telemetry.Event{Category: "dim", AppValue: 0.5, Sequence: 1})
	h := s.Handler()

	code, body := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, body = get(t, h, "/status")
	require.Equal(t, http.StatusOK, code)
	var snap map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &snap))
	assert.Equal(t, "LightSensor", snap["sensor"])
	assert.Equal(t, "light", snap["kind"])
	assert.Equal(t, "disconnected", snap["link"].(map[string]any)["state"])
	assert.Equal(t, "off", snap["indicator"])
	assert.Equal(t, "dim", snap["last_event"].(map[string]any)["category"])
	assert.Equal(t, 3.0, snap["stats"].(map[string]any)["sends"])

	code, body = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `creasense_events_sent_total{kind="light",sensor="LightSensor"} 1`)
	assert.Contains(t, body, `creasense_reconnects_total{kind="light",sensor="LightSensor"} 2`)
	assert.Contains(t, body, "go_goroutines")

	code, _ = get(t, h, "/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := newService()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
