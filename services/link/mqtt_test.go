//go:build !rp2040 && !rp2350

package link

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"creasense-go/errcode"
	"creasense-go/x/slogx"

	mqttbroker "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic   string
	payload string
	retain  bool
}

// broker starts an in-process broker and forwards everything under
// creasense/# to the returned channel.
func broker(t *testing.T) (string, func(), <-chan published) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	srv := mqttbroker.New(&mqttbroker.Options{Logger: slogx.Discard(), InlineClient: true})
	require.NoError(t, srv.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, srv.AddListener(listeners.NewTCP(listeners.Config{ID: "t1", Address: addr})))

	ch := make(chan published, 16)
	err = srv.Subscribe("creasense/#", 1, func(_ *mqttbroker.Client, _ packets.Subscription, pk packets.Packet) {
		ch <- published{topic: pk.TopicName, payload: string(pk.Payload), retain: pk.FixedHeader.Retain}
	})
	require.NoError(t, err)

	go func() { _ = srv.Serve() }()
	var once sync.Once
	stop := func() { once.Do(func() { _ = srv.Close() }) }
	t.Cleanup(stop)
	return "tcp://" + addr, stop, ch
}

func nextPub(t *testing.T, ch <-chan published) published {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
		return published{}
	}
}

func TestMQTT_PublishesTelemetryAndStatus(t *testing.T) {
	url, _, ch := broker(t)
	tr := &MQTTTransport{Broker: url, Prefix: "creasense", KeepAlive: 10 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := tr.Dial(ctx, testHello)
	require.NoError(t, err)

	p := nextPub(t, ch)
	assert.Equal(t, "creasense/LightSensor/status", p.topic)
	assert.Equal(t, statusOnline, p.payload)
	assert.Zero(t, c.HeartbeatInterval())

	require.NoError(t, c.Send(ctx, []byte(`{"type":"sensor_data","sensor":"LightSensor"}`)))
	p = nextPub(t, ch)
	assert.Equal(t, "creasense/LightSensor/telemetry", p.topic)
	assert.JSONEq(t, `{"type":"sensor_data","sensor":"LightSensor"}`, p.payload)
	assert.False(t, p.retain)

	require.NoError(t, c.Close())
	p = nextPub(t, ch)
	assert.Equal(t, "creasense/LightSensor/status", p.topic)
	assert.Equal(t, statusOffline, p.payload)

	assert.Equal(t, errcode.NotConnected, errcode.Of(c.Send(ctx, []byte("x"))))
}

func TestMQTT_BrokerGoneMarksDone(t *testing.T) {
	url, stop, ch := broker(t)
	tr := &MQTTTransport{Broker: url, Prefix: "creasense"}
	c, err := tr.Dial(context.Background(), testHello)
	require.NoError(t, err)
	defer c.Close()
	nextPub(t, ch)

	stop()
	select {
	case <-c.Done():
		assert.Error(t, c.Err())
	case <-time.After(3 * time.Second):
		t.Fatal("connection loss not reported")
	}
}

func TestMQTT_DialFailed(t *testing.T) {
	tr := &MQTTTransport{Broker: "tcp://127.0.0.1:1", Prefix: "creasense"}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := tr.Dial(ctx, testHello)
	assert.Equal(t, errcode.DialFailed, errcode.Of(err))
}
