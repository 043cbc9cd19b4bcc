//go:build !rp2040 && !rp2350

package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"creasense-go/errcode"
	"creasense-go/services/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func init() {
	RegisterTransport("mqtt", func(cfg *config.Config) (Transport, error) {
		return &MQTTTransport{
			Broker:    cfg.Network.Broker(),
			Prefix:    cfg.Network.TopicPrefix,
			KeepAlive: cfg.Link.HeartbeatInterval,
		}, nil
	})
}

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// MQTTTransport publishes telemetry to <prefix>/<sensor>/telemetry and keeps
// a retained online/offline marker, backed by a will, on
// <prefix>/<sensor>/status.
type MQTTTransport struct {
	Broker    string
	Prefix    string
	KeepAlive time.Duration
}

func (t *MQTTTransport) String() string { return "mqtt" }

func (t *MQTTTransport) TelemetryTopic(sensor string) string {
	return fmt.Sprintf("%s/%s/telemetry", t.Prefix, sensor)
}

func (t *MQTTTransport) StatusTopic(sensor string) string {
	return fmt.Sprintf("%s/%s/status", t.Prefix, sensor)
}

func (t *MQTTTransport) Dial(ctx context.Context, hello Hello) (Conn, error) {
	c := &mqttConn{
		liveness:  newLiveness(),
		telemetry: t.TelemetryTopic(hello.Sensor),
		status:    t.StatusTopic(hello.Sensor),
	}
	keepAlive := t.KeepAlive
	if keepAlive < time.Second {
		keepAlive = 10 * time.Second
	}
	id := hello.Sensor
	if len(hello.BootID) >= 8 {
		id += "-" + hello.BootID[:8]
	}
	timeout := 5 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(t.Broker).
		SetClientID(id).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(timeout).
		SetKeepAlive(keepAlive).
		SetWill(c.status, statusOffline, 1, true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.fail(err)
		})
	c.client = mqtt.NewClient(opts)

	if err := wait(ctx, c.client.Connect()); err != nil {
		c.client.Disconnect(0)
		return nil, errcode.New(errcode.DialFailed, "mqtt.connect", err)
	}
	if err := wait(ctx, c.client.Publish(c.status, 1, true, statusOnline)); err != nil {
		c.client.Disconnect(0)
		return nil, errcode.New(errcode.HandshakeFailed, "mqtt.status", err)
	}
	c.touch()
	return c, nil
}

type mqttConn struct {
	*liveness
	client    mqtt.Client
	telemetry string
	status    string
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *mqttConn) Send(ctx context.Context, payload []byte) error {
	if c.failed() {
		return errcode.NotConnected
	}
	return wait(ctx, c.client.Publish(c.telemetry, 0, false, payload))
}

// Heartbeat is a no-op: the MQTT keep-alive covers liveness.
func (c *mqttConn) Heartbeat(context.Context) error { return nil }

func (c *mqttConn) HeartbeatInterval() time.Duration { return 0 }

func (c *mqttConn) Close() error {
	if !c.failed() && c.client.IsConnectionOpen() {
		tok := c.client.Publish(c.status, 1, true, statusOffline)
		tok.WaitTimeout(250 * time.Millisecond)
	}
	c.fail(errors.New("closed"))
	c.client.Disconnect(250)
	return nil
}
