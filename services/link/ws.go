//go:build !rp2040 && !rp2350

package link

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"creasense-go/errcode"
	"creasense-go/services/config"

	"github.com/gorilla/websocket"
)

func init() {
	RegisterTransport("ws", func(cfg *config.Config) (Transport, error) {
		return &WSTransport{
			URL:              cfg.Network.Endpoint(),
			HandshakeTimeout: cfg.Link.HandshakeTimeout,
			Heartbeat:        cfg.Link.HeartbeatInterval,
		}, nil
	})
}

// Collector message types.
const (
	msgHandshake        = "esp_handshake"
	msgHandshakeAck     = "handshake_ack"
	msgRequestHandshake = "request_handshake"
	msgHeartbeat        = "heartbeat"
	msgPing             = "ping"
	msgPong             = "pong"
	msgError            = "error"
)

type wsMessage struct {
	Type              string `json:"type"`
	Message           string `json:"message,omitempty"`
	SensorName        string `json:"sensorName,omitempty"`
	Kind              string `json:"kind,omitempty"`
	BootID            string `json:"boot_id,omitempty"`
	ESPID             string `json:"espId,omitempty"`
	HeartbeatInterval int64  `json:"heartbeat_interval,omitempty"`
	HeartbeatEnabled  *bool  `json:"heartbeat_enabled,omitempty"`
	TS                int64  `json:"ts,omitempty"`
}

// WSTransport speaks the collector's JSON-over-websocket protocol.
type WSTransport struct {
	URL              string
	HandshakeTimeout time.Duration
	// Heartbeat is used when the collector's ack does not name an interval.
	Heartbeat time.Duration
	Dialer    *websocket.Dialer
}

func (t *WSTransport) String() string { return "ws" }

func (t *WSTransport) Dial(ctx context.Context, hello Hello) (Conn, error) {
	d := t.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	ws, _, err := d.DialContext(ctx, t.URL, nil)
	if err != nil {
		return nil, errcode.New(errcode.DialFailed, "ws.dial", err)
	}

	helloMsg, _ := json.Marshal(wsMessage{
		Type:       msgHandshake,
		SensorName: hello.Sensor,
		Kind:       string(hello.Kind),
		BootID:     hello.BootID,
	})
	c := &wsConn{liveness: newLiveness(), ws: ws, hello: helloMsg}

	ack, err := c.handshake(ctx, t.HandshakeTimeout)
	if err != nil {
		_ = ws.Close()
		return nil, errcode.New(errcode.HandshakeFailed, "ws.handshake", err)
	}

	c.hb = t.Heartbeat
	if ack.HeartbeatEnabled != nil && !*ack.HeartbeatEnabled {
		c.hb = 0
	} else if ack.HeartbeatInterval > 0 {
		c.hb = time.Duration(ack.HeartbeatInterval) * time.Millisecond
	}
	c.idle = 3 * c.hb

	ws.SetPingHandler(func(data string) error {
		c.touch()
		c.extend()
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	c.extend()
	go c.readLoop()
	return c, nil
}

type wsConn struct {
	*liveness
	ws    *websocket.Conn
	wmu   sync.Mutex
	hello []byte
	hb    time.Duration
	idle  time.Duration
}

func (c *wsConn) handshake(ctx context.Context, timeout time.Duration) (wsMessage, error) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(hctx, func() { _ = c.ws.Close() })
	defer stop()

	dl, _ := hctx.Deadline()
	_ = c.ws.SetReadDeadline(dl)
	if err := c.write(hctx, c.hello); err != nil {
		return wsMessage{}, err
	}
	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			if hctx.Err() != nil {
				return wsMessage{}, hctx.Err()
			}
			return wsMessage{}, err
		}
		var m wsMessage
		if json.Unmarshal(b, &m) != nil {
			continue
		}
		switch m.Type {
		case msgHandshakeAck:
			c.touch()
			return m, nil
		case msgRequestHandshake:
			if err := c.write(hctx, c.hello); err != nil {
				return wsMessage{}, err
			}
		case msgError:
			return wsMessage{}, errors.New("collector: " + m.Message)
		}
	}
}

func (c *wsConn) extend() {
	if c.idle > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.idle))
	} else {
		_ = c.ws.SetReadDeadline(time.Time{})
	}
}

func (c *wsConn) readLoop() {
	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		c.touch()
		c.extend()

		var m wsMessage
		if json.Unmarshal(b, &m) != nil {
			continue
		}
		switch m.Type {
		case msgRequestHandshake:
			// Collector restarted and forgot us.
			if err := c.write(context.Background(), c.hello); err != nil {
				c.fail(err)
				return
			}
		case msgPing:
			pong, _ := json.Marshal(wsMessage{Type: msgPong, TS: time.Now().UnixMilli()})
			if err := c.write(context.Background(), pong); err != nil {
				c.fail(err)
				return
			}
		case msgError:
			c.fail(errors.New("collector: " + m.Message))
			_ = c.ws.Close()
			return
		}
	}
}

func (c *wsConn) write(ctx context.Context, b []byte) error {
	if c.failed() {
		return errcode.NotConnected
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	dl, ok := ctx.Deadline()
	if !ok {
		dl = time.Now().Add(time.Second)
	}
	_ = c.ws.SetWriteDeadline(dl)
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *wsConn) Send(ctx context.Context, payload []byte) error { return c.write(ctx, payload) }

func (c *wsConn) Heartbeat(ctx context.Context) error {
	b, _ := json.Marshal(wsMessage{Type: msgHeartbeat, TS: time.Now().UnixMilli()})
	return c.write(ctx, b)
}

func (c *wsConn) HeartbeatInterval() time.Duration { return c.hb }

func (c *wsConn) Close() error {
	if c.failed() {
		return c.ws.Close()
	}
	c.fail(errors.New("closed"))
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.ws.Close()
}
