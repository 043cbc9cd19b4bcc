package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"creasense-go/errcode"
	"creasense-go/services/config"
)

func init() {
	RegisterTransport("serial", func(cfg *config.Config) (Transport, error) {
		return &SerialTransport{
			Network:          cfg.Network,
			HandshakeTimeout: cfg.Link.HandshakeTimeout,
			WriteTimeout:     cfg.Link.WriteTimeout,
			Heartbeat:        cfg.Link.HeartbeatInterval,
		}, nil
	})
}

// SerialOpen opens the byte stream to the network co-processor. Platform
// files set it.
var SerialOpen func(ctx context.Context, n config.Network) (io.ReadWriteCloser, error)

// Frame types on the co-processor link.
const (
	framePing  byte = 0x01
	framePong  byte = 0x02
	frameHello byte = 0x03
	framePub   byte = 0x10
	frameAck   byte = 0x13
	frameNack  byte = 0x14
	frameClose byte = 0x7f
)

// Frame is a type byte, a big-endian uint16 length and the payload.
type Frame struct {
	Type    byte
	Payload []byte
}

type framedReader struct{ r io.Reader }
type framedWriter struct{ w io.Writer }

func newFramedReader(r io.Reader) *framedReader { return &framedReader{r: r} }
func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fr *framedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: hdr[0], Payload: buf}, nil
}

// WriteFrame emits header and payload in one Write so a frame is never
// interleaved on the wire.
func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > 0xFFFF {
		return fmt.Errorf("frame too large: %d", len(f.Payload))
	}
	b := make([]byte, 3+len(f.Payload))
	b[0], b[1], b[2] = f.Type, byte(len(f.Payload)>>8), byte(len(f.Payload))
	copy(b[3:], f.Payload)
	_, err := fw.w.Write(b)
	return err
}

// serialHello asks the co-processor to join WiFi and open the collector
// session on the node's behalf.
type serialHello struct {
	Sensor       string `json:"sensor"`
	Kind         string `json:"kind"`
	BootID       string `json:"boot_id"`
	WiFiSSID     string `json:"wifi_ssid,omitempty"`
	WiFiPassword string `json:"wifi_password,omitempty"`
	Endpoint     string `json:"endpoint"`
}

type serialAck struct {
	HeartbeatInterval int64  `json:"heartbeat_interval,omitempty"`
	Message           string `json:"message,omitempty"`
}

// SerialTransport tunnels telemetry through a network co-processor over a
// UART or USB serial port.
type SerialTransport struct {
	Network          config.Network
	HandshakeTimeout time.Duration
	// WriteTimeout bounds frames the link writes on its own (pong, close).
	WriteTimeout     time.Duration
	Heartbeat        time.Duration
	// Open overrides SerialOpen.
	Open func(ctx context.Context, n config.Network) (io.ReadWriteCloser, error)
}

func (t *SerialTransport) String() string { return "serial" }

func (t *SerialTransport) Dial(ctx context.Context, hello Hello) (Conn, error) {
	open := t.Open
	if open == nil {
		open = SerialOpen
	}
	if open == nil {
		return nil, errcode.Newf(errcode.Unsupported, "serial.open", "no serial port on this platform")
	}
	rwc, err := open(ctx, t.Network)
	if err != nil {
		return nil, errcode.New(errcode.DialFailed, "serial.open", err)
	}

	wt := t.WriteTimeout
	if wt <= 0 {
		wt = time.Second
	}
	c := &serialConn{
		liveness: newLiveness(),
		rwc:      rwc,
		fw:       newFramedWriter(rwc),
		acks:     make(chan Frame, 1),
		wt:       wt,
	}
	go c.readLoop(newFramedReader(rwc))

	payload, _ := json.Marshal(serialHello{
		Sensor:       hello.Sensor,
		Kind:         string(hello.Kind),
		BootID:       hello.BootID,
		WiFiSSID:     t.Network.WiFiSSID,
		WiFiPassword: t.Network.WiFiPassword,
		Endpoint:     t.Network.Endpoint(),
	})
	if err := c.write(ctx, Frame{Type: frameHello, Payload: payload}); err != nil {
		_ = rwc.Close()
		return nil, errcode.New(errcode.HandshakeFailed, "serial.hello", err)
	}

	timeout := t.HandshakeTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var ack Frame
	select {
	case ack = <-c.acks:
	case <-c.Done():
		_ = rwc.Close()
		return nil, errcode.New(errcode.HandshakeFailed, "serial.hello", c.Err())
	case <-timer.C:
		c.fail(errors.New("handshake timeout"))
		_ = rwc.Close()
		return nil, errcode.Newf(errcode.HandshakeFailed, "serial.hello", "no ack within "+timeout.String())
	case <-ctx.Done():
		c.fail(ctx.Err())
		_ = rwc.Close()
		return nil, errcode.New(errcode.HandshakeFailed, "serial.hello", ctx.Err())
	}

	var a serialAck
	if len(ack.Payload) > 0 {
		_ = json.Unmarshal(ack.Payload, &a)
	}
	if ack.Type == frameNack {
		c.fail(errors.New("rejected"))
		_ = rwc.Close()
		return nil, errcode.Newf(errcode.HandshakeFailed, "serial.hello", "co-processor: "+a.Message)
	}
	c.hb = t.Heartbeat
	if a.HeartbeatInterval > 0 {
		c.hb = time.Duration(a.HeartbeatInterval) * time.Millisecond
	}
	return c, nil
}

type serialConn struct {
	*liveness
	rwc  io.ReadWriteCloser
	wmu  sync.Mutex
	fw   *framedWriter
	acks chan Frame
	hb   time.Duration
	wt   time.Duration
}

func (c *serialConn) readLoop(fr *framedReader) {
	for {
		f, err := fr.ReadFrame()
		if err != nil {
			c.fail(err)
			return
		}
		c.touch()
		switch f.Type {
		case framePing:
			if err := c.writeBounded(Frame{Type: framePong}); err != nil {
				c.fail(err)
				return
			}
		case frameAck, frameNack:
			select {
			case c.acks <- f:
			default:
			}
		case frameClose:
			c.fail(errors.New("peer closed link"))
			return
		}
	}
}

func (c *serialConn) write(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.failed() {
		return errcode.NotConnected
	}
	// A stalled peer must not hold the caller past ctx: the write runs on
	// its own goroutine and closing the stream unblocks it.
	errCh := make(chan error, 1)
	go func() {
		c.wmu.Lock()
		defer c.wmu.Unlock()
		errCh <- c.fw.WriteFrame(f)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		c.fail(fmt.Errorf("write: %w", ctx.Err()))
		_ = c.rwc.Close()
		return ctx.Err()
	}
}

func (c *serialConn) writeBounded(f Frame) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.wt)
	defer cancel()
	return c.write(ctx, f)
}

func (c *serialConn) Send(ctx context.Context, payload []byte) error {
	return c.write(ctx, Frame{Type: framePub, Payload: payload})
}

func (c *serialConn) Heartbeat(ctx context.Context) error {
	return c.write(ctx, Frame{Type: framePing})
}

func (c *serialConn) HeartbeatInterval() time.Duration { return c.hb }

func (c *serialConn) Close() error {
	if !c.failed() {
		_ = c.writeBounded(Frame{Type: frameClose})
	}
	c.fail(errors.New("closed"))
	return c.rwc.Close()
}
