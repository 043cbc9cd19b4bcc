//go:build rp2040 || rp2350

package link

import (
	"context"
	"fmt"
	"io"
	"machine"

	"creasense-go/services/config"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

func init() {
	SerialOpen = openUART
}

func openUART(_ context.Context, n config.Network) (io.ReadWriteCloser, error) {
	var hw *uartx.UART
	switch n.UART {
	case 0:
		hw = uartx.UART0
	case 1:
		hw = uartx.UART1
	default:
		return nil, fmt.Errorf("no uart%d", n.UART)
	}
	err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(n.SerialBaud),
		TX:       machine.Pin(n.UARTTX),
		RX:       machine.Pin(n.UARTRX),
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &uartStream{u: hw, ctx: ctx, cancel: cancel}, nil
}

// uartStream adapts uartx to io.ReadWriteCloser. Close unblocks a pending
// Read; the peripheral itself stays configured for the next dial.
type uartStream struct {
	u      *uartx.UART
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *uartStream) Read(b []byte) (int, error) {
	n, err := s.u.RecvSomeContext(s.ctx, b)
	if err != nil && s.ctx.Err() != nil {
		return n, io.EOF
	}
	return n, err
}

func (s *uartStream) Write(b []byte) (int, error) {
	if s.ctx.Err() != nil {
		return 0, io.ErrClosedPipe
	}
	return s.u.Write(b)
}

func (s *uartStream) Close() error {
	s.cancel()
	return nil
}
