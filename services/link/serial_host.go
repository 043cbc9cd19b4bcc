//go:build !rp2040 && !rp2350

package link

import (
	"context"
	"io"

	"creasense-go/services/config"

	"go.bug.st/serial"
)

func init() {
	SerialOpen = func(_ context.Context, n config.Network) (io.ReadWriteCloser, error) {
		return serial.Open(n.SerialPort, &serial.Mode{BaudRate: n.SerialBaud})
	}
}
