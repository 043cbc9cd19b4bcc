//go:build rp2040 || rp2350

package indicator

import (
	"log/slog"
	"machine"
)

// NewPin configures GPIO n as a push-pull output.
func NewPin(n int, _ *slog.Logger) Pin {
	p := machine.Pin(n)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return PinFunc(p.Set)
}
