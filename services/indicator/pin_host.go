//go:build !rp2040 && !rp2350

package indicator

import "log/slog"

// NewPin returns a stand-in LED that logs level changes at debug.
func NewPin(n int, log *slog.Logger) Pin {
	last := -1
	return PinFunc(func(high bool) {
		v := 0
		if high {
			v = 1
		}
		if v != last {
			last = v
			log.Debug("led", "pin", n, "level", v)
		}
	})
}
