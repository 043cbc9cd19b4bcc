//go:build rp2040 || rp2350

package watchdog

import (
	"log/slog"
	"machine"
	"time"
)

type hwDog struct{}

func start(timeout time.Duration, log *slog.Logger) hardware {
	ms := timeout.Milliseconds()
	// RP2040 caps the watchdog at ~8.3s.
	if ms > 8300 {
		log.Warn("timeout clamped", "requested", timeout)
		ms = 8300
	}
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: uint32(ms)})
	machine.Watchdog.Start()
	return hwDog{}
}

func (hwDog) feed() { machine.Watchdog.Update() }

// stop is a no-op: once started the RP2 watchdog cannot be disabled.
func (hwDog) stop() {}
