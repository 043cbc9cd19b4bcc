//go:build !rp2040 && !rp2350

package watchdog

import (
	"log/slog"
	"os"
	"time"
)

// Expire runs when the host watchdog fires. Tests replace it.
var Expire = func(log *slog.Logger, timeout time.Duration) {
	log.Error("control loop stalled, exiting", "timeout", timeout)
	os.Exit(3)
}

type timerDog struct {
	t       *time.Timer
	timeout time.Duration
}

func start(timeout time.Duration, log *slog.Logger) hardware {
	return &timerDog{
		timeout: timeout,
		t:       time.AfterFunc(timeout, func() { Expire(log, timeout) }),
	}
}

func (d *timerDog) feed() { d.t.Reset(d.timeout) }

func (d *timerDog) stop() { d.t.Stop() }
