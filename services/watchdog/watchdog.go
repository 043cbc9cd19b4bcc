// Package watchdog resets the node when the control loop stops feeding it.
// On the microcontroller it arms the hardware watchdog; on host it logs and
// exits the process so a supervisor can restart it.
package watchdog

import (
	"log/slog"
	"time"

	"creasense-go/services/config"
	"creasense-go/x/slogx"
)

type Watchdog struct {
	timeout time.Duration
	log     *slog.Logger
	hw      hardware
}

// hardware is the platform half.
type hardware interface {
	feed()
	stop()
}

// New arms a watchdog. A disabled config yields a Watchdog whose methods do
// nothing.
func New(cfg config.Watchdog, log *slog.Logger) *Watchdog {
	if log == nil {
		log = slogx.Discard()
	}
	w := &Watchdog{timeout: cfg.Timeout, log: log.With("component", "watchdog")}
	if !cfg.Enabled || cfg.Timeout <= 0 {
		return w
	}
	w.hw = start(cfg.Timeout, w.log)
	w.log.Info("armed", "timeout", cfg.Timeout)
	return w
}

func (w *Watchdog) Enabled() bool { return w.hw != nil }

func (w *Watchdog) Feed() {
	if w.hw != nil {
		w.hw.feed()
	}
}

// Stop disarms where the platform allows it.
func (w *Watchdog) Stop() {
	if w.hw != nil {
		w.hw.stop()
	}
}
