// Package indicator drives the node's status LED: off, solid or blinking,
// advanced cooperatively by the scheduler tick.
package indicator

import (
	"time"

	"creasense-go/bus"
	"creasense-go/services/config"
	"creasense-go/types"
	"creasense-go/x/timex"
)

var TopicIndicator = bus.T("node", "indicator")

// Pin is a single digital output.
type Pin interface {
	Set(high bool)
}

type PinFunc func(high bool)

func (f PinFunc) Set(high bool) { f(high) }

type Indicator struct {
	pin       Pin
	blink     time.Duration
	activeLow bool
	conn      *bus.Connection

	mode   types.IndicatorMode
	lit    bool
	toggle time.Time
	armed  bool
}

// New returns an indicator that starts Off. conn may be nil.
func New(pin Pin, cfg config.Indicator, conn *bus.Connection) *Indicator {
	blink := cfg.Blink
	if blink <= 0 {
		blink = 500 * time.Millisecond
	}
	i := &Indicator{pin: pin, blink: blink, activeLow: cfg.ActiveLow, conn: conn}
	i.drive(false)
	i.publish()
	return i
}

func (i *Indicator) Mode() types.IndicatorMode { return i.mode }

// Lit reports whether the LED is currently emitting.
func (i *Indicator) Lit() bool { return i.lit }

// Set changes the mode. Setting the current mode is a no-op so it can be
// called every tick.
func (i *Indicator) Set(m types.IndicatorMode) {
	if m == i.mode {
		return
	}
	i.mode = m
	switch m {
	case types.IndicatorOn:
		i.drive(true)
	case types.IndicatorOff:
		i.drive(false)
	case types.IndicatorBlinking:
		i.armed = false
	}
	i.publish()
}

// Tick toggles a blinking LED once per blink period.
func (i *Indicator) Tick(now time.Time) {
	if i.mode != types.IndicatorBlinking {
		return
	}
	if !i.armed {
		i.armed, i.toggle = true, now
		i.drive(true)
		return
	}
	if now.Sub(i.toggle) >= i.blink {
		i.toggle = now
		i.drive(!i.lit)
	}
}

func (i *Indicator) drive(on bool) {
	i.lit = on
	if i.pin != nil {
		i.pin.Set(on != i.activeLow)
	}
}

func (i *Indicator) publish() {
	if i.conn != nil {
		st := types.IndicatorStatus{Mode: i.mode, TS: timex.NowMs()}
		i.conn.Publish(i.conn.NewMessage(TopicIndicator, st, true))
	}
}
