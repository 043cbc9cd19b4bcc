package config

import (
	"errors"
	"fmt"

	"creasense-go/errcode"
	"creasense-go/types"
	"creasense-go/x/mathx"
)

// Transports accepted in network.transport.
var Transports = []string{"ws", "mqtt", "serial"}

// Validate reports every configuration fault found, joined. Each fault
// carries errcode.ConfigInvalid.
func (c *Config) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, errcode.Newf(errcode.ConfigInvalid, "config."+field, fmt.Sprintf(format, args...)))
	}

	if c.Node.Name == "" {
		bad("node.name", "empty")
	}
	if !types.Kind(c.Node.Kind).Valid() {
		bad("node.kind", "unknown kind %q", c.Node.Kind)
	}
	if c.Node.ReadingInterval <= 0 {
		bad("node.reading_interval", "must be positive, got %s", c.Node.ReadingInterval)
	}
	if c.Node.Tick <= 0 {
		bad("node.tick", "must be positive, got %s", c.Node.Tick)
	}

	switch c.Network.Transport {
	case "ws", "mqtt":
		if c.Network.Host == "" {
			bad("network.host", "empty")
		}
		if c.Network.Port <= 0 || c.Network.Port > 65535 {
			bad("network.port", "out of range: %d", c.Network.Port)
		}
	case "serial":
		if c.Network.SerialBaud <= 0 {
			bad("network.serial_baud", "must be positive, got %d", c.Network.SerialBaud)
		}
	default:
		bad("network.transport", "unknown transport %q", c.Network.Transport)
	}

	l := c.Link
	for name, d := range map[string]int64{
		"connect_timeout":   int64(l.ConnectTimeout),
		"handshake_timeout": int64(l.HandshakeTimeout),
		"write_timeout":     int64(l.WriteTimeout),
		"backoff.initial":   int64(l.Backoff.Initial),
		"backoff.max":       int64(l.Backoff.Max),
	} {
		if d <= 0 {
			bad("link."+name, "must be positive")
		}
	}
	if l.HeartbeatInterval < 0 {
		bad("link.heartbeat_interval", "negative")
	}
	if l.Backoff.Max < l.Backoff.Initial {
		bad("link.backoff.max", "below initial")
	}
	if l.Backoff.Multiplier < 1 {
		bad("link.backoff.multiplier", "must be >= 1, got %g", l.Backoff.Multiplier)
	}
	if !mathx.Between(l.Backoff.Jitter, 0, 1) {
		bad("link.backoff.jitter", "must be in [0,1], got %g", l.Backoff.Jitter)
	}

	if c.Sensor.Driver == "" {
		bad("sensor.driver", "empty")
	}
	if c.Sensor.Timeout <= 0 {
		bad("sensor.timeout", "must be positive")
	}
	if !mathx.Finite(c.Sensor.ValidMin) || !mathx.Finite(c.Sensor.ValidMax) || c.Sensor.ValidMax <= c.Sensor.ValidMin {
		bad("sensor.valid", "window [%g,%g] is empty or not finite", c.Sensor.ValidMin, c.Sensor.ValidMax)
	}

	errs = append(errs, c.Classify.validate()...)

	n := c.Normalize
	if !mathx.Finite(n.Min) || !mathx.Finite(n.Max) || n.Max <= n.Min {
		bad("normalize", "range [%g,%g] is empty or not finite", n.Min, n.Max)
	}

	if c.Indicator.Blink <= 0 {
		bad("indicator.blink", "must be positive")
	}
	if c.Watchdog.Enabled && c.Watchdog.Timeout <= c.Node.Tick {
		bad("watchdog.timeout", "must exceed node.tick")
	}

	if c.Log.Heartbeat < 0 {
		bad("log.heartbeat", "negative")
	}

	return errors.Join(errs...)
}

func (c Classify) validate() []error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, errcode.Newf(errcode.ConfigInvalid, "config.classify", fmt.Sprintf(format, args...)))
	}
	if len(c.Bands) == 0 {
		bad("no bands")
	}
	if c.Terminal == "" {
		bad("terminal label empty")
	}
	seen := map[string]bool{c.Terminal: true}
	for i, b := range c.Bands {
		if b.Label == "" {
			bad("band %d: empty label", i)
		} else if seen[b.Label] {
			bad("band %d: duplicate label %q", i, b.Label)
		}
		seen[b.Label] = true
		if !mathx.Finite(b.Max) {
			bad("band %q: max not finite", b.Label)
			continue
		}
		if b.Min != nil && *b.Min > b.Max {
			bad("band %q: min %g above max %g", b.Label, *b.Min, b.Max)
		}
		if i == 0 {
			continue
		}
		prev := c.Bands[i-1].Max
		if b.Max <= prev {
			bad("band %q: max %g not above previous %g", b.Label, b.Max, prev)
		}
		if b.Min != nil && *b.Min < prev {
			bad("band %q: min %g overlaps previous max %g", b.Label, *b.Min, prev)
		}
	}
	return errs
}
