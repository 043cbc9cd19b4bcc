package types

import "time"

// Kind names the physical quantity a node variant measures.
type Kind string

const (
	KindLight       Kind = "light"
	KindSoil        Kind = "soil"
	KindTemperature Kind = "temp"
)

// Kinds lists every variant this firmware can be built as.
var Kinds = []Kind{KindLight, KindSoil, KindTemperature}

// Valid reports whether k is a known variant.
func (k Kind) Valid() bool {
	for _, x := range Kinds {
		if k == x {
			return true
		}
	}
	return false
}

// Keys of Reading.Extra.
const (
	ExtraHumidity = "humidity"
)

// Reading is one raw sample produced by the sensor source.
// It is immutable once created and discarded after encoding.
type Reading struct {
	Value      float64
	Valid      bool
	CapturedAt time.Time // carries the monotonic clock reading
	// Extra holds secondary channels from the same transaction (e.g. humidity).
	Extra map[string]float64
	// Err explains an invalid reading; nil when Valid.
	Err error
}

// ---- Bus payloads (retained) ----

// LinkStatus is published on node/link whenever the link state changes.
type LinkStatus struct {
	State   LinkState `json:"state"`
	Status  string    `json:"status"` // short machine string, e.g. "handshake_ok"
	Attempt int       `json:"attempt"`
	TS      int64     `json:"ts_ms"`
	Error   string    `json:"error,omitempty"`
}

// IndicatorStatus is published on node/indicator when the LED mode changes.
type IndicatorStatus struct {
	Mode IndicatorMode `json:"mode"`
	TS   int64         `json:"ts_ms"`
}

// Fault is published on node/fault for every discarded sample.
type Fault struct {
	Code  string  `json:"code"`
	Error string  `json:"error"`
	Last  float64 `json:"last"`
	Run   int     `json:"run"` // consecutive invalid samples
	TS    int64   `json:"ts_ms"`
}
