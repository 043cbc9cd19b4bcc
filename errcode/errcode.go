package errcode

import "errors"

// Code is a stable, log- and wire-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Sensor faults: recovered locally, the sample is discarded.
	SensorFault Code = "sensor_fault"
	OutOfRange  Code = "out_of_range"
	Timeout     Code = "timeout"

	// Configuration faults: fatal at start-up.
	ConfigInvalid Code = "config_invalid"
	UnknownDriver Code = "unknown_driver"
	UnknownKind   Code = "unknown_kind"

	// Link faults: recovered by the reconnect state machine.
	DialFailed       Code = "dial_failed"
	HandshakeFailed  Code = "handshake_failed"
	LinkLost         Code = "link_lost"
	UnknownTransport Code = "unknown_transport"

	// Send faults: event dropped, link forced down.
	SendFailed   Code = "send_failed"
	NotConnected Code = "not_connected"

	Malformed   Code = "malformed"
	Unsupported Code = "unsupported"

	Error Code = "error" // generic fallback
)

// E wraps a Code with the failing operation and an optional cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.Timeout) match a wrapped *E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// New builds an *E for op with the given code and cause.
func New(c Code, op string, err error) *E {
	return &E{C: c, Op: op, Err: err}
}

// Newf builds an *E carrying a short message instead of a cause.
func Newf(c Code, op, msg string) *E {
	return &E{C: c, Op: op, Msg: msg}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}
