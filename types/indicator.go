package types

// IndicatorMode is one of the discrete states of the status LED.
type IndicatorMode uint8

const (
	IndicatorOff IndicatorMode = iota
	IndicatorOn
	IndicatorBlinking
)

func (m IndicatorMode) String() string {
	switch m {
	case IndicatorOn:
		return "on"
	case IndicatorBlinking:
		return "blinking"
	default:
		return "off"
	}
}

func (m IndicatorMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// IndicatorFor maps a link state to the LED mode shown for it:
// solid when connected, blinking while connecting, off when down.
func IndicatorFor(s LinkState) IndicatorMode {
	switch s {
	case LinkConnected:
		return IndicatorOn
	case LinkConnecting:
		return IndicatorBlinking
	default:
		return IndicatorOff
	}
}
