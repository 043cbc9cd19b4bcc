package types

// LinkState is the connectivity state of the transport session.
type LinkState uint8

const (
	LinkDisconnected LinkState = iota
	LinkConnecting
	LinkConnected
)

func (s LinkState) String() string {
	switch s {
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

func (s LinkState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *LinkState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "connecting":
		*s = LinkConnecting
	case "connected":
		*s = LinkConnected
	default:
		*s = LinkDisconnected
	}
	return nil
}
