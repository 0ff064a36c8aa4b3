package chat

type State uint8

const (
	StateIdle State = iota
	StateAdvertising
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAdvertising:
		return "ADVERTISING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}
