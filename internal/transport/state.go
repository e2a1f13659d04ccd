package transport

// State is the lifecycle state of the connection.
//
//	Disconnected -> Connecting -> Connected -> Disconnected
//
// A Disconnected manager moves back to Connecting after the reconnect delay
// unless it was closed.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}
