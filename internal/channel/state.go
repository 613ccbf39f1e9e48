package channel

// State is the lifecycle stage of a channel.
type State int32

const (
	// StateConnecting means the websocket is being dialed; sends are dropped.
	StateConnecting State = iota
	// StateOpen means the handshake was sent and frames flow both ways.
	StateOpen
	// StateClosed is terminal. The channel is never reopened.
	StateClosed
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
