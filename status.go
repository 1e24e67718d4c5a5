package link

import "fmt"

// State is the observed operating state of a link or acceptor.
//
// Disabled -> Connecting -> Connected -> (Disconnected <-> Connecting);
// Disposed is reachable from any state and absorbing.
type State uint8

const (
	Disabled State = iota
	Connecting
	Connected
	Disconnected
	Disposed
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}
