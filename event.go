package link

import (
	"fmt"
	"reflect"
)

type EventKind uint8

const (
	EventEnabledChanged EventKind = iota + 1
	EventConnectedChanged
	EventErrorChanged

	// EventDataReceived carries no payload, call GetMessage.
	EventDataReceived

	EventClientConnected
	EventClientPurged
)

func (k EventKind) String() string {
	switch k {
	case EventEnabledChanged:
		return "enabled-changed"
	case EventConnectedChanged:
		return "connected-changed"
	case EventErrorChanged:
		return "error-changed"
	case EventDataReceived:
		return "data-received"
	case EventClientConnected:
		return "client-connected"
	case EventClientPurged:
		return "client-purged"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is a notification pushed to observers. Only the field matching Kind
// is meaningful.
type Event struct {
	Kind EventKind

	Enabled   bool
	Connected bool
	Err       error
	Client    *Client
}

// events collects notifications while a lock is held, they are emitted once
// it is released.
type events []Event

func (ev *events) add(e Event) {
	*ev = append(*ev, e)
}

// sameError reports whether replacing a with b is a no-op.
func sameError(a, b error) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}

	return a == b
}
