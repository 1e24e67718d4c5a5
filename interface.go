package link

import (
	"context"
	"io"
	"net"

	"github.com/Sherlock-Holo/steadylink/internal"
)

// Link is an always-on endpoint exchanging byte messages with one fixed peer.
//
// SendMessage and GetMessage never block on I/O. Failures surface through
// Err and ErrorChanged events only.
type Link interface {
	SendMessage(p []byte)

	// GetMessage pops the oldest inbound message, or returns nil when the
	// link is disabled or nothing is queued.
	GetMessage() ([]byte, error)
	HasData() bool

	Enabled() bool
	SetEnabled(enabled bool)
	IsConnected() bool
	State() State

	Err() error
	SetErr(err error)

	RemoteAddr() net.Addr

	OnEvent(fn func(Event)) (cancel func())

	io.Closer
}

// Dialer matches net.Dialer.
type Dialer = internal.Dialer

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (f DialerFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

var (
	_ Link = (*StreamLink)(nil)
	_ Link = (*DatagramLink)(nil)
)
