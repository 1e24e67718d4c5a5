package link

import (
	"net"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

// Client is a connection accepted by an Acceptor.
//
// A Client counts as dead once it is closed, a Read or Write on it fails
// with anything but a timeout, or its socket shows the peer hung up. The
// purge cycle removes dead clients.
type Client struct {
	ID uuid.UUID

	net.Conn

	dead atomic.Bool
}

func newClient(conn net.Conn) *Client {
	return &Client{
		ID:   uuid.New(),
		Conn: conn,
	}
}

func (c *Client) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.observe(err)

	return n, err
}

func (c *Client) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	c.observe(err)

	return n, err
}

func (c *Client) Close() error {
	c.dead.Store(true)

	return c.Conn.Close()
}

// Alive reports whether the peer is still considered connected. Without a
// failed I/O on record it peeks at the socket; data waiting to be read keeps
// the client alive.
func (c *Client) Alive() bool {
	if c.dead.Load() {
		return false
	}

	if closed, ok := peerClosed(c.Conn); ok && closed {
		c.dead.Store(true)
		return false
	}

	return true
}

func (c *Client) String() string {
	return c.ID.String() + "@" + c.Conn.RemoteAddr().String()
}

func (c *Client) observe(err error) {
	if err == nil {
		return
	}

	var ne net.Error
	if xerrors.As(err, &ne) && ne.Timeout() {
		return
	}

	c.dead.Store(true)
}
