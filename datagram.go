package link

import (
	"bytes"
	"net"

	"github.com/Sherlock-Holo/steadylink/internal"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// DatagramLink exchanges UDP datagrams with a fixed remote.
//
// There is no connection phase: IsConnected is true until Close, send
// failures are only recorded, and one receive stays outstanding for as long
// as the link is enabled. The local socket stays bound while disabled;
// datagrams landing then are dropped.
type DatagramLink struct {
	linkState

	remote internal.Endpoint
	raddr  *net.UDPAddr

	conn net.PacketConn
	buf  []byte

	recvOp *internal.Op
	sendOp *internal.Op
}

// NewDatagramLink binds localPort (0 picks a free port) and, unless
// config.StartDisabled is set, starts receiving.
func NewDatagramLink(address string, remotePort, localPort int, config *Config) (*DatagramLink, error) {
	cfg := config.withDefaults()

	remote := internal.Endpoint{Net: "udp", Host: address, Port: remotePort}

	raddr, err := net.ResolveUDPAddr(remote.Network(), remote.String())
	if err != nil {
		return nil, xerrors.Errorf("resolve %s: %w", remote, err)
	}

	conn, err := net.ListenPacket(remote.Network(), internal.ListenAddress(localPort))
	if err != nil {
		return nil, xerrors.Errorf("listen udp port %d: %w", localPort, err)
	}

	l := &DatagramLink{
		remote: remote,
		raddr:  raddr,
		conn:   conn,
		buf:    make([]byte, internal.DatagramBufferSize),
	}

	l.init(cfg, cfg.Logger.WithFields(logrus.Fields{
		"link":   "datagram",
		"remote": remote.String(),
		"local":  conn.LocalAddr().String(),
	}))

	l.connected.Store(true)

	if !cfg.StartDisabled {
		l.SetEnabled(true)
	}

	return l, nil
}

func (l *DatagramLink) RemoteAddr() net.Addr {
	return l.remote
}

// LocalAddr is the bound local address.
func (l *DatagramLink) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

func (l *DatagramLink) State() State {
	switch {
	case l.disposed.Load():
		return Disposed
	case !l.enabled.Load():
		return Disabled
	default:
		return Connected
	}
}

// SetEnabled false clears the inbound queue and abandons pending sends;
// true re-arms the receive loop unless a receive is still outstanding.
func (l *DatagramLink) SetEnabled(enabled bool) {
	var ev events

	l.mu.Lock()

	if l.disposed.Load() || !l.setEnabledLocked(enabled, &ev) {
		l.mu.Unlock()
		return
	}

	if !enabled {
		l.log.Info("disabled")
		l.sendOp = nil
		l.outbound = nil
		l.inbound.clear()
	}

	l.unlockAndEmit(ev)

	if enabled {
		l.receive()
	}
}

// SendMessage sends p as one datagram to the remote.
func (l *DatagramLink) SendMessage(p []byte) {
	if len(p) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disposed.Load() || !l.enabled.Load() {
		return
	}

	msg := bytes.Clone(p)

	if l.sendOp != nil {
		l.queueWriteLocked(msg)
		return
	}

	l.sendLocked(msg)
}

// Close disposes the link and releases the socket. It is idempotent.
func (l *DatagramLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disposed.Load() {
		return nil
	}

	l.log.Info("cleaning up network resources")

	l.disposed.Store(true)
	l.connected.Store(false)

	l.recvOp, l.sendOp = nil, nil
	l.outbound = nil
	l.inbound.clear()

	if err := l.conn.Close(); err != nil {
		l.log.WithError(err).Debug("close socket")
	}

	return nil
}

func (l *DatagramLink) receive() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disposed.Load() || !l.enabled.Load() || l.recvOp != nil {
		return
	}

	op := internal.NewOp(internal.OpReceive, l.log)
	l.recvOp = op

	internal.ReadFrom(l.conn, l.buf, op, l.receiveDone)
}

func (l *DatagramLink) receiveDone(op *internal.Op, n int, from net.Addr, err error) {
	var ev events

	l.mu.Lock()

	if op != l.recvOp {
		l.mu.Unlock()
		return
	}

	l.recvOp = nil

	closed := false

	switch {
	case err != nil:
		if xerrors.Is(err, net.ErrClosed) {
			closed = true
			break
		}

		l.log.WithError(err).Error("receive failed")
		l.setErrLocked(xerrors.Errorf("receive: %w", err), &ev)

	case !l.enabled.Load():
		l.log.WithField("from", from).Debug("disabled, datagram dropped")

	case n > 0:
		l.enqueueLocked(bytes.Clone(l.buf[:n]))
		l.setErrLocked(nil, &ev)
		l.notifyData(&ev)
	}

	l.unlockAndEmit(ev)

	if !closed {
		l.receive()
	}
}

func (l *DatagramLink) sendLocked(p []byte) {
	op := internal.NewOp(internal.OpSend, l.log)
	l.sendOp = op

	internal.WriteTo(l.conn, p, l.raddr, op, l.sendDone)
}

func (l *DatagramLink) sendDone(op *internal.Op, err error) {
	var ev events

	l.mu.Lock()

	if op != l.sendOp {
		l.mu.Unlock()
		return
	}

	l.sendOp = nil

	if err != nil {
		l.log.WithError(err).Error("send failed")
		l.setErrLocked(xerrors.Errorf("send %s: %w", l.remote, err), &ev)
	} else {
		l.setErrLocked(nil, &ev)
	}

	if next := l.nextWriteLocked(); next != nil {
		l.sendLocked(next)
	}

	l.unlockAndEmit(ev)
}
