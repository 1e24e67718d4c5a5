package link

import (
	"bytes"
	"context"
	"io"
	"net"
	"time"

	"github.com/Sherlock-Holo/steadylink/internal"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// StreamLink keeps a connection to a fixed TCP remote alive.
//
// A failed connect is retried after Config.RetryInterval for as long as the
// link is enabled; a failed or closed connection is reconnected at once.
// Messages sent while disconnected are dropped.
type StreamLink struct {
	linkState

	remote internal.Endpoint

	ctx    context.Context // cancelled on Close, aborts in-flight dials
	cancel context.CancelFunc

	conn net.Conn
	buf  []byte // receive buffer of the current connection

	connectOp     *internal.Op
	connectCancel context.CancelFunc // aborts the dial of connectOp
	readOp        *internal.Op
	writeOp       *internal.Op

	retry *time.Timer
}

// NewStreamLink creates the link and, unless config.StartDisabled is set,
// starts connecting. A nil config means DefaultConfig().
func NewStreamLink(address string, port int, config *Config) *StreamLink {
	cfg := config.withDefaults()

	l := &StreamLink{
		remote: internal.Endpoint{Net: "tcp", Host: address, Port: port},
	}

	l.init(cfg, cfg.Logger.WithFields(logrus.Fields{
		"link":   "stream",
		"remote": l.remote.String(),
	}))

	l.ctx, l.cancel = context.WithCancel(context.Background())

	if !cfg.StartDisabled {
		l.SetEnabled(true)
	}

	return l
}

func (l *StreamLink) RemoteAddr() net.Addr {
	return l.remote
}

func (l *StreamLink) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.disposed.Load():
		return Disposed
	case !l.enabled.Load():
		return Disabled
	case l.conn != nil:
		return Connected
	case l.connectOp != nil:
		return Connecting
	default:
		return Disconnected
	}
}

// SetEnabled true starts connecting when not connected; false closes the
// connection, abandons pending operations and clears the inbound queue.
func (l *StreamLink) SetEnabled(enabled bool) {
	var ev events

	l.mu.Lock()

	if l.disposed.Load() || !l.setEnabledLocked(enabled, &ev) {
		l.mu.Unlock()
		return
	}

	if enabled {
		l.connectLocked()
	} else {
		l.log.Info("disabled")
		l.stopRetryLocked()
		l.closeLocked(&ev)
		l.inbound.clear()
	}

	l.unlockAndEmit(ev)
}

// SendMessage writes p asynchronously. When not connected it triggers a
// connect attempt and drops p.
func (l *StreamLink) SendMessage(p []byte) {
	if len(p) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disposed.Load() || !l.enabled.Load() {
		return
	}

	if l.conn == nil {
		l.log.Debug("not connected, message dropped")
		l.connectLocked()
		return
	}

	msg := bytes.Clone(p)

	if l.writeOp != nil {
		l.queueWriteLocked(msg)
		return
	}

	l.writeLocked(msg)
}

// Close disposes the link. It is idempotent.
func (l *StreamLink) Close() error {
	var ev events

	l.mu.Lock()

	if l.disposed.Load() {
		l.mu.Unlock()
		return nil
	}

	l.log.Info("cleaning up network resources")

	l.stopRetryLocked()
	l.closeLocked(&ev)
	l.inbound.clear()
	l.disposed.Store(true)
	l.cancel()

	l.unlockAndEmit(ev)

	return nil
}

func (l *StreamLink) connect() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.connectLocked()
}

// connectLocked starts a connect unless one is outstanding or the link is
// connected, disabled or disposed.
func (l *StreamLink) connectLocked() {
	if l.disposed.Load() || !l.enabled.Load() || l.connectOp != nil || l.conn != nil {
		return
	}

	l.stopRetryLocked()

	op := internal.NewOp(internal.OpConnect, l.log)
	l.connectOp = op

	l.log.Info("connecting")

	ctx, cancel := context.WithTimeout(l.ctx, l.cfg.DialTimeout)
	l.connectCancel = cancel

	internal.Connect(ctx, l.cfg.Dialer, l.remote.Network(), l.remote.String(), op, func(op *internal.Op, conn net.Conn, err error) {
		cancel()
		l.connectDone(op, conn, err)
	})
}

func (l *StreamLink) connectDone(op *internal.Op, conn net.Conn, err error) {
	var ev events

	l.mu.Lock()

	if op != l.connectOp {
		l.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	l.connectOp = nil
	l.connectCancel = nil

	if err != nil {
		l.log.WithError(err).Error("connect failed")
		l.setErrLocked(xerrors.Errorf("connect %s: %w", l.remote, err), &ev)
		l.setConnectedLocked(false, &ev)
		l.retry = time.AfterFunc(l.cfg.RetryInterval, l.connect)

		l.unlockAndEmit(ev)
		return
	}

	l.log.Info("connected")

	l.conn = conn
	l.buf = make([]byte, l.cfg.BufferSize)
	l.setErrLocked(nil, &ev)
	l.setConnectedLocked(true, &ev)

	l.unlockAndEmit(ev)
	l.receive()
}

// receive arms the next read.
func (l *StreamLink) receive() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disposed.Load() || !l.enabled.Load() || l.conn == nil || l.readOp != nil {
		return
	}

	op := internal.NewOp(internal.OpRead, l.log)
	l.readOp = op

	buf := l.buf
	internal.Read(l.conn, buf, op, func(op *internal.Op, n int, err error) {
		l.readDone(op, buf, n, err)
	})
}

func (l *StreamLink) readDone(op *internal.Op, buf []byte, n int, err error) {
	var ev events

	l.mu.Lock()

	if op != l.readOp {
		l.mu.Unlock()
		return
	}

	l.readOp = nil

	if n > 0 {
		l.enqueueLocked(bytes.Clone(buf[:n]))
		l.setErrLocked(nil, &ev)
		l.notifyData(&ev)
	}

	var broken bool

	switch {
	case err == nil && n > 0:
	case err == nil || xerrors.Is(err, io.EOF):
		l.log.Info("peer closed the connection")
		l.closeLocked(&ev)
		broken = true
	default:
		l.log.WithError(err).Error("read failed")
		l.setErrLocked(xerrors.Errorf("read %s: %w", l.remote, err), &ev)
		l.closeLocked(&ev)
		broken = true
	}

	l.unlockAndEmit(ev)

	if broken {
		l.connect()
		return
	}

	l.receive()
}

// writeLocked issues one write; the caller checked no write is outstanding.
func (l *StreamLink) writeLocked(p []byte) {
	op := internal.NewOp(internal.OpWrite, l.log)
	l.writeOp = op

	internal.Write(l.conn, p, op, l.writeDone)
}

func (l *StreamLink) writeDone(op *internal.Op, err error) {
	var ev events

	l.mu.Lock()

	if op != l.writeOp {
		l.mu.Unlock()
		return
	}

	l.writeOp = nil

	if err != nil {
		l.log.WithError(err).Error("write failed")
		l.setErrLocked(xerrors.Errorf("write %s: %w", l.remote, err), &ev)
		l.closeLocked(&ev)

		l.unlockAndEmit(ev)
		l.connect()
		return
	}

	l.setErrLocked(nil, &ev)

	if next := l.nextWriteLocked(); next != nil {
		l.writeLocked(next)
	}

	l.unlockAndEmit(ev)
}

// closeLocked drops the connection and every pending operation handle;
// completions still in flight will find their handle replaced and discard
// their result.
func (l *StreamLink) closeLocked(ev *events) {
	l.log.Debug("safe close")

	if l.connectCancel != nil {
		l.connectCancel()
		l.connectCancel = nil
	}

	l.connectOp, l.readOp, l.writeOp = nil, nil, nil
	l.outbound = nil

	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			l.log.WithError(err).Debug("close connection")
		}
		l.conn = nil
	}

	l.buf = nil
	l.setConnectedLocked(false, ev)
}

func (l *StreamLink) stopRetryLocked() {
	if l.retry != nil {
		l.retry.Stop()
		l.retry = nil
	}
}
