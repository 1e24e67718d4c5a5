package link

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/Sherlock-Holo/steadylink/internal"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Acceptor listens on a TCP port, keeps accepting connections while started
// and tracks the live ones. Every Config.PurgeInterval dead clients are
// removed and reported with EventClientPurged.
type Acceptor struct {
	port int

	cfg *Config
	log *logrus.Entry

	// mu guards the listener and its accept loop
	mu        sync.Mutex
	ln        net.Listener
	acceptOp  *internal.Op
	stopped   bool
	disposed  bool
	err       error
	stopPurge context.CancelFunc

	// clientsLock is taken after mu, never before
	clientsLock sync.Mutex
	clients     []*Client

	observers observers
}

// NewAcceptor does not listen until Start. A nil config means DefaultConfig().
func NewAcceptor(port int, config *Config) *Acceptor {
	cfg := config.withDefaults()
	log := cfg.Logger.WithFields(logrus.Fields{
		"link": "acceptor",
		"port": port,
	})

	return &Acceptor{
		port:      port,
		cfg:       cfg,
		log:       log,
		stopped:   true,
		observers: observers{log: log},
	}
}

func (a *Acceptor) Port() int {
	return a.port
}

// Addr is the listening address, nil while stopped.
func (a *Acceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ln == nil {
		return nil
	}

	return a.ln.Addr()
}

func (a *Acceptor) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.err
}

func (a *Acceptor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case a.disposed:
		return Disposed
	case a.stopped:
		return Disabled
	default:
		return Connected
	}
}

// OnEvent registers fn for ClientConnected, ClientPurged and ErrorChanged.
func (a *Acceptor) OnEvent(fn func(Event)) (cancel func()) {
	return a.observers.add(fn)
}

// Start begins listening and accepting. Starting a running acceptor is a no-op.
func (a *Acceptor) Start() error {
	var ev events

	a.mu.Lock()

	if a.disposed {
		a.mu.Unlock()
		return ErrDisposed
	}

	if !a.stopped {
		a.mu.Unlock()
		return nil
	}

	a.log.Debug("listener start")

	ln, err := a.cfg.Listen("tcp", internal.ListenAddress(a.port))
	if err != nil {
		a.log.WithError(err).Error("error starting listener")

		err = xerrors.Errorf("listen port %d: %w", a.port, err)
		a.setErrLocked(err, &ev)

		a.unlockAndEmit(ev)
		return err
	}

	a.ln = ln
	a.stopped = false

	ctx, cancel := context.WithCancel(context.Background())
	a.stopPurge = cancel
	go a.purgeLoop(ctx)

	a.acceptLocked()

	a.mu.Unlock()

	return nil
}

// Stop closes the listener and every tracked client. It is idempotent;
// accepts completing afterwards are discarded.
func (a *Acceptor) Stop() {
	a.mu.Lock()

	if !a.stopped {
		a.log.Debug("listener stop")

		a.stopped = true
		a.acceptOp = nil

		a.stopPurge()
		a.stopPurge = nil

		if err := a.ln.Close(); err != nil {
			a.log.WithError(err).Warn("error stopping listener")
		}
		a.ln = nil
	}

	a.mu.Unlock()

	a.clientsLock.Lock()
	defer a.clientsLock.Unlock()

	for _, c := range a.clients {
		if err := c.Close(); err != nil {
			a.log.WithError(err).WithField("client", c.String()).Debug("close client")
		}
	}

	a.clients = nil
}

// Close stops the acceptor for good: further Start calls fail with ErrDisposed.
func (a *Acceptor) Close() error {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return nil
	}
	a.disposed = true
	a.mu.Unlock()

	a.log.Info("cleaning up network resources")
	a.Stop()

	return nil
}

// Clients returns a snapshot of the tracked clients.
func (a *Acceptor) Clients() []*Client {
	a.clientsLock.Lock()
	defer a.clientsLock.Unlock()

	list := make([]*Client, len(a.clients))
	copy(list, a.clients)

	return list
}

// Purge runs one purge cycle and returns the removed clients. Observers are
// notified once per removed client after the client lock is released.
func (a *Acceptor) Purge() []*Client {
	var purged []*Client

	a.clientsLock.Lock()

	live := make([]*Client, 0, len(a.clients))
	for _, c := range a.clients {
		if c.Alive() {
			live = append(live, c)
		} else {
			purged = append(purged, c)
		}
	}
	a.clients = live

	var ev events
	for _, c := range purged {
		ev.add(Event{Kind: EventClientPurged, Client: c})
	}
	a.observers.post(ev)

	a.clientsLock.Unlock()

	for _, c := range purged {
		a.log.WithField("client", c.String()).Info("client purged")
	}

	a.observers.flush()

	return purged
}

func (a *Acceptor) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Purge()
		}
	}
}

func (a *Acceptor) accept() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.acceptLocked()
}

func (a *Acceptor) acceptLocked() {
	if a.stopped || a.acceptOp != nil {
		return
	}

	op := internal.NewOp(internal.OpAccept, a.log)
	a.acceptOp = op

	internal.Accept(a.ln, op, a.acceptDone)
}

func (a *Acceptor) acceptDone(op *internal.Op, conn net.Conn, err error) {
	var ev events

	a.mu.Lock()

	if op != a.acceptOp || a.stopped {
		a.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	a.acceptOp = nil

	if err != nil {
		if xerrors.Is(err, net.ErrClosed) {
			a.mu.Unlock()
			return
		}

		a.log.WithError(err).Error("error accepting client")
		a.setErrLocked(xerrors.Errorf("accept: %w", err), &ev)

		a.unlockAndEmit(ev)

		time.AfterFunc(internal.AcceptErrorDelay, a.accept)
		return
	}

	a.setErrLocked(nil, &ev)

	client := newClient(conn)

	// posted under the client lock so a purge of this client is always
	// reported after its connection
	a.clientsLock.Lock()
	a.clients = append(a.clients, client)
	ev.add(Event{Kind: EventClientConnected, Client: client})
	a.observers.post(ev)
	a.clientsLock.Unlock()

	a.log.WithField("client", client.String()).Info("client connected")

	a.mu.Unlock()
	a.observers.flush()

	a.accept()
}

// unlockAndEmit posts ev, releases mu and delivers.
func (a *Acceptor) unlockAndEmit(ev events) {
	a.observers.post(ev)
	a.mu.Unlock()
	a.observers.flush()
}

func (a *Acceptor) setErrLocked(err error, ev *events) {
	if sameError(a.err, err) {
		return
	}

	a.err = err
	ev.add(Event{Kind: EventErrorChanged, Err: err})
}
