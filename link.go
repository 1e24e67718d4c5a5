package link

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// linkState is the part shared by StreamLink and DatagramLink.
//
// mu guards the socket handle, the pending operation handles, err and the
// pending outbound list; enabled, connected and disposed only change while mu
// is held but may be read without it. inbound has its own lock.
type linkState struct {
	mu sync.Mutex

	enabled   atomic.Bool
	connected atomic.Bool
	disposed  atomic.Bool

	err error

	inbound  *queue
	outbound [][]byte

	observers observers

	cfg *Config
	log *logrus.Entry
}

func (s *linkState) init(cfg *Config, log *logrus.Entry) {
	s.inbound = newQueue(cfg.QueueSize)
	s.observers.log = log
	s.cfg = cfg
	s.log = log
}

func (s *linkState) setErrLocked(err error, ev *events) {
	if sameError(s.err, err) {
		return
	}

	s.err = err
	ev.add(Event{Kind: EventErrorChanged, Err: err})
}

func (s *linkState) setConnectedLocked(connected bool, ev *events) {
	if s.connected.Swap(connected) == connected {
		return
	}

	ev.add(Event{Kind: EventConnectedChanged, Connected: connected})
}

func (s *linkState) setEnabledLocked(enabled bool, ev *events) (changed bool) {
	if s.enabled.Swap(enabled) == enabled {
		return false
	}

	ev.add(Event{Kind: EventEnabledChanged, Enabled: enabled})

	return true
}

// enqueueLocked stores one received message.
func (s *linkState) enqueueLocked(p []byte) {
	if dropped := s.inbound.push(p); dropped > 0 {
		s.log.WithField("limit", s.cfg.QueueSize).Warn("too many incoming messages, dropped oldest")
	}
}

// queueWriteLocked parks p until the outstanding write completes.
func (s *linkState) queueWriteLocked(p []byte) {
	s.outbound = append(s.outbound, p)

	if over := len(s.outbound) - s.cfg.QueueSize; over > 0 {
		s.outbound = s.outbound[over:]
		s.log.WithField("limit", s.cfg.QueueSize).Warn("too many pending writes, dropped oldest")
	}
}

func (s *linkState) nextWriteLocked() []byte {
	if len(s.outbound) == 0 {
		return nil
	}

	p := s.outbound[0]
	s.outbound[0] = nil
	s.outbound = s.outbound[1:]

	return p
}

// unlockAndEmit posts ev, releases mu and delivers.
func (s *linkState) unlockAndEmit(ev events) {
	s.observers.post(ev)
	s.mu.Unlock()
	s.observers.flush()
}

func (s *linkState) GetMessage() ([]byte, error) {
	if s.disposed.Load() {
		return nil, ErrDisposed
	}

	if !s.enabled.Load() {
		return nil, nil
	}

	return s.inbound.pop(), nil
}

func (s *linkState) HasData() bool {
	return s.inbound.len() > 0
}

func (s *linkState) Enabled() bool {
	return s.enabled.Load()
}

func (s *linkState) IsConnected() bool {
	return s.connected.Load()
}

func (s *linkState) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

func (s *linkState) SetErr(err error) {
	var ev events

	s.mu.Lock()
	s.setErrLocked(err, &ev)
	s.unlockAndEmit(ev)
}

// OnEvent registers fn; it runs on I/O completion goroutines with no link
// lock held, so it may call back into the link.
func (s *linkState) OnEvent(fn func(Event)) (cancel func()) {
	return s.observers.add(fn)
}

// notifyData emits DataReceived unless the link was disposed meanwhile.
func (s *linkState) notifyData(ev *events) {
	if !s.disposed.Load() {
		ev.add(Event{Kind: EventDataReceived})
	}
}
