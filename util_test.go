package link

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akutz/memconn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eventuallyTick    = 5 * time.Millisecond
	eventuallyTimeout = 3 * time.Second
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logger
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.RetryInterval = 50 * time.Millisecond
	cfg.PurgeInterval = time.Hour
	cfg.Logger = quietLogger()

	return cfg
}

// countingDialer dials the named memconn listener and counts attempts; the
// first failFirst attempts fail without dialing.
type countingDialer struct {
	name      string
	failFirst int32

	attempts atomic.Int32

	mu    sync.Mutex
	times []time.Time
}

func (d *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	n := d.attempts.Add(1)

	d.mu.Lock()
	d.times = append(d.times, time.Now())
	d.mu.Unlock()

	if n <= d.failFirst {
		return nil, &net.OpError{Op: "dial", Net: network, Err: io.ErrUnexpectedEOF}
	}

	return memconn.Dial("memb", d.name)
}

func (d *countingDialer) attemptTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]time.Time(nil), d.times...)
}

func memListen(t *testing.T, name string) net.Listener {
	t.Helper()

	ln, err := memconn.Listen("memb", name)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = ln.Close()
	})

	return ln
}

func acceptOne(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()

	type result struct {
		conn net.Conn
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		require.NoError(t, r.err)
		t.Cleanup(func() {
			_ = r.conn.Close()
		})
		return r.conn
	case <-time.After(eventuallyTimeout):
		t.Fatal("no connection accepted")
		return nil
	}
}

// recorder collects events delivered to an observer.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(l interface{ OnEvent(func(Event)) func() }) *recorder {
	r := &recorder{}
	l.OnEvent(func(e Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})

	return r
}

func (r *recorder) count(match func(Event) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.events {
		if match(e) {
			n++
		}
	}

	return n
}

// waitCount waits until exactly n recorded events match; delivery may trail
// the state change that produced them.
func (r *recorder) waitCount(t *testing.T, n int, match func(Event) bool) bool {
	t.Helper()

	return assert.Eventually(t, func() bool {
		return r.count(match) == n
	}, eventuallyTimeout, eventuallyTick, "want %d matching events, have %d", n, r.count(match))
}

// connected returns the values of every ConnectedChanged event, in delivery order.
func (r *recorder) connected() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	var seq []bool
	for _, e := range r.events {
		if e.Kind == EventConnectedChanged {
			seq = append(seq, e.Connected)
		}
	}

	return seq
}

func kind(k EventKind) func(Event) bool {
	return func(e Event) bool {
		return e.Kind == k
	}
}

// drainAll pops every queued message.
func drainAll(l Link) [][]byte {
	var msgs [][]byte
	for {
		msg, err := l.GetMessage()
		if err != nil || msg == nil {
			return msgs
		}
		msgs = append(msgs, msg)
	}
}
