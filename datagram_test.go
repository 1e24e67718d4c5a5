package link

import (
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func localPort(t *testing.T, l *DatagramLink) int {
	t.Helper()

	addr, ok := l.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)

	return addr.Port
}

// newDatagramPair returns a and b where a sends to b's local port.
func newDatagramPair(t *testing.T, cfg *Config) (a, b *DatagramLink) {
	t.Helper()

	b, err := NewDatagramLink("127.0.0.1", 9, 0, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = b.Close()
	})

	a, err = NewDatagramLink("127.0.0.1", localPort(t, b), 0, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close()
	})

	return a, b
}

func TestDatagramLinkPing(t *testing.T) {
	a, b := newDatagramPair(t, testConfig())
	rec := record(b)

	a.SendMessage([]byte("PING\r"))

	require.Eventually(t, b.HasData, eventuallyTimeout, eventuallyTick)

	msg, err := b.GetMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte("PING\r"), msg)

	rec.waitCount(t, 1, kind(EventDataReceived))
	assert.NoError(t, a.Err())
	assert.True(t, a.IsConnected())
	assert.Equal(t, Connected, a.State())
}

func TestDatagramLinkFIFO(t *testing.T) {
	a, b := newDatagramPair(t, testConfig())

	var got []string
	for i := 0; i < 20; i++ {
		a.SendMessage([]byte(fmt.Sprint(i)))

		// one datagram in flight at a time keeps loopback ordering out of the picture
		require.Eventually(t, b.HasData, eventuallyTimeout, eventuallyTick)
		for _, msg := range drainAll(b) {
			got = append(got, string(msg))
		}
	}

	want := make([]string, 20)
	for i := range want {
		want[i] = fmt.Sprint(i)
	}

	assert.Equal(t, want, got)
}

func TestDatagramLinkBoundedQueue(t *testing.T) {
	cfg := testConfig()
	cfg.StartDisabled = true

	l, err := NewDatagramLink("127.0.0.1", 9, 0, cfg)
	require.NoError(t, err)
	defer l.Close()

	l.SetEnabled(true)

	l.mu.Lock()
	for i := 0; i < 150; i++ {
		l.enqueueLocked([]byte(fmt.Sprint(i)))
	}
	l.mu.Unlock()

	msgs := drainAll(l)
	require.Len(t, msgs, 100)

	for i, msg := range msgs {
		assert.Equal(t, fmt.Sprint(i+50), string(msg))
	}
}

func TestDatagramLinkDisabledDropsAndReenables(t *testing.T) {
	a, b := newDatagramPair(t, testConfig())
	rec := record(b)

	b.SetEnabled(false)
	b.SetEnabled(false)
	rec.waitCount(t, 1, kind(EventEnabledChanged))
	assert.Equal(t, Disabled, b.State())

	a.SendMessage([]byte("lost"))
	time.Sleep(50 * time.Millisecond)

	msg, err := b.GetMessage()
	assert.NoError(t, err)
	assert.Nil(t, msg)

	b.SetEnabled(true)
	b.SetEnabled(true)
	rec.waitCount(t, 2, kind(EventEnabledChanged))

	// the receive loop is armed again, whether or not the old receive was still pending
	a.SendMessage([]byte("found"))

	assert.Eventually(t, func() bool {
		for _, msg := range drainAll(b) {
			if string(msg) == "found" {
				return true
			}
		}
		return false
	}, eventuallyTimeout, eventuallyTick)
}

func TestDatagramLinkBindFailure(t *testing.T) {
	taken, err := NewDatagramLink("127.0.0.1", 9, 0, testConfig())
	require.NoError(t, err)
	defer taken.Close()

	_, err = NewDatagramLink("127.0.0.1", 9, localPort(t, taken), testConfig())
	assert.Error(t, err)
}

func TestDatagramLinkClose(t *testing.T) {
	a, b := newDatagramPair(t, testConfig())

	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close())

	assert.Equal(t, Disposed, b.State())
	assert.False(t, b.IsConnected())

	_, err := b.GetMessage()
	assert.ErrorIs(t, err, ErrDisposed)

	b.SendMessage([]byte("after close"))
	b.SetEnabled(true)

	// the peer keeps working
	a.SendMessage([]byte("into the void"))
	assert.True(t, a.Enabled())
}

func TestDatagramLinkSetErr(t *testing.T) {
	cfg := testConfig()
	cfg.StartDisabled = true

	l, err := NewDatagramLink("127.0.0.1", 9, 0, cfg)
	require.NoError(t, err)
	defer l.Close()

	rec := record(l)
	boom := fmt.Errorf("boom")

	l.SetErr(boom)
	l.SetErr(boom)
	assert.Equal(t, boom, l.Err())

	l.SetErr(nil)
	assert.NoError(t, l.Err())

	rec.waitCount(t, 2, kind(EventErrorChanged))
}

// failingPacketConn rejects every send.
type failingPacketConn struct {
	net.PacketConn

	err   error
	sends atomic.Int32
}

func (c *failingPacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.sends.Add(1)
	return 0, c.err
}

func TestDatagramLinkSendFailure(t *testing.T) {
	errSend := xerrors.New("permission denied")

	l, err := NewDatagramLink("127.0.0.1", 9, 0, testConfig())
	require.NoError(t, err)
	defer l.Close()

	rec := record(l)

	failing := &failingPacketConn{err: errSend}

	l.mu.Lock()
	failing.PacketConn = l.conn
	l.conn = failing
	l.mu.Unlock()

	l.SendMessage([]byte("one"))
	l.SendMessage([]byte("two"))

	require.Eventually(t, func() bool {
		return failing.sends.Load() == 2
	}, eventuallyTimeout, eventuallyTick)

	require.Eventually(t, func() bool {
		return xerrors.Is(l.Err(), errSend)
	}, eventuallyTimeout, eventuallyTick)

	assert.Eventually(t, func() bool {
		return rec.count(func(e Event) bool {
			return e.Kind == EventErrorChanged && xerrors.Is(e.Err, errSend)
		}) > 0
	}, eventuallyTimeout, eventuallyTick)

	// connectionless: nothing is torn down
	assert.True(t, l.IsConnected())
	assert.Equal(t, Connected, l.State())
	assert.Zero(t, rec.count(kind(EventConnectedChanged)))
}
