package internal

import "time"

const (
	// QueueSize caps the inbound (and pending outbound) message lists of a link.
	QueueSize = 100

	// BufferSize is the size of the per-connection receive buffer.
	BufferSize = 8192

	// DatagramBufferSize fits the largest UDP payload.
	DatagramBufferSize = 64 << 10

	RetryInterval = 3 * time.Second
	PurgeInterval = 10 * time.Second

	DialTimeout   = 10 * time.Second
	DialKeepAlive = 10 * time.Second

	// AcceptErrorDelay throttles re-arming the accept after a failed accept.
	AcceptErrorDelay = 100 * time.Millisecond
)
