package link

import (
	"net"
	"time"

	"github.com/Sherlock-Holo/steadylink/internal"
	"github.com/sirupsen/logrus"
)

// ListenFunc matches net.Listen.
type ListenFunc func(network, address string) (net.Listener, error)

// Config link and acceptor config.
type Config struct {
	// StartDisabled creates the link with Enabled() == false.
	StartDisabled bool

	// QueueSize caps the inbound message queue; the oldest item is dropped on overflow.
	QueueSize int

	// BufferSize is the stream link receive buffer size.
	BufferSize int

	// RetryInterval is the fixed delay before retrying a failed connect.
	RetryInterval time.Duration

	// PurgeInterval is the acceptor purge cycle period.
	PurgeInterval time.Duration

	DialTimeout time.Duration

	Dialer Dialer
	Listen ListenFunc

	Logger *logrus.Logger
}

// DefaultConfig default config.
func DefaultConfig() *Config {
	return &Config{
		QueueSize:     internal.QueueSize,
		BufferSize:    internal.BufferSize,
		RetryInterval: internal.RetryInterval,
		PurgeInterval: internal.PurgeInterval,
		DialTimeout:   internal.DialTimeout,
		Dialer:        &net.Dialer{KeepAlive: internal.DialKeepAlive},
		Listen:        net.Listen,
		Logger:        logrus.StandardLogger(),
	}
}

// withDefaults returns a copy of c with zero fields filled in.
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}

	cfg := *c

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = def.PurgeInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = def.Dialer
	}
	if cfg.Listen == nil {
		cfg.Listen = def.Listen
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}

	return &cfg
}
