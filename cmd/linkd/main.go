package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	link "github.com/Sherlock-Holo/steadylink"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		logrus.WithError(err).Error("linkd failed")
		cancel()
		os.Exit(1)
	}

	logrus.Info("Process exit")
}

// run owns every link it opens; all of them are closed before it returns.
func run(ctx context.Context, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return xerrors.Errorf("load config: %w", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("unknown log level %q", cfg.LogLevel)
	} else {
		logrus.SetLevel(level)
	}

	control, err := link.NewDatagramLink(cfg.RemoteAddress, cfg.RemotePort, cfg.UDPPort, nil)
	if err != nil {
		return xerrors.Errorf("open control link: %w", err)
	}
	defer control.Close()

	control.OnEvent(func(e link.Event) {
		switch e.Kind {
		case link.EventDataReceived:
			drain(control)
		case link.EventErrorChanged:
			if e.Err != nil {
				logrus.WithError(e.Err).Warn("control link error")
			}
		}
	})

	logrus.WithField("local", control.LocalAddr()).Info("control link started")

	if cfg.ListenPort > 0 {
		acceptor := link.NewAcceptor(cfg.ListenPort, nil)
		defer acceptor.Close()

		acceptor.OnEvent(func(e link.Event) {
			switch e.Kind {
			case link.EventClientConnected:
				logrus.WithField("client", e.Client.String()).Info("client connected")
			case link.EventClientPurged:
				logrus.WithField("client", e.Client.String()).Info("client purged")
			}
		})

		if err := acceptor.Start(); err != nil {
			return xerrors.Errorf("start acceptor: %w", err)
		}
	}

	if cfg.UpstreamAddress != "" {
		upstream := link.NewStreamLink(cfg.UpstreamAddress, cfg.UpstreamPort, nil)
		defer upstream.Close()

		upstream.OnEvent(func(e link.Event) {
			switch e.Kind {
			case link.EventConnectedChanged:
				logrus.WithField("connected", e.Connected).Info("upstream state changed")
			case link.EventDataReceived:
				drain(upstream)
			}
		})
	}

	<-ctx.Done()

	return nil
}

// drain answers PING commands and logs everything else received on l.
func drain(l link.Link) {
	for {
		msg, err := l.GetMessage()
		if err != nil || msg == nil {
			return
		}

		for _, cmd := range commands(msg) {
			logrus.WithField("remote", l.RemoteAddr()).Infof("incoming message: %s", cmd)

			if cmd == "PING" {
				l.SendMessage([]byte("PONG\r"))
			}
		}
	}
}

// commands splits a payload into upper-cased, carriage-return terminated
// commands; a trailing unterminated fragment is ignored.
func commands(msg []byte) []string {
	parts := strings.Split(strings.ToUpper(string(msg)), "\r")

	var cmds []string
	for _, p := range parts[:len(parts)-1] {
		if p = strings.TrimSpace(p); p != "" {
			cmds = append(cmds, p)
		}
	}

	return cmds
}
