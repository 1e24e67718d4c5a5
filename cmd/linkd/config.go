package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/xerrors"
)

// DefaultUDPPort is the control port used when none, or an invalid one, is configured.
const DefaultUDPPort = 16009

type Config struct {
	UDPPort       int    `mapstructure:"udp_port"`
	RemoteAddress string `mapstructure:"remote_address"`
	RemotePort    int    `mapstructure:"remote_port"`

	// ListenPort enables the TCP acceptor when > 0.
	ListenPort int `mapstructure:"listen_port"`

	// UpstreamAddress enables a stream link to UpstreamAddress:UpstreamPort.
	UpstreamAddress string `mapstructure:"upstream_address"`
	UpstreamPort    int    `mapstructure:"upstream_port"`

	LogLevel string `mapstructure:"log_level"`
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("linkd", pflag.ContinueOnError)

	fs.String("config", "", "config file (default ./linkd.yaml)")
	fs.Int("udp_port", DefaultUDPPort, "local UDP control port")
	fs.String("remote_address", "127.0.0.1", "UDP peer address")
	fs.Int("remote_port", DefaultUDPPort, "UDP peer port")
	fs.Int("listen_port", 0, "TCP port to accept clients on, 0 disables")
	fs.String("upstream_address", "", "TCP upstream to keep a link to, empty disables")
	fs.Int("upstream_port", 0, "TCP upstream port")
	fs.String("log_level", "info", "log level")

	return fs
}

// loadConfig reads flags, LINKD_* environment variables and the config file,
// in that order of precedence.
func loadConfig(args []string) (*Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, xerrors.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LINKD")
	v.AutomaticEnv()

	if file, _ := fs.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("linkd")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.BindPFlags(fs); err != nil {
		return nil, xerrors.Errorf("bind flags: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !xerrors.As(err, &notFound) {
			return nil, xerrors.Errorf("read config: %w", err)
		}
		logrus.Debug("config file not found, using defaults")
	} else {
		logrus.WithField("file", v.ConfigFileUsed()).Info("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, xerrors.Errorf("failed to parse config: %w", err)
	}

	cfg.UDPPort = controlPort(cfg.UDPPort)

	return &cfg, nil
}

// controlPort falls back to DefaultUDPPort for ports outside 1..65534.
func controlPort(port int) int {
	switch {
	case port >= 65535:
		logrus.WithField("port", port).Warnf("udp port is illegal, using %d", DefaultUDPPort)
		return DefaultUDPPort
	case port <= 0:
		logrus.WithField("port", port).Warnf("invalid udp port, using %d", DefaultUDPPort)
		return DefaultUDPPort
	case port != DefaultUDPPort:
		logrus.WithField("port", port).Info("using non-standard udp port")
	}

	return port
}
