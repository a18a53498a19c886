package main

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/stesla/telnetd/internal/telnet"
)

type optionConfig struct {
	Name      string `toml:"name"`
	Us        bool   `toml:"us"`
	Them      bool   `toml:"them"`
	Negotiate bool   `toml:"negotiate"`
}

type config struct {
	Addr              string         `toml:"addr"`
	LogLevel          string         `toml:"log_level"`
	LogFormat         string         `toml:"log_format"`
	Charset           string         `toml:"charset"`
	MaxSubnegotiation int            `toml:"max_subnegotiation"`
	Options           []optionConfig `toml:"option"`
}

// defaultConfig leaves ECHO off: the demo echoes whole lines, so clients
// must keep echoing locally as the user types.
func defaultConfig() config {
	return config{
		Addr:              ":4001",
		LogLevel:          "info",
		LogFormat:         "console",
		MaxSubnegotiation: telnet.DefaultMaxSubnegotiation,
		Options: []optionConfig{
			{Name: "suppress-go-ahead", Us: true, Them: true, Negotiate: true},
			{Name: "naws", Them: true},
			{Name: "terminal-type", Them: true},
		},
	}
}

// loadConfigFile overlays the keys present in the TOML file at path onto cfg.
func loadConfigFile(path string, cfg *config) error {
	var raw config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return errors.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}
	if meta.IsDefined("charset") {
		cfg.Charset = strings.TrimSpace(raw.Charset)
	}
	if meta.IsDefined("max_subnegotiation") {
		if raw.MaxSubnegotiation <= 0 {
			return errors.Errorf("max_subnegotiation must be positive, got %d", raw.MaxSubnegotiation)
		}
		cfg.MaxSubnegotiation = raw.MaxSubnegotiation
	}
	if meta.IsDefined("option") {
		cfg.Options = raw.Options
	}
	return nil
}

// telnetConfig builds the per-connection configuration and the requests to
// make as soon as a client connects: WILL for options we support, DO for
// options we want the client to enable.
func (c config) telnetConfig() (telnet.Config, []telnet.Negotiation, error) {
	charset, err := telnet.LookupCharset(c.Charset)
	if err != nil {
		return telnet.Config{}, nil, err
	}

	policy := telnet.Policy{}
	var negotiate []telnet.Negotiation
	for _, o := range c.Options {
		opt, err := telnet.ParseOption(o.Name)
		if err != nil {
			return telnet.Config{}, nil, errors.Wrap(err, "option")
		}
		policy[opt] = telnet.Support{Us: o.Us, Them: o.Them}
		if o.Negotiate && o.Us {
			negotiate = append(negotiate, telnet.Negotiation{Verb: telnet.WILL, Opt: opt})
		}
		if o.Negotiate && o.Them {
			negotiate = append(negotiate, telnet.Negotiation{Verb: telnet.DO, Opt: opt})
		}
	}

	return telnet.Config{
		Policy:            policy,
		Charset:           charset,
		MaxSubnegotiation: c.MaxSubnegotiation,
	}, negotiate, nil
}
