package main

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stesla/telnetd/internal/event"
	"github.com/stesla/telnetd/internal/telnet"
)

func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), errors.Wrap(err, "log level")
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), errors.Errorf("unknown log format %q", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("app", "telnetd").Logger(), nil
}

var logEvents = []event.Name{
	telnet.EventNegotiation,
	telnet.EventOption,
	telnet.EventSubnegotiation,
	telnet.EventCommand,
}

// LogHandler traces the protocol events of one connection.
type LogHandler struct {
	conn      telnet.Conn
	listeners []event.Listener
	zerolog.Logger
}

func (h *LogHandler) Register(c telnet.Conn) {
	h.conn = c
	for _, name := range logEvents {
		h.listeners = append(h.listeners, c.ListenFunc(name, h.Listen))
	}
}

func (h *LogHandler) Unregister() {
	for i, name := range logEvents {
		h.conn.RemoveListener(name, h.listeners[i])
	}
	h.listeners = nil
}

func (h *LogHandler) Listen(_ context.Context, ev event.Event) error {
	log := h.Trace().Str("event", string(ev.Name))
	switch t := ev.Data.(type) {
	case telnet.OptionData:
		them, us := t.State()
		log.Str("option", telnet.OptionName(t.Option())).
			Bool("changedThem", t.ChangedThem).
			Bool("changedUs", t.ChangedUs).
			Stringer("them", them).
			Stringer("us", us)
	case telnet.Subnegotiation:
		log.Str("option", telnet.OptionName(t.Opt)).Hex("data", t.Data)
	case telnet.Frame:
		log.Stringer("frame", t)
	default:
		log.Interface("data", t)
	}
	log.Send()
	return nil
}
