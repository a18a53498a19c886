package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stesla/telnetd/internal/telnet"
)

const greeting = "Welcome to telnetd. Type quit to disconnect.\n"

// echoApp is the demo application: it offers the configured options and
// echoes every line it receives.
type echoApp struct {
	negotiate []telnet.Negotiation
}

func (a *echoApp) ServeTelnet(ctx context.Context, conn telnet.Conn) {
	s := newSession(conn, a.negotiate)
	defer s.Close()
	s.runForever(ctx)
}

type session struct {
	conn           telnet.Conn
	logger         zerolog.Logger
	negotiate      []telnet.Negotiation
	transmitBinary telnet.TransmitBinaryHandler
	unregister     []func()
}

func newSession(conn telnet.Conn, negotiate []telnet.Negotiation) *session {
	s := &session{
		conn:      conn,
		logger:    conn.Logger(),
		negotiate: negotiate,
	}
	s.unregister = append(s.unregister,
		s.conn.RegisterHandler(&LogHandler{Logger: s.logger}),
		s.conn.RegisterHandler(&s.transmitBinary),
	)
	return s
}

// unregisterHandlers runs on the goroutine that reads from conn, since
// handlers may change the read encoding.
func (s *session) unregisterHandlers() {
	for i := len(s.unregister) - 1; i >= 0; i-- {
		s.unregister[i]()
	}
	s.unregister = nil
}

func (s *session) Close() error {
	return s.conn.Close()
}

func (s *session) negotiateOptions() error {
	for _, n := range s.negotiate {
		opt := s.conn.Option(n.Opt)
		var err error
		switch n.Verb {
		case telnet.WILL:
			err = opt.EnableUs()
		case telnet.DO:
			err = opt.EnableThem()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *session) runForever(ctx context.Context) {
	defer s.unregisterHandlers()
	if err := s.negotiateOptions(); err != nil {
		s.logger.Error().Err(err).Msg("negotiate options")
		return
	}
	if _, err := fmt.Fprint(s.conn, greeting); err != nil {
		return
	}

	scanner := bufio.NewScanner(s.conn)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "quit" {
			fmt.Fprintln(s.conn, "bye")
			return
		}
		if _, err := fmt.Fprintln(s.conn, line); err != nil {
			s.logger.Debug().Err(err).Msg("write failed")
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug().Err(err).Msg("read failed")
	}
}
