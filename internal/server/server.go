package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stesla/telnetd/internal/telnet"
)

type Handler interface {
	ServeTelnet(ctx context.Context, conn telnet.Conn)
}

type HandlerFunc func(ctx context.Context, conn telnet.Conn)

func (f HandlerFunc) ServeTelnet(ctx context.Context, conn telnet.Conn) {
	f(ctx, conn)
}

// Server accepts TCP connections and serves each one on its own goroutine.
// Connections share nothing but the Config they are wrapped with.
type Server struct {
	Addr    string
	Handler Handler
	Config  telnet.Config
	Logger  zerolog.Logger

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.Addr)
	}
	return s.Serve(ctx, l)
}

// Serve accepts connections on l until ctx is done or accepting fails. When
// ctx is done every open connection is closed, and Serve returns once their
// handlers have finished.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.Logger.Info().Str("addr", l.Addr().String()).Msg("started")

	s.mu.Lock()
	s.closed = false
	s.mu.Unlock()

	defer s.wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		l.Close()
		s.closeAll()
	}()

	var delay time.Duration
	for {
		tcp, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if temporary(err) {
				delay = backoff(delay)
				s.Logger.Error().Err(err).Dur("retry", delay).Msg("error accepting connection")
				time.Sleep(delay)
				continue
			}
			s.Logger.Error().Err(err).Msg("error accepting connection")
			return errors.Wrap(err, "accept")
		}
		delay = 0

		if !s.track(tcp) {
			continue
		}
		s.wg.Add(1)
		go s.serveConn(ctx, tcp)
	}
}

func (s *Server) serveConn(ctx context.Context, tcp net.Conn) {
	defer s.wg.Done()
	defer s.untrack(tcp)

	logger := s.Logger.With().Str("peer", tcp.RemoteAddr().String()).Logger()
	cfg := s.Config
	cfg.Logger = &logger
	conn := telnet.Wrap(ctx, tcp, cfg)
	defer conn.Close()

	logger.Debug().Msg("connected")
	defer logger.Debug().Msg("disconnected")
	if s.Handler != nil {
		s.Handler.ServeTelnet(ctx, conn)
	}
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		c.Close()
		return false
	}
	if s.conns == nil {
		s.conns = map[net.Conn]struct{}{}
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
}

// temporary reports whether an accept error is worth retrying: a timeout,
// or an error the net package marks as temporary, such as running out of
// file descriptors.
func temporary(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var te interface{ Temporary() bool }
	return errors.As(err, &te) && te.Temporary()
}

func backoff(d time.Duration) time.Duration {
	const maxDelay = time.Second
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > maxDelay {
		d = maxDelay
	}
	return d
}
