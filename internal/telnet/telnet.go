package telnet

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	oi "github.com/reiver/go-oi"
	"github.com/rs/zerolog"
	"github.com/stesla/telnetd/internal/event"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

const readBufferSize = 4096

type Conn interface {
	net.Conn
	event.Dispatcher

	Context() context.Context
	Logger() zerolog.Logger
	Option(opt byte) OptionState
	RegisterHandler(h Handler) (unregister func())
	// Send writes f as is. Negotiations sent this way bypass the option
	// state; use Option to negotiate.
	Send(f Frame) error
	SetReadEncoding(encoding.Encoding)
	SetWriteEncoding(encoding.Encoding)
	Charset() encoding.Encoding
}

// Config is applied to each wrapped connection. The zero value refuses every
// option and passes data bytes through untranslated.
type Config struct {
	Policy Policy
	// Charset is the character set used for data outside of binary mode.
	// Nil means no transcoding.
	Charset           encoding.Encoding
	MaxSubnegotiation int
	Logger            *zerolog.Logger
}

func Dial(ctx context.Context, address string, cfg Config) (Conn, error) {
	var d net.Dialer
	tcp, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	return Wrap(ctx, tcp, cfg), nil
}

func Wrap(ctx context.Context, c net.Conn, cfg Config) Conn {
	return wrap(ctx, c, cfg)
}

type conn struct {
	net.Conn
	event.Dispatcher

	ctx     context.Context
	logger  zerolog.Logger
	options *OptionMap
	decoder Decoder

	rbuf        []byte
	data        []byte
	cr          bool
	err         error
	reader      io.Reader
	// owned by the goroutine calling Read
	readEnc     encoding.Encoding
	readChanged bool

	wmu      sync.Mutex
	charset  encoding.Encoding
	writeEnc encoding.Encoding
}

func wrap(ctx context.Context, c net.Conn, cfg Config) *conn {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	if c != nil && c.RemoteAddr() != nil {
		logger = logger.With().Str("peer", c.RemoteAddr().String()).Logger()
	}
	charset := cfg.Charset
	if charset == nil {
		charset = encoding.Nop
	}
	cc := &conn{
		Conn:       c,
		Dispatcher: event.NewDispatcher(),
		ctx:        ctx,
		logger:     logger,
		decoder:    Decoder{MaxSubnegotiation: cfg.MaxSubnegotiation},
		rbuf:       make([]byte, readBufferSize),
		charset:    charset,
		readEnc:    charset,
		writeEnc:   charset,
	}
	cc.options = NewOptionMap(cfg.Policy, cc.Send)
	cc.reader = cc.newReader()
	return cc
}

func (c *conn) Context() context.Context { return c.ctx }
func (c *conn) Logger() zerolog.Logger   { return c.logger }

func (c *conn) Option(opt byte) OptionState {
	return c.options.Get(opt)
}

func (c *conn) RegisterHandler(h Handler) func() {
	h.Register(c)
	return h.Unregister
}

func (c *conn) Charset() encoding.Encoding { return c.charset }

// SetReadEncoding takes effect for data decoded after the frame currently
// being handled.
// It must be called from the goroutine that reads from the connection,
// which includes event listeners.
func (c *conn) SetReadEncoding(enc encoding.Encoding) {
	c.readEnc = enc
	c.readChanged = true
}

func (c *conn) SetWriteEncoding(enc encoding.Encoding) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.writeEnc = enc
}

var errReadEncoding = errors.New("telnet: read encoding changed")

func (c *conn) newReader() io.Reader {
	r := dataReader{c}
	if c.readEnc == nil || c.readEnc == encoding.Nop {
		return r
	}
	return transform.NewReader(r, c.readEnc.NewDecoder())
}

// Read returns decoded data. Negotiations, subnegotiations and commands are
// handled as they are reached, so a peer's options only make progress while
// someone is reading.
func (c *conn) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err = c.reader.Read(p)
		if err != errReadEncoding {
			return n, err
		}
		c.reader = c.newReader()
		if n > 0 {
			return n, nil
		}
	}
}

type dataReader struct{ c *conn }

func (r dataReader) Read(p []byte) (int, error) {
	return r.c.readData(p)
}

func (c *conn) readData(p []byte) (int, error) {
	for {
		if len(c.data) > 0 {
			n := copy(p, c.data)
			c.data = c.data[n:]
			return n, nil
		}
		if c.readChanged {
			c.readChanged = false
			return 0, errReadEncoding
		}

		f, ok, err := c.decoder.Next()
		if err != nil {
			return 0, c.fail(err)
		}
		if ok {
			if err := c.handleFrame(f); err != nil {
				return 0, c.fail(err)
			}
			continue
		}

		if c.err != nil {
			if c.err == io.EOF {
				if rest := c.decoder.Finish(); rest != nil {
					c.logger.Debug().Hex("bytes", rest).Msg("connection closed with truncated command")
				}
			}
			return 0, c.err
		}

		nr, err := c.Conn.Read(c.rbuf)
		c.decoder.Write(c.rbuf[:nr])
		if err != nil {
			c.err = err
		}
	}
}

func (c *conn) fail(err error) error {
	c.err = err
	c.logger.Error().Err(err).Msg("closing connection")
	c.Conn.Close()
	return err
}

func (c *conn) handleFrame(f Frame) error {
	switch t := f.(type) {
	case Data:
		c.appendData(t)
	case Negotiation:
		c.dispatch(EventNegotiation, t)
		data, changed, err := c.options.Receive(t)
		if err != nil {
			return errors.Wrapf(err, "reply to %v", t)
		}
		if changed {
			c.dispatch(EventOption, data)
		}
	case Subnegotiation:
		if them, us := c.Option(t.Opt).Enabled(); them || us {
			c.dispatch(EventSubnegotiation, t)
		} else {
			c.logger.Debug().Stringer("frame", t).Msg("discarding subnegotiation for disabled option")
		}
	case Command:
		c.dispatch(EventCommand, t)
	}
	return nil
}

func (c *conn) dispatch(name event.Name, data any) {
	if err := c.Dispatch(c.ctx, event.Event{Name: name, Data: data}); err != nil {
		c.logger.Warn().Err(err).Str("event", string(name)).Msg("event listener failed")
	}
}

// appendData applies NVT end of line rules unless the peer is sending in
// binary: CR LF is a newline, CR NUL is a carriage return, and a bare CR is
// dropped.
func (c *conn) appendData(p []byte) {
	if c.Option(TransmitBinary).EnabledForThem() {
		c.data = append(c.data, p...)
		return
	}
	for _, b := range p {
		if c.cr {
			c.cr = false
			switch b {
			case '\x00':
				c.data = append(c.data, '\r')
				continue
			case '\n':
				c.data = append(c.data, '\n')
				continue
			}
		}
		if b == '\r' {
			c.cr = true
			continue
		}
		c.data = append(c.data, b)
	}
}

// Write encodes p in the current write encoding, applies NVT end of line
// rules unless we are sending in binary, and escapes IAC. It ends with IAC
// GA unless we have agreed to suppress go-ahead.
func (c *conn) Write(p []byte) (n int, err error) {
	binary := c.Option(TransmitBinary).EnabledForUs()
	sga := c.Option(SuppressGoAhead).EnabledForUs()

	c.wmu.Lock()
	defer c.wmu.Unlock()

	src := p
	if c.writeEnc != nil && c.writeEnc != encoding.Nop {
		src, err = encoding.ReplaceUnsupported(c.writeEnc.NewEncoder()).Bytes(p)
		if err != nil {
			return 0, errors.Wrap(err, "encode")
		}
	}

	buf := make([]byte, 0, 2*len(src)+2)
	for _, b := range src {
		switch {
		case b == IAC:
			buf = append(buf, IAC, IAC)
		case b == '\n' && !binary:
			buf = append(buf, '\r', '\n')
		case b == '\r' && !binary:
			buf = append(buf, '\r', '\x00')
		default:
			buf = append(buf, b)
		}
	}
	if !sga {
		buf = append(buf, IAC, GA)
	}
	if _, err = c.writeRaw(buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *conn) Send(f Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.logger.Trace().Stringer("frame", f).Msg("send")
	if _, err := c.writeRaw(Encode(f)); err != nil {
		return errors.Wrapf(err, "send %v", f)
	}
	return nil
}

// writeRaw must be called with wmu held.
func (c *conn) writeRaw(p []byte) (int, error) {
	n, err := oi.LongWrite(c.Conn, p)
	return int(n), err
}
