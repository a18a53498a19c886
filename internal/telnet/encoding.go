package telnet

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/stesla/telnetd/internal/event"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// LookupCharset resolves an IANA character set name. The empty string and
// "binary" mean no transcoding and return nil.
func LookupCharset(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "binary":
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, errors.Wrapf(err, "charset %q", name)
	}
	if enc == nil {
		return nil, errors.Errorf("charset %q: not supported", name)
	}
	return enc, nil
}

// TransmitBinaryHandler accepts TRANSMIT-BINARY in both directions and stops
// transcoding data in whichever direction it is enabled.
type TransmitBinaryHandler struct {
	conn     Conn
	listener event.Listener
}

func (h *TransmitBinaryHandler) Register(c Conn) {
	h.conn = c
	c.Option(TransmitBinary).Allow(true, true)
	h.listener = c.ListenFunc(EventOption, h.Listen)
}

func (h *TransmitBinaryHandler) Unregister() {
	h.conn.RemoveListener(EventOption, h.listener)

	opt := h.conn.Option(TransmitBinary).Allow(false, false)
	if err := opt.DisableBoth(); err != nil {
		logger := h.conn.Logger()
		logger.Warn().Err(err).Msg("disable binary")
	}
	h.conn.SetReadEncoding(h.conn.Charset())
	h.conn.SetWriteEncoding(h.conn.Charset())
}

func (h *TransmitBinaryHandler) Listen(_ context.Context, ev event.Event) error {
	opt, ok := ev.Data.(OptionData)
	if !ok || opt.Option() != TransmitBinary {
		return nil
	}
	if opt.ChangedUs {
		if opt.EnabledForUs() {
			h.conn.SetWriteEncoding(encoding.Nop)
		} else {
			h.conn.SetWriteEncoding(h.conn.Charset())
		}
	}
	if opt.ChangedThem {
		if opt.EnabledForThem() {
			h.conn.SetReadEncoding(encoding.Nop)
		} else {
			h.conn.SetReadEncoding(h.conn.Charset())
		}
	}
	return nil
}
