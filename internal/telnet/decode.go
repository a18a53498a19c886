package telnet

import (
	"bytes"

	"github.com/pkg/errors"
)

// DefaultMaxSubnegotiation bounds how many bytes a Decoder buffers while
// waiting for the IAC SE that ends a subnegotiation.
const DefaultMaxSubnegotiation = 64 * 1024

var ErrSubnegotiationTooLong = errors.New("telnet: subnegotiation too long")

// Decode decodes at most one frame from the front of buf and reports how many
// bytes of buf it used. A zero count means buf is empty or holds only the
// beginning of a sequence, and nothing was consumed.
//
// A data frame runs up to the next IAC that does not start an escaped IAC
// IAC pair, or to the end of buf.
func Decode(buf []byte) (Frame, int) {
	if len(buf) == 0 {
		return nil, 0
	}
	if buf[0] != IAC {
		return decodeData(buf)
	}
	if len(buf) < 2 {
		return nil, 0
	}
	switch cmd := buf[1]; {
	case cmd == IAC:
		return decodeData(buf)
	case cmd == SB:
		return decodeSubnegotiation(buf)
	case negotiationVerb(cmd):
		if len(buf) < 3 {
			return nil, 0
		}
		return Negotiation{Verb: cmd, Opt: buf[2]}, 3
	default:
		return Command(cmd), 2
	}
}

func decodeData(buf []byte) (Frame, int) {
	data := make(Data, 0, len(buf))
	i := 0
	for i < len(buf) {
		if buf[i] != IAC {
			j := bytes.IndexByte(buf[i:], IAC)
			if j < 0 {
				j = len(buf) - i
			}
			data = append(data, buf[i:i+j]...)
			i += j
			continue
		}
		if i+1 < len(buf) && buf[i+1] == IAC {
			data = append(data, IAC)
			i += 2
			continue
		}
		break
	}
	if len(data) == 0 {
		return nil, 0
	}
	return data, i
}

// decodeSubnegotiation expects buf to start with IAC SB. Inside the payload
// IAC IAC is a literal 0xff and IAC SE ends the frame; any other byte after
// an IAC is kept and the IAC dropped.
func decodeSubnegotiation(buf []byte) (Frame, int) {
	if len(buf) < 3 {
		return nil, 0
	}
	payload := make([]byte, 0, len(buf)-3)
	for i := 3; i < len(buf); i++ {
		if buf[i] != IAC {
			payload = append(payload, buf[i])
			continue
		}
		if i+1 == len(buf) {
			break
		}
		i++
		if buf[i] == SE {
			return Subnegotiation{Opt: buf[2], Data: payload}, i + 1
		}
		payload = append(payload, buf[i])
	}
	return nil, 0
}

// Decoder buffers input that has not yet formed a complete frame. The zero
// value is ready to use.
type Decoder struct {
	// MaxSubnegotiation caps the buffered length of an unterminated
	// subnegotiation. Zero means DefaultMaxSubnegotiation.
	MaxSubnegotiation int

	buf bytes.Buffer
}

// Write appends p to the input. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	return d.buf.Write(p)
}

// Next returns the next complete frame. ok is false when the buffered bytes
// do not yet hold one; they stay buffered for the next call.
func (d *Decoder) Next() (f Frame, ok bool, err error) {
	f, n := Decode(d.buf.Bytes())
	if n == 0 {
		if d.inSubnegotiation() && d.buf.Len() > d.maxSubnegotiation() {
			return nil, false, errors.Wrapf(ErrSubnegotiationTooLong, "%d bytes buffered", d.buf.Len())
		}
		return nil, false, nil
	}
	d.buf.Next(n)
	return f, true, nil
}

// Buffered returns the number of bytes waiting for the rest of a sequence.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// Finish empties the decoder at end of input and returns whatever partial
// sequence was still buffered, or nil.
func (d *Decoder) Finish() []byte {
	if d.buf.Len() == 0 {
		return nil
	}
	rest := bytes.Clone(d.buf.Bytes())
	d.buf.Reset()
	return rest
}

func (d *Decoder) Reset() {
	d.buf.Reset()
}

func (d *Decoder) inSubnegotiation() bool {
	b := d.buf.Bytes()
	return len(b) >= 2 && b[0] == IAC && b[1] == SB
}

func (d *Decoder) maxSubnegotiation() int {
	if d.MaxSubnegotiation > 0 {
		return d.MaxSubnegotiation
	}
	return DefaultMaxSubnegotiation
}
