package telnet

import "fmt"

// Frame is one unit of the decoded telnet stream: Data, Negotiation,
// Subnegotiation or Command.
type Frame interface {
	fmt.Stringer
	appendTo(buf []byte) []byte
}

// Data is literal user data with IAC escapes removed.
type Data []byte

// Negotiation is IAC followed by WILL, WONT, DO or DONT and an option code.
type Negotiation struct {
	Verb byte
	Opt  byte
}

// Subnegotiation is IAC SB <option> <payload> IAC SE, with the payload
// unescaped.
type Subnegotiation struct {
	Opt  byte
	Data []byte
}

// Command is any other two-byte IAC sequence (NOP, GA, DM, a stray SE...).
type Command byte

// Encode returns the wire representation of f.
func Encode(f Frame) []byte {
	return f.appendTo(nil)
}

func (d Data) appendTo(buf []byte) []byte {
	return appendEscaped(buf, d)
}

func (d Data) String() string {
	return fmt.Sprintf("%q", []byte(d))
}

func (n Negotiation) appendTo(buf []byte) []byte {
	return append(buf, IAC, n.Verb, n.Opt)
}

func (n Negotiation) String() string {
	return "IAC " + CommandName(n.Verb) + " " + OptionName(n.Opt)
}

func (s Subnegotiation) appendTo(buf []byte) []byte {
	buf = append(buf, IAC, SB, s.Opt)
	buf = appendEscaped(buf, s.Data)
	return append(buf, IAC, SE)
}

func (s Subnegotiation) String() string {
	return fmt.Sprintf("IAC SB %s %q IAC SE", OptionName(s.Opt), s.Data)
}

func (c Command) appendTo(buf []byte) []byte {
	return append(buf, IAC, byte(c))
}

func (c Command) String() string {
	return "IAC " + CommandName(byte(c))
}

func appendEscaped(buf, p []byte) []byte {
	for _, b := range p {
		if b == IAC {
			buf = append(buf, IAC, IAC)
		} else {
			buf = append(buf, b)
		}
	}
	return buf
}

// negotiationVerb reports whether b is WILL, WONT, DO or DONT.
func negotiationVerb(b byte) bool {
	switch b {
	case WILL, WONT, DO, DONT:
		return true
	}
	return false
}
