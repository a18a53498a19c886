package telnet

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// RFC 885
	EOR = 239 + iota // ef
	// RFC 854
	SE   // f0
	NOP  // f1
	DM   // f2
	BRK  // f3
	IP   // f4
	AO   // f5
	AYT  // f6
	EC   // f7
	EL   // f8
	GA   // f9
	SB   // fa
	WILL // fb
	WONT // fc
	DO   // fd
	DONT // fe
	IAC  // ff
)

const (
	TransmitBinary  = 0  // RFC 856
	Echo            = 1  // RFC 857
	SuppressGoAhead = 3  // RFC 858
	Status          = 5  // RFC 859
	TimingMark      = 6  // RFC 860
	TerminalType    = 24 // RFC 1091
	EndOfRecord     = 25 // RFC 885
	NAWS            = 31 // RFC 1073
	TerminalSpeed   = 32 // RFC 1079
	Linemode        = 34 // RFC 1184
	NewEnviron      = 39 // RFC 1572
	Charset         = 42 // RFC 2066
)

var commandNames = map[byte]string{
	EOR:  "EOR",
	SE:   "SE",
	NOP:  "NOP",
	DM:   "DM",
	BRK:  "BRK",
	IP:   "IP",
	AO:   "AO",
	AYT:  "AYT",
	EC:   "EC",
	EL:   "EL",
	GA:   "GA",
	SB:   "SB",
	WILL: "WILL",
	WONT: "WONT",
	DO:   "DO",
	DONT: "DONT",
	IAC:  "IAC",
}

var optionNames = map[byte]string{
	TransmitBinary:  "TRANSMIT-BINARY",
	Echo:            "ECHO",
	SuppressGoAhead: "SUPPRESS-GO-AHEAD",
	Status:          "STATUS",
	TimingMark:      "TIMING-MARK",
	TerminalType:    "TERMINAL-TYPE",
	EndOfRecord:     "END-OF-RECORD",
	NAWS:            "NAWS",
	TerminalSpeed:   "TERMINAL-SPEED",
	Linemode:        "LINEMODE",
	NewEnviron:      "NEW-ENVIRON",
	Charset:         "CHARSET",
}

var ErrUnknownOption = errors.New("telnet: unknown option")

// CommandName returns the RFC mnemonic for a command byte, or its decimal
// value when it has none.
func CommandName(b byte) string {
	if name, ok := commandNames[b]; ok {
		return name
	}
	return strconv.Itoa(int(b))
}

// OptionName returns the RFC name for an option code, or its decimal value
// when the code is not in the table.
func OptionName(opt byte) string {
	if name, ok := optionNames[opt]; ok {
		return name
	}
	return strconv.Itoa(int(opt))
}

// ParseOption accepts an option name from the table (case insensitive, with
// either dashes or underscores) or a decimal option code.
func ParseOption(s string) (byte, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		return byte(n), nil
	}
	name := strings.ReplaceAll(strings.ToUpper(s), "_", "-")
	for opt, candidate := range optionNames {
		if candidate == name {
			return opt, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownOption, "%q", s)
}
