package telnet

import "github.com/stesla/telnetd/internal/event"

// EventNegotiation carries every Negotiation received from the peer, before
// it is applied.
const EventNegotiation event.Name = "telnet.event.negotiation"

// EventOption carries an OptionData whenever a negotiation changed an option.
const EventOption event.Name = "telnet.event.option"

// EventSubnegotiation carries a Subnegotiation for an option that is enabled
// in at least one direction. Others are dropped.
const EventSubnegotiation event.Name = "telnet.event.subnegotiation"

// EventCommand carries any other Command (GA, NOP, AYT...). The connection
// takes no action on these.
const EventCommand event.Name = "telnet.event.command"

// Handler is a unit of option behaviour that attaches to a connection.
type Handler interface {
	Register(Conn)
	Unregister()
}
