package telnet

import (
	"maps"
	"sync"
)

// State is the negotiation state of one direction of an option.
type State int

const (
	NotNegotiated State = iota
	Enabled
	Disabled
	// PendingLocalRequest means we sent WILL or WONT and wait for the answer.
	PendingLocalRequest
	// PendingRemoteRequest means we sent DO or DONT and wait for the answer.
	PendingRemoteRequest
)

func (s State) String() string {
	switch s {
	case NotNegotiated:
		return "not-negotiated"
	case Enabled:
		return "enabled"
	case Disabled:
		return "disabled"
	case PendingLocalRequest:
		return "pending-local"
	case PendingRemoteRequest:
		return "pending-remote"
	}
	return "unknown"
}

// Support says whether we accept an option on our side (Us) and whether we
// let the peer enable it on theirs (Them).
type Support struct {
	Them bool
	Us   bool
}

// Policy maps option codes to what we support. Options that are absent are
// refused.
type Policy map[byte]Support

type OptionState interface {
	Allow(them, us bool) OptionState
	AllowThem(bool) OptionState
	AllowUs(bool) OptionState
	DisableBoth() error
	DisableThem() error
	DisableUs() error
	EnableBoth() error
	EnableThem() error
	EnableUs() error

	Enabled() (them, us bool)
	EnabledForThem() bool
	EnabledForUs() bool
	State() (them, us State)
	Option() byte
}

// OptionData is published whenever a received negotiation changes the state
// of an option.
type OptionData struct {
	OptionState
	ChangedThem bool
	ChangedUs   bool
}

// OptionMap holds the negotiation state of every option referenced on one
// connection. Entries are created on first use from the policy.
//
// The lock is held while a reply or request is written so that the order of
// state changes and the order on the wire agree.
type OptionMap struct {
	mu     sync.Mutex
	policy Policy
	m      map[byte]*optionState
	send   func(Frame) error
}

func NewOptionMap(policy Policy, send func(Frame) error) *OptionMap {
	return &OptionMap{
		policy: maps.Clone(policy),
		m:      map[byte]*optionState{},
		send:   send,
	}
}

func (m *OptionMap) Get(opt byte) OptionState {
	return option{opt: opt, m: m}
}

// Receive applies a negotiation sent by the peer and writes the reply, if
// one is due. changed reports whether either direction changed state.
func (m *OptionMap) Receive(n Negotiation) (data OptionData, changed bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.state(n.Opt)
	themBefore, usBefore := o.them, o.us
	if reply, ok := o.receive(n.Verb); ok {
		err = m.write(reply)
	}
	data = OptionData{
		OptionState: m.Get(n.Opt),
		ChangedThem: themBefore != o.them,
		ChangedUs:   usBefore != o.us,
	}
	return data, data.ChangedThem || data.ChangedUs, err
}

func (m *OptionMap) state(opt byte) *optionState {
	o, ok := m.m[opt]
	if !ok {
		support := m.policy[opt]
		o = &optionState{opt: opt, allowThem: support.Them, allowUs: support.Us}
		m.m[opt] = o
	}
	return o
}

func (m *OptionMap) request(opt byte, fn func(*optionState) (Negotiation, bool)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := fn(m.state(opt)); ok {
		return m.write(n)
	}
	return nil
}

func (m *OptionMap) write(n Negotiation) error {
	if m.send == nil {
		return nil
	}
	return m.send(n)
}

func (m *OptionMap) inspect(opt byte, fn func(*optionState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state(opt))
}

type option struct {
	opt byte
	m   *OptionMap
}

func (o option) Allow(them, us bool) OptionState {
	o.m.inspect(o.opt, func(s *optionState) {
		s.allowThem, s.allowUs = them, us
	})
	return o
}

func (o option) AllowThem(allow bool) OptionState {
	o.m.inspect(o.opt, func(s *optionState) { s.allowThem = allow })
	return o
}

func (o option) AllowUs(allow bool) OptionState {
	o.m.inspect(o.opt, func(s *optionState) { s.allowUs = allow })
	return o
}

func (o option) DisableBoth() error {
	if err := o.DisableThem(); err != nil {
		return err
	}
	return o.DisableUs()
}

func (o option) DisableThem() error {
	return o.m.request(o.opt, func(s *optionState) (Negotiation, bool) {
		return s.disable(&s.them, DONT)
	})
}

func (o option) DisableUs() error {
	return o.m.request(o.opt, func(s *optionState) (Negotiation, bool) {
		return s.disable(&s.us, WONT)
	})
}

func (o option) EnableBoth() error {
	if err := o.EnableThem(); err != nil {
		return err
	}
	return o.EnableUs()
}

func (o option) EnableThem() error {
	return o.m.request(o.opt, func(s *optionState) (Negotiation, bool) {
		return s.enable(&s.them, DO)
	})
}

func (o option) EnableUs() error {
	return o.m.request(o.opt, func(s *optionState) (Negotiation, bool) {
		return s.enable(&s.us, WILL)
	})
}

func (o option) Enabled() (them, us bool) {
	o.m.inspect(o.opt, func(s *optionState) {
		them, us = s.them == qYes, s.us == qYes
	})
	return
}

func (o option) EnabledForThem() bool { them, _ := o.Enabled(); return them }
func (o option) EnabledForUs() bool   { _, us := o.Enabled(); return us }

func (o option) State() (them, us State) {
	o.m.inspect(o.opt, func(s *optionState) {
		them, us = s.them.state(PendingRemoteRequest), s.us.state(PendingLocalRequest)
	})
	return
}

func (o option) Option() byte { return o.opt }

// qState is a direction's state in the RFC 1143 "Q method". qUnset is qNo
// before anything has been negotiated.
type qState int

const (
	qUnset qState = 0 + iota
	qNo
	qYes
	qWantNoEmpty
	qWantNoOpposite
	qWantYesEmpty
	qWantYesOpposite
)

func (q qState) state(pending State) State {
	switch q {
	case qUnset:
		return NotNegotiated
	case qNo:
		return Disabled
	case qYes:
		return Enabled
	}
	return pending
}

type optionState struct {
	opt       byte
	allowThem bool
	them      qState
	allowUs   bool
	us        qState
}

func (o *optionState) disable(state *qState, cmd byte) (Negotiation, bool) {
	switch *state {
	case qYes:
		*state = qWantNoEmpty
		return o.negotiation(cmd), true
	case qWantNoOpposite:
		*state = qWantNoEmpty
	case qWantYesEmpty:
		*state = qWantYesOpposite
	}
	return Negotiation{}, false
}

func (o *optionState) enable(state *qState, cmd byte) (Negotiation, bool) {
	switch *state {
	case qUnset, qNo:
		*state = qWantYesEmpty
		return o.negotiation(cmd), true
	case qWantNoEmpty:
		*state = qWantNoOpposite
	case qWantYesOpposite:
		*state = qWantYesEmpty
	}
	return Negotiation{}, false
}

// receive applies a WILL, WONT, DO or DONT from the peer and returns the
// reply to send, if any. Nothing is sent to confirm a state we are already
// in, and nothing is sent when the peer answers a request of ours. A refusal
// is sent once; repeats of a refused request are ignored.
func (o *optionState) receive(cmd byte) (Negotiation, bool) {
	var allow bool
	var state *qState
	var accept, reject byte
	switch cmd {
	case DO, DONT:
		allow, state, accept, reject = o.allowUs, &o.us, WILL, WONT
	case WILL, WONT:
		allow, state, accept, reject = o.allowThem, &o.them, DO, DONT
	default:
		return Negotiation{}, false
	}

	switch cmd {
	case DO, WILL:
		switch *state {
		case qUnset, qNo:
			if allow {
				*state = qYes
				return o.negotiation(accept), true
			}
			if *state == qNo {
				// already refused
				break
			}
			*state = qNo
			return o.negotiation(reject), true
		case qYes:
			// ignore
		case qWantNoEmpty:
			*state = qNo
		case qWantNoOpposite:
			*state = qYes
		case qWantYesEmpty:
			*state = qYes
		case qWantYesOpposite:
			*state = qWantNoEmpty
			return o.negotiation(reject), true
		}
	case DONT, WONT:
		switch *state {
		case qUnset, qNo:
			*state = qNo
		case qYes:
			*state = qNo
			return o.negotiation(reject), true
		case qWantNoEmpty:
			*state = qNo
		case qWantNoOpposite:
			*state = qWantYesEmpty
			return o.negotiation(accept), true
		case qWantYesEmpty, qWantYesOpposite:
			*state = qNo
		}
	}
	return Negotiation{}, false
}

func (o *optionState) negotiation(cmd byte) Negotiation {
	return Negotiation{Verb: cmd, Opt: o.opt}
}
