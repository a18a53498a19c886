package telnet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionStateReceive(t *testing.T) {
	var tests = []struct {
		b     byte
		start optionState
		end   optionState
		reply []byte
	}{
		{DO, optionState{allowUs: true, us: qUnset}, optionState{allowUs: true, us: qYes}, []byte{IAC, WILL}},
		{DO, optionState{allowUs: true, us: qNo}, optionState{allowUs: true, us: qYes}, []byte{IAC, WILL}},
		{DO, optionState{us: qUnset}, optionState{us: qNo}, []byte{IAC, WONT}},
		{DO, optionState{us: qNo}, optionState{us: qNo}, nil},
		{DO, optionState{us: qYes}, optionState{us: qYes}, nil},
		{DO, optionState{us: qWantNoEmpty}, optionState{us: qNo}, nil},
		{DO, optionState{us: qWantNoOpposite}, optionState{us: qYes}, nil},
		{DO, optionState{us: qWantYesEmpty}, optionState{us: qYes}, nil},
		{DO, optionState{us: qWantYesOpposite}, optionState{us: qWantNoEmpty}, []byte{IAC, WONT}},

		{DONT, optionState{us: qUnset}, optionState{us: qNo}, nil},
		{DONT, optionState{us: qNo}, optionState{us: qNo}, nil},
		{DONT, optionState{us: qYes}, optionState{us: qNo}, []byte{IAC, WONT}},
		{DONT, optionState{us: qWantNoEmpty}, optionState{us: qNo}, nil},
		{DONT, optionState{us: qWantNoOpposite}, optionState{us: qWantYesEmpty}, []byte{IAC, WILL}},
		{DONT, optionState{us: qWantYesEmpty}, optionState{us: qNo}, nil},
		{DONT, optionState{us: qWantYesOpposite}, optionState{us: qNo}, nil},

		{WILL, optionState{allowThem: true, them: qUnset}, optionState{allowThem: true, them: qYes}, []byte{IAC, DO}},
		{WILL, optionState{allowThem: true, them: qNo}, optionState{allowThem: true, them: qYes}, []byte{IAC, DO}},
		{WILL, optionState{them: qUnset}, optionState{them: qNo}, []byte{IAC, DONT}},
		{WILL, optionState{them: qNo}, optionState{them: qNo}, nil},
		{WILL, optionState{them: qYes}, optionState{them: qYes}, nil},
		{WILL, optionState{them: qWantNoEmpty}, optionState{them: qNo}, nil},
		{WILL, optionState{them: qWantNoOpposite}, optionState{them: qYes}, nil},
		{WILL, optionState{them: qWantYesEmpty}, optionState{them: qYes}, nil},
		{WILL, optionState{them: qWantYesOpposite}, optionState{them: qWantNoEmpty}, []byte{IAC, DONT}},

		{WONT, optionState{them: qUnset}, optionState{them: qNo}, nil},
		{WONT, optionState{them: qNo}, optionState{them: qNo}, nil},
		{WONT, optionState{them: qYes}, optionState{them: qNo}, []byte{IAC, DONT}},
		{WONT, optionState{them: qWantNoEmpty}, optionState{them: qNo}, nil},
		{WONT, optionState{them: qWantNoOpposite}, optionState{them: qWantYesEmpty}, []byte{IAC, DO}},
		{WONT, optionState{them: qWantYesEmpty}, optionState{them: qNo}, nil},
		{WONT, optionState{them: qWantYesOpposite}, optionState{them: qNo}, nil},

		{NOP, optionState{us: qYes, them: qNo}, optionState{us: qYes, them: qNo}, nil},
	}

	for i, test := range tests {
		state := test.start
		state.opt = Echo
		expected := test.end
		expected.opt = Echo
		reply, ok := state.receive(test.b)
		require.Equal(t, expected, state, i)
		if test.reply == nil {
			require.False(t, ok, i)
		} else {
			require.True(t, ok, i)
			require.Equal(t, append(test.reply, Echo), Encode(reply), i)
		}
	}
}

func TestOptionEnable(t *testing.T) {
	disableThem := func(o *optionState) (Negotiation, bool) { return o.disable(&o.them, DONT) }
	disableUs := func(o *optionState) (Negotiation, bool) { return o.disable(&o.us, WONT) }
	enableThem := func(o *optionState) (Negotiation, bool) { return o.enable(&o.them, DO) }
	enableUs := func(o *optionState) (Negotiation, bool) { return o.enable(&o.us, WILL) }
	var tests = []struct {
		fn    func(*optionState) (Negotiation, bool)
		start optionState
		end   optionState
		sent  []byte
	}{
		{disableThem, optionState{them: qUnset}, optionState{them: qUnset}, nil},
		{disableThem, optionState{them: qNo}, optionState{them: qNo}, nil},
		{disableThem, optionState{them: qYes}, optionState{them: qWantNoEmpty}, []byte{IAC, DONT}},
		{disableThem, optionState{them: qWantNoEmpty}, optionState{them: qWantNoEmpty}, nil},
		{disableThem, optionState{them: qWantNoOpposite}, optionState{them: qWantNoEmpty}, nil},
		{disableThem, optionState{them: qWantYesEmpty}, optionState{them: qWantYesOpposite}, nil},
		{disableThem, optionState{them: qWantYesOpposite}, optionState{them: qWantYesOpposite}, nil},

		{disableUs, optionState{us: qNo}, optionState{us: qNo}, nil},
		{disableUs, optionState{us: qYes}, optionState{us: qWantNoEmpty}, []byte{IAC, WONT}},
		{disableUs, optionState{us: qWantNoEmpty}, optionState{us: qWantNoEmpty}, nil},
		{disableUs, optionState{us: qWantNoOpposite}, optionState{us: qWantNoEmpty}, nil},
		{disableUs, optionState{us: qWantYesEmpty}, optionState{us: qWantYesOpposite}, nil},
		{disableUs, optionState{us: qWantYesOpposite}, optionState{us: qWantYesOpposite}, nil},

		{enableThem, optionState{them: qUnset}, optionState{them: qWantYesEmpty}, []byte{IAC, DO}},
		{enableThem, optionState{them: qNo}, optionState{them: qWantYesEmpty}, []byte{IAC, DO}},
		{enableThem, optionState{them: qYes}, optionState{them: qYes}, nil},
		{enableThem, optionState{them: qWantNoEmpty}, optionState{them: qWantNoOpposite}, nil},
		{enableThem, optionState{them: qWantNoOpposite}, optionState{them: qWantNoOpposite}, nil},
		{enableThem, optionState{them: qWantYesEmpty}, optionState{them: qWantYesEmpty}, nil},
		{enableThem, optionState{them: qWantYesOpposite}, optionState{them: qWantYesEmpty}, nil},

		{enableUs, optionState{us: qUnset}, optionState{us: qWantYesEmpty}, []byte{IAC, WILL}},
		{enableUs, optionState{us: qNo}, optionState{us: qWantYesEmpty}, []byte{IAC, WILL}},
		{enableUs, optionState{us: qYes}, optionState{us: qYes}, nil},
		{enableUs, optionState{us: qWantNoEmpty}, optionState{us: qWantNoOpposite}, nil},
		{enableUs, optionState{us: qWantNoOpposite}, optionState{us: qWantNoOpposite}, nil},
		{enableUs, optionState{us: qWantYesEmpty}, optionState{us: qWantYesEmpty}, nil},
		{enableUs, optionState{us: qWantYesOpposite}, optionState{us: qWantYesEmpty}, nil},
	}

	for i, test := range tests {
		actual := test.start
		actual.opt = Echo
		expected := test.end
		expected.opt = Echo
		n, ok := test.fn(&actual)
		require.Equal(t, expected, actual, i)
		if test.sent == nil {
			require.False(t, ok, i)
		} else {
			require.True(t, ok, i)
			require.Equal(t, append(test.sent, Echo), Encode(n), i)
		}
	}
}

func TestQStateMapping(t *testing.T) {
	var tests = []struct {
		q        qState
		pending  State
		expected State
	}{
		{qUnset, PendingLocalRequest, NotNegotiated},
		{qNo, PendingLocalRequest, Disabled},
		{qYes, PendingLocalRequest, Enabled},
		{qWantNoEmpty, PendingLocalRequest, PendingLocalRequest},
		{qWantNoOpposite, PendingRemoteRequest, PendingRemoteRequest},
		{qWantYesEmpty, PendingRemoteRequest, PendingRemoteRequest},
		{qWantYesOpposite, PendingLocalRequest, PendingLocalRequest},
	}
	for i, test := range tests {
		require.Equal(t, test.expected, test.q.state(test.pending), i)
	}
}

type sentFrames struct {
	frames []Frame
}

func (s *sentFrames) send(f Frame) error {
	s.frames = append(s.frames, f)
	return nil
}

func TestOptionMapReceive(t *testing.T) {
	var sent sentFrames
	m := NewOptionMap(Policy{Echo: {Us: true}}, sent.send)

	opt := m.Get(Echo)
	them, us := opt.State()
	require.Equal(t, NotNegotiated, them)
	require.Equal(t, NotNegotiated, us)

	data, changed, err := m.Receive(Negotiation{DO, Echo})
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, data.ChangedUs)
	require.False(t, data.ChangedThem)
	require.True(t, data.EnabledForUs())
	require.Equal(t, []Frame{Negotiation{WILL, Echo}}, sent.frames)

	// already enabled: no reply, no change
	_, changed, err = m.Receive(Negotiation{DO, Echo})
	require.NoError(t, err)
	require.False(t, changed)
	require.Len(t, sent.frames, 1)

	_, changed, err = m.Receive(Negotiation{DONT, Echo})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, []Frame{Negotiation{WILL, Echo}, Negotiation{WONT, Echo}}, sent.frames)
	_, us = opt.State()
	require.Equal(t, Disabled, us)
}

func TestOptionMapDefaultDeny(t *testing.T) {
	var sent sentFrames
	m := NewOptionMap(nil, sent.send)

	data, changed, err := m.Receive(Negotiation{WILL, Echo})
	require.NoError(t, err)
	require.True(t, changed)
	require.False(t, data.EnabledForThem())
	require.Equal(t, []Frame{Negotiation{DONT, Echo}}, sent.frames)
	require.Equal(t, []byte{IAC, DONT, Echo}, Encode(sent.frames[0]))

	them, _ := m.Get(Echo).State()
	require.Equal(t, Disabled, them)

	// WONT for an option that was never enabled needs no answer
	_, _, err = m.Receive(Negotiation{WONT, TerminalType})
	require.NoError(t, err)
	require.Len(t, sent.frames, 1)
	them, _ = m.Get(TerminalType).State()
	require.Equal(t, Disabled, them)
}

func TestOptionMapLocalRequests(t *testing.T) {
	var sent sentFrames
	m := NewOptionMap(nil, sent.send)
	opt := m.Get(SuppressGoAhead)

	require.NoError(t, opt.EnableBoth())
	require.Equal(t, []Frame{Negotiation{DO, SuppressGoAhead}, Negotiation{WILL, SuppressGoAhead}}, sent.frames)
	them, us := opt.State()
	require.Equal(t, PendingRemoteRequest, them)
	require.Equal(t, PendingLocalRequest, us)

	// the peer's acknowledgements complete the requests without replies
	_, _, err := m.Receive(Negotiation{WILL, SuppressGoAhead})
	require.NoError(t, err)
	_, _, err = m.Receive(Negotiation{DO, SuppressGoAhead})
	require.NoError(t, err)
	require.Len(t, sent.frames, 2)
	enabledThem, enabledUs := opt.Enabled()
	require.True(t, enabledThem)
	require.True(t, enabledUs)

	require.NoError(t, opt.DisableUs())
	require.Equal(t, Negotiation{WONT, SuppressGoAhead}, sent.frames[2])
	_, us = opt.State()
	require.Equal(t, PendingLocalRequest, us)
	_, _, err = m.Receive(Negotiation{DONT, SuppressGoAhead})
	require.NoError(t, err)
	require.Len(t, sent.frames, 3)
	require.False(t, opt.EnabledForUs())
}

func TestOptionMapAllowDuringConnection(t *testing.T) {
	var sent sentFrames
	m := NewOptionMap(Policy{}, sent.send)
	m.Get(NAWS).AllowThem(true)

	_, _, err := m.Receive(Negotiation{WILL, NAWS})
	require.NoError(t, err)
	require.Equal(t, []Frame{Negotiation{DO, NAWS}}, sent.frames)
	require.True(t, m.Get(NAWS).EnabledForThem())
}

func TestPolicyIsCopied(t *testing.T) {
	policy := Policy{Echo: {Us: true}}
	m := NewOptionMap(policy, nil)
	policy[Echo] = Support{}

	_, _, err := m.Receive(Negotiation{DO, Echo})
	require.NoError(t, err)
	require.True(t, m.Get(Echo).EnabledForUs())
}
