package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaybe_MatchesEq(t *testing.T) {
	assert.True(t, MatchesEq(None[uint8](), 42), "unbound matches anything")
	assert.True(t, MatchesEq(Some(uint8(42)), 42))
	assert.False(t, MatchesEq(Some(uint8(41)), 42))
}

func TestMaybe_JSONRoundTrip_Some(t *testing.T) {
	m := Some(uint16(0x1234))

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, "4660", string(b))

	var got Maybe[uint16]
	require.NoError(t, json.Unmarshal(b, &got))
	v, ok := got.Get()
	require.True(t, ok)
	assert.Equal(t, uint16(0x1234), v)
}

func TestMaybe_JSONRoundTrip_None(t *testing.T) {
	m := None[uint16]()

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	got := Some(uint16(9)) // pre-populated, to confirm null overwrites it
	require.NoError(t, json.Unmarshal(b, &got))
	assert.False(t, got.IsSet())
}

// TestCommandHeader_SRSPHeader confirms the SRSP bit toggle matches §3's
// "H | 0x0040" rule and leaves subsystem/command id untouched.
func TestCommandHeader_SRSPHeader(t *testing.T) {
	req := NewCommandHeader(SREQ, SubsystemSYS, 0x01)
	srsp := req.SRSPHeader()

	assert.Equal(t, SRSP, srsp.CommandType())
	assert.Equal(t, SubsystemSYS, srsp.Subsystem())
	assert.Equal(t, uint8(0x01), srsp.CommandID())
	assert.Equal(t, req|srspBit, srsp)
}

// TestCommandHeader_SRSPHeader_PanicsOnNonSREQ confirms the programmer-error
// guard: asking for the SRSP counterpart of a non-SREQ header panics rather
// than silently returning a bogus header.
func TestCommandHeader_SRSPHeader_PanicsOnNonSREQ(t *testing.T) {
	areq := NewCommandHeader(AREQ, SubsystemSYS, 0x80)
	assert.Panics(t, func() { areq.SRSPHeader() })
}
