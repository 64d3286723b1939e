package frame

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-zigbee/znp/types"
)

// TestTransport_EncodeDecodeRoundTrip is T2: encoding a General frame and
// decoding its body back (minus the leading SOF) recovers the same header
// and payload, and the FCS this computes matches an independently computed
// XOR over the same bytes.
func TestTransport_EncodeDecodeRoundTrip(t *testing.T) {
	sf := Transport{General{Header: 0x6402, Payload: []byte{0x01, 0x02, 0x03, 0x04}}}

	encoded, err := sf.Encode()
	require.NoError(t, err)
	require.Equal(t, SOF, encoded[0])

	decoded, err := Decode(encoded[1:])
	require.NoError(t, err)
	assert.Equal(t, sf, decoded)

	var want byte
	for _, b := range encoded[1 : len(encoded)-1] {
		want ^= b
	}
	assert.Equal(t, want, encoded[len(encoded)-1])
}

// TestTransport_EncodeDecodeRoundTrip_EmptyPayload covers the zero-length
// payload edge of T2 (e.g. SYS.Ping.Req).
func TestTransport_EncodeDecodeRoundTrip_EmptyPayload(t *testing.T) {
	sf := Transport{General{Header: 0x0121}}

	encoded, err := sf.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{SOF, 0x00, 0x21, 0x01, 0x20}, encoded)

	decoded, err := Decode(encoded[1:])
	require.NoError(t, err)
	assert.Equal(t, types.CommandHeader(0x0121), decoded.Header)
	assert.Empty(t, decoded.Payload)
}

// TestTransport_Encode_RejectsOversizePayload confirms Encode refuses a
// payload beyond MaxPayload rather than silently truncating or wrapping.
func TestTransport_Encode_RejectsOversizePayload(t *testing.T) {
	sf := Transport{General{Header: 0x0121, Payload: make([]byte, MaxPayload+1)}}
	_, err := sf.Encode()
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

// TestDecode_RejectsBadFCS is the decode half of T5: a body whose trailing
// byte doesn't match the XOR over the preceding bytes is rejected rather
// than silently accepted.
func TestDecode_RejectsBadFCS(t *testing.T) {
	sf := Transport{General{Header: 0x6402, Payload: []byte{0xAA}}}
	encoded, err := sf.Encode()
	require.NoError(t, err)

	body := append([]byte(nil), encoded[1:]...)
	body[len(body)-1] ^= 0xFF

	_, err = Decode(body)
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bad FCS"))
}

// TestDecode_RejectsShortBody confirms a body too short to hold even an
// empty frame (len, header x2, fcs) is rejected rather than panicking.
func TestDecode_RejectsShortBody(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01})
	assert.Error(t, err)
}

// TestDecode_RejectsLengthMismatch confirms a declared length that doesn't
// match the body's actual size is rejected.
func TestDecode_RejectsLengthMismatch(t *testing.T) {
	_, err := Decode([]byte{0x02, 0x01, 0x21, 0xAA, 0xBB, 0xCC})
	assert.Error(t, err)
}

// TestFCS_XORIsSelfInverse confirms FCS is the plain running XOR the wire
// format assumes: XORing the same byte sequence twice cancels out.
func TestFCS_XORIsSelfInverse(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0xFF, 0x00}
	assert.Equal(t, byte(0), FCS(append(append([]byte(nil), b...), b...)))
	assert.Equal(t, byte(0), FCS(nil))
}
