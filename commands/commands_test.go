package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-zigbee/znp/frame"
	"github.com/go-zigbee/znp/types"
)

// decodeRoundTrip encodes cmd, runs it back through the package Registry via
// Decode, and returns the result.
func decodeRoundTrip(t *testing.T, cmd Command) Command {
	t.Helper()
	got, known, err := Decode(frame.General{Header: cmd.Header(), Payload: cmd.Encode()})
	require.True(t, known, "header %v not registered", cmd.Header())
	require.NoError(t, err)
	return got
}

// TestDecode_PingRoundTrip is S1's decode half: PingRsp's Capabilities
// bitfield survives an encode/decode round trip through the registry.
func TestDecode_PingRoundTrip(t *testing.T) {
	rsp := PingRsp{Capabilities: CapabilitySYS | CapabilityZDO}
	assert.Equal(t, rsp, decodeRoundTrip(t, rsp))
}

// TestDecode_RegisterReq_EmptyClusterLists is T3's encode side: a command
// encodes correctly even when every optional/variable-length trailing field
// (here, both cluster lists) is empty rather than populated.
func TestDecode_RegisterReq_EmptyClusterLists(t *testing.T) {
	req := RegisterReq{Endpoint: 1, ProfileID: 0x0104, DeviceID: 5, DeviceVersion: 0, LatencyReq: 0}
	// RegisterReq has no registered SREQ decoder (only its SRSP is
	// registered), so this only exercises Encode; the SRSP round trip
	// below is what Decode covers.
	encoded := req.Encode()
	assert.Equal(t, uint8(0), encoded[7], "input cluster count")
	assert.Equal(t, uint8(0), encoded[8], "output cluster count")
}

// TestDecode_RegisterReq_PopulatedClusterLists is the other half of T3:
// the same command with its trailing variable-length fields populated
// encodes them in schema order right after the fixed-size prefix.
func TestDecode_RegisterReq_PopulatedClusterLists(t *testing.T) {
	req := RegisterReq{
		Endpoint: 1, ProfileID: 0x0104, DeviceID: 5,
		InputClusters:  []uint16{0x0000, 0x0001},
		OutputClusters: []uint16{0x0006},
	}
	encoded := req.Encode()
	assert.Equal(t, uint8(2), encoded[7], "input cluster count")
	assert.Equal(t, uint8(1), encoded[12], "output cluster count, after two 2-byte input clusters")
}

// TestDecode_StatusRspSharesShapeAcrossHeaders confirms StatusRsp decodes
// identically regardless of which subsystem's SRSP header selected it —
// the header itself is carried as instance state, not compile-time.
func TestDecode_StatusRspSharesShapeAcrossHeaders(t *testing.T) {
	afRsp := decodeRoundTrip(t, StatusRsp{header: afRegisterRspHeader, Status: StatusSuccess}).(StatusRsp)
	assert.Equal(t, afRegisterRspHeader, afRsp.Header())
	assert.Equal(t, StatusSuccess, afRsp.Status)

	srtgRsp := decodeRoundTrip(t, StatusRsp{header: afDataRequestSrcRtgRspHeader, Status: StatusFailure}).(StatusRsp)
	assert.Equal(t, afDataRequestSrcRtgRspHeader, srtgRsp.Header())
	assert.Equal(t, StatusFailure, srtgRsp.Status)
}

// TestDecode_UnknownHeaderReportsNotKnown confirms an unregistered header
// comes back as ok=false rather than an error, matching §4.4's "unknown
// frames are logged and skipped, never treated as a decode failure".
func TestDecode_UnknownHeaderReportsNotKnown(t *testing.T) {
	_, known, err := Decode(frame.General{Header: 0x7F7F, Payload: nil})
	assert.False(t, known)
	assert.NoError(t, err)
}

// TestDecode_ShortPayloadIsRecoveredAsError confirms a malformed frame that
// would otherwise panic a Reader surfaces as a plain error instead of
// crashing the decode path (§4.1, §7).
func TestDecode_ShortPayloadIsRecoveredAsError(t *testing.T) {
	_, known, err := Decode(frame.General{Header: PingRsp{}.Header(), Payload: nil})
	assert.True(t, known)
	assert.Error(t, err)
}

// TestDataConfirmPattern_WildcardsStatus confirms DataConfirmPattern
// matches regardless of Status, leaving only Endpoint/TSN as correlators.
func TestDataConfirmPattern_WildcardsStatus(t *testing.T) {
	p := DataConfirmPattern{Endpoint: types.Some(uint8(1)), TSN: types.Some(uint8(42))}
	assert.True(t, p.Matches(DataConfirm{Status: StatusSuccess, Endpoint: 1, TSN: 42}))
	assert.True(t, p.Matches(DataConfirm{Status: StatusFailure, Endpoint: 1, TSN: 42}))
	assert.False(t, p.Matches(DataConfirm{Status: StatusSuccess, Endpoint: 2, TSN: 42}))
}
