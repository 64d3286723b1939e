package zdo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-zigbee/znp/commands"
	"github.com/go-zigbee/znp/frame"
	"github.com/go-zigbee/znp/znp"
)

// fakeDispatcher lets each test script exactly the Request/RequestCallbackRsp
// behavior it needs without a real transport.
type fakeDispatcher struct {
	requestRsp    commands.Command
	requestErr    error
	callbackRsp   commands.Command
	callbackErr   error
	lastReq       commands.Command
}

func (d *fakeDispatcher) Request(_ context.Context, req commands.Command, _ znp.BoundPattern) (commands.Command, error) {
	d.lastReq = req
	return d.requestRsp, d.requestErr
}

func (d *fakeDispatcher) RequestCallbackRsp(_ context.Context, req commands.Command, _, _ znp.BoundPattern) (commands.Command, error) {
	d.lastReq = req
	return d.callbackRsp, d.callbackErr
}

// decodeStatusRsp decodes a StatusRsp for req's SRSP header through the
// real registry, since StatusRsp's header field is unexported and can't be
// set from outside package commands.
func decodeStatusRsp(t *testing.T, req commands.Command, status commands.Status) commands.Command {
	t.Helper()
	cmd, known, err := commands.Decode(frame.General{Header: req.Header().SRSPHeader(), Payload: []byte{byte(status)}})
	require.True(t, known)
	require.NoError(t, err)
	return cmd
}

// TestEnergyScan_RejectsZeroScanCount confirms EnergyScan validates
// scanCount before issuing any request.
func TestEnergyScan_RejectsZeroScanCount(t *testing.T) {
	d := &fakeDispatcher{}
	r := New(d, func(commands.IncomingMsg) { t.Fatal("unexpected emit") })

	_, err := r.EnergyScan(context.Background(), 0x0000, 0x07FFF800, 2, 0)
	assert.Error(t, err)
	assert.Nil(t, d.lastReq)
}

// TestEnergyScan_ReturnsScanResult covers the success path: a successful
// MgmtNWKUpdateInd's scanned-channel bitmap and energy readings are
// returned directly to the caller rather than synthesized as an incoming
// ZDO message.
func TestEnergyScan_ReturnsScanResult(t *testing.T) {
	d := &fakeDispatcher{
		callbackRsp: commands.MgmtNWKUpdateInd{
			Status:          commands.StatusSuccess,
			ScannedChannels: 0x07FFF800,
			EnergyValues:    []uint8{10, 20, 30},
		},
	}
	r := New(d, func(commands.IncomingMsg) { t.Fatal("energy scan result should not be emitted upstream") })

	got, err := r.EnergyScan(context.Background(), 0x0000, 0x07FFF800, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x07FFF800), got.ScannedChannels)
	assert.Equal(t, []uint8{10, 20, 30}, got.EnergyValues)

	req, ok := d.lastReq.(commands.MgmtNWKUpdateReq)
	require.True(t, ok)
	assert.Equal(t, uint8(3), req.ScanCount)
	assert.Equal(t, commands.AddrModeNWK, req.DstAddrMode)
}

// TestEnergyScan_ReturnsErrorOnNonSuccessStatus confirms a non-success
// MgmtNWKUpdateInd.Status is surfaced as an error rather than a zero-value
// result.
func TestEnergyScan_ReturnsErrorOnNonSuccessStatus(t *testing.T) {
	d := &fakeDispatcher{
		callbackRsp: commands.MgmtNWKUpdateInd{Status: commands.StatusFailure},
	}
	r := New(d, func(commands.IncomingMsg) { t.Fatal("unexpected emit") })

	_, err := r.EnergyScan(context.Background(), 0x0000, 0x07FFF800, 2, 3)
	assert.Error(t, err)
}

// TestBindReq_EmitsStatusOnlyResponse confirms BindReq synthesizes a
// Bind_rsp whose payload is exactly [tsn, status] and whose cluster/source
// address match §4.8's direct-acknowledgement shape.
func TestBindReq_EmitsStatusOnlyResponse(t *testing.T) {
	d := &fakeDispatcher{}
	d.requestRsp = decodeStatusRsp(t, commands.BindReq{}, commands.StatusSuccess)

	var emitted commands.IncomingMsg
	r := New(d, func(m commands.IncomingMsg) { emitted = m })

	err := r.BindReq(context.Background(), 0x2A, 0x1234,
		[8]byte{1, 2, 3, 4, 5, 6, 7, 8}, 1, 0x0006,
		commands.AddrModeNWK, [8]byte{8, 7, 6, 5, 4, 3, 2, 1}, 2)
	require.NoError(t, err)

	assert.Equal(t, ClusterBindRsp, emitted.ClusterID)
	assert.Equal(t, uint16(0x1234), emitted.SrcAddr)
	assert.Equal(t, []byte{0x2A, byte(commands.StatusSuccess)}, emitted.Data)
	assert.Equal(t, uint8(0x2A), emitted.TSN)

	req, ok := d.lastReq.(commands.BindReq)
	require.True(t, ok)
	assert.Equal(t, uint16(0x0006), req.ClusterID)
	assert.Equal(t, uint8(2), req.DstEndpoint)
}

// TestMgmtLeaveReq_EmitsStatusOnlyResponse mirrors TestBindReq for
// Mgmt_Leave_req, confirming the IEEE and options reach the MT request and
// the synthesized response carries the SRSP's status.
func TestMgmtLeaveReq_EmitsStatusOnlyResponse(t *testing.T) {
	d := &fakeDispatcher{}
	d.requestRsp = decodeStatusRsp(t, commands.MgmtLeaveReq{}, commands.StatusFailure)

	var emitted commands.IncomingMsg
	r := New(d, func(m commands.IncomingMsg) { emitted = m })

	ieee := [8]byte{9, 9, 9, 9, 9, 9, 9, 9}
	err := r.MgmtLeaveReq(context.Background(), 0x11, 0x5678, ieee, commands.LeaveOptionsRemoveChildren)
	require.NoError(t, err)

	assert.Equal(t, ClusterMgmtLeaveRsp, emitted.ClusterID)
	assert.Equal(t, uint16(0x5678), emitted.SrcAddr)
	assert.Equal(t, []byte{0x11, byte(commands.StatusFailure)}, emitted.Data)

	req, ok := d.lastReq.(commands.MgmtLeaveReq)
	require.True(t, ok)
	assert.Equal(t, ieee, req.IEEE)
	assert.Equal(t, commands.LeaveOptionsRemoveChildren, req.Options)
}

// TestNodeDescReq_EmitsSynthesizedResponse covers the callback-carried
// shape: the SRSP only acknowledges, and NodeDescInd's descriptor bytes are
// what actually reach the synthesized Node_Desc_rsp.
func TestNodeDescReq_EmitsSynthesizedResponse(t *testing.T) {
	d := &fakeDispatcher{
		callbackRsp: commands.NodeDescInd{
			SrcAddr:    0x4321,
			Status:     commands.StatusSuccess,
			NWKAddr:    0x4321,
			Descriptor: []byte{0xAA, 0xBB, 0xCC},
		},
	}
	var emitted commands.IncomingMsg
	r := New(d, func(m commands.IncomingMsg) { emitted = m })

	err := r.NodeDescReq(context.Background(), 0x05, 0x4321, 0x4321)
	require.NoError(t, err)

	assert.Equal(t, ClusterNodeDescRsp, emitted.ClusterID)
	assert.Equal(t, uint16(0x4321), emitted.SrcAddr)
	assert.Equal(t, uint8(0x05), emitted.TSN)
	assert.Equal(t, []byte{0x05, byte(commands.StatusSuccess), 0x21, 0x43, 0xAA, 0xBB, 0xCC}, emitted.Data)
}
