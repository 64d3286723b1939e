package nvram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-zigbee/znp/commands"
	"github.com/go-zigbee/znp/znp"
)

// scriptedCall is one request a scriptedDispatcher expects next, paired with
// the response (or error) Store should receive for it.
type scriptedCall struct {
	req commands.Command
	rsp commands.Command
	err error
}

// scriptedDispatcher is a fake dispatcher.Request that asserts Store issues
// exactly the scripted sequence of requests, in order.
type scriptedDispatcher struct {
	t     *testing.T
	calls []scriptedCall
	next  int
}

func (d *scriptedDispatcher) Request(_ context.Context, req commands.Command, _ znp.BoundPattern) (commands.Command, error) {
	d.t.Helper()
	if d.next >= len(d.calls) {
		d.t.Fatalf("unexpected request %#v: no more scripted calls", req)
	}
	call := d.calls[d.next]
	d.next++
	assert.Equal(d.t, call.req, req, "request #%d", d.next)
	return call.rsp, call.err
}

func (d *scriptedDispatcher) Send(commands.Command) error {
	d.t.Fatal("Send not expected in this test")
	return nil
}

func (d *scriptedDispatcher) WaitForResponses(...znp.BoundPattern) *znp.ResponseWaiter {
	d.t.Fatal("WaitForResponses not expected in this test")
	return nil
}

func (d *scriptedDispatcher) Capabilities() commands.Capabilities { return 0 }

func (d *scriptedDispatcher) requireExhausted() {
	d.t.Helper()
	assert.Equal(d.t, len(d.calls), d.next, "not every scripted call was made")
}

func writeExtRsp(status commands.NVStatus) commands.OSALNVWriteExtRsp {
	var rsp commands.OSALNVWriteExtRsp
	rsp.Status = status
	return rsp
}

// TestWrite_ResizesOnLengthMismatch exercises the exact delete/init/write
// sequence a resize issues when a stored legacy item's length changes:
// OSALNVLength, then OSALNVDelete(old length), OSALNVItemInit(new length,
// first chunk), then a single OSALNVWriteExt.
func TestWrite_ResizesOnLengthMismatch(t *testing.T) {
	d := &scriptedDispatcher{t: t, calls: []scriptedCall{
		{
			req: commands.OSALNVLengthReq{ID: uint16(IDStartupOption)},
			rsp: commands.OSALNVLengthRsp{Length: 1},
		},
		{
			req: commands.OSALNVDeleteReq{ID: uint16(IDStartupOption), ItemLen: 1},
			rsp: commands.OSALNVDeleteRsp{Status: commands.NVStatusSuccess},
		},
		{
			req: commands.OSALNVItemInitReq{ID: uint16(IDStartupOption), ItemLen: 2, InitData: []byte{0x01, 0x02}},
			rsp: commands.OSALNVItemInitRsp{Status: commands.NVStatusItemUninit},
		},
		{
			req: commands.OSALNVWriteExtReq{ID: uint16(IDStartupOption), Offset: 0, Value: []byte{0x01, 0x02}},
			rsp: writeExtRsp(commands.NVStatusSuccess),
		},
	}}

	s := New(d)
	err := s.Write(context.Background(), IDStartupOption, []byte{0x01, 0x02}, true)
	require.NoError(t, err)
	d.requireExhausted()
}

// TestWrite_SameLengthSkipsResize covers the other half of the round-trip
// property: when the new value's length equals what's already stored, no
// delete/init pair is issued, only the write.
func TestWrite_SameLengthSkipsResize(t *testing.T) {
	d := &scriptedDispatcher{t: t, calls: []scriptedCall{
		{
			req: commands.OSALNVLengthReq{ID: uint16(IDStartupOption)},
			rsp: commands.OSALNVLengthRsp{Length: 2},
		},
		{
			req: commands.OSALNVWriteExtReq{ID: uint16(IDStartupOption), Offset: 0, Value: []byte{0xAA, 0xBB}},
			rsp: writeExtRsp(commands.NVStatusSuccess),
		},
	}}

	s := New(d)
	err := s.Write(context.Background(), IDStartupOption, []byte{0xAA, 0xBB}, true)
	require.NoError(t, err)
	d.requireExhausted()
}

// TestWrite_ShrinkingValueResizes mirrors the resize test with the value
// getting shorter rather than longer, confirming resize triggers either way
// a mismatch goes.
func TestWrite_ShrinkingValueResizes(t *testing.T) {
	d := &scriptedDispatcher{t: t, calls: []scriptedCall{
		{
			req: commands.OSALNVLengthReq{ID: uint16(IDStartupOption)},
			rsp: commands.OSALNVLengthRsp{Length: 4},
		},
		{
			req: commands.OSALNVDeleteReq{ID: uint16(IDStartupOption), ItemLen: 4},
			rsp: commands.OSALNVDeleteRsp{Status: commands.NVStatusSuccess},
		},
		{
			req: commands.OSALNVItemInitReq{ID: uint16(IDStartupOption), ItemLen: 1, InitData: []byte{0x09}},
			rsp: commands.OSALNVItemInitRsp{Status: commands.NVStatusItemUninit},
		},
		{
			req: commands.OSALNVWriteExtReq{ID: uint16(IDStartupOption), Offset: 0, Value: []byte{0x09}},
			rsp: writeExtRsp(commands.NVStatusSuccess),
		},
	}}

	s := New(d)
	err := s.Write(context.Background(), IDStartupOption, []byte{0x09}, true)
	require.NoError(t, err)
	d.requireExhausted()
}

// TestWrite_MismatchWithoutCreateFails confirms a length mismatch is only
// ever resized when the caller opted in via create; otherwise Write must
// fail without touching the delete/init path at all.
func TestWrite_MismatchWithoutCreateFails(t *testing.T) {
	d := &scriptedDispatcher{t: t, calls: []scriptedCall{
		{
			req: commands.OSALNVLengthReq{ID: uint16(IDStartupOption)},
			rsp: commands.OSALNVLengthRsp{Length: 1},
		},
	}}

	s := New(d)
	err := s.Write(context.Background(), IDStartupOption, []byte{0x01, 0x02}, false)
	assert.Error(t, err)
	d.requireExhausted()
}

// TestWrite_ChunksLongValues confirms a value longer than a single MT frame
// is split into chunkSize-sized OSALNVWriteExt calls at increasing offsets.
func TestWrite_ChunksLongValues(t *testing.T) {
	value := make([]byte, chunkSize+10)
	for i := range value {
		value[i] = byte(i)
	}

	d := &scriptedDispatcher{t: t, calls: []scriptedCall{
		{
			req: commands.OSALNVLengthReq{ID: uint16(IDNwkKey)},
			rsp: commands.OSALNVLengthRsp{Length: uint8(len(value))},
		},
		{
			req: commands.OSALNVWriteExtReq{ID: uint16(IDNwkKey), Offset: 0, Value: value[:chunkSize]},
			rsp: writeExtRsp(commands.NVStatusSuccess),
		},
		{
			req: commands.OSALNVWriteExtReq{ID: uint16(IDNwkKey), Offset: chunkSize, Value: value[chunkSize:]},
			rsp: writeExtRsp(commands.NVStatusSuccess),
		},
	}}

	s := New(d)
	err := s.Write(context.Background(), IDNwkKey, value, true)
	require.NoError(t, err)
	d.requireExhausted()
}

func TestLength_AbsentItemReportsZero(t *testing.T) {
	d := &scriptedDispatcher{t: t, calls: []scriptedCall{
		{
			req: commands.OSALNVLengthReq{ID: uint16(IDTCLKSeed)},
			rsp: commands.OSALNVLengthRsp{Length: 0},
		},
	}}

	s := New(d)
	length, err := s.Length(context.Background(), IDTCLKSeed)
	require.NoError(t, err)
	assert.Zero(t, length)
	d.requireExhausted()
}

func TestDelete_AbsentItemReturnsFalseWithoutDeleting(t *testing.T) {
	d := &scriptedDispatcher{t: t, calls: []scriptedCall{
		{
			req: commands.OSALNVLengthReq{ID: uint16(IDTCLKSeed)},
			rsp: commands.OSALNVLengthRsp{Length: 0},
		},
	}}

	s := New(d)
	existed, err := s.Delete(context.Background(), IDTCLKSeed)
	require.NoError(t, err)
	assert.False(t, existed)
	d.requireExhausted()
}
