package uart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-zigbee/znp/frame"
	"github.com/go-zigbee/znp/types"
)

func encodeFrame(t *testing.T, header types.CommandHeader, payload []byte) []byte {
	t.Helper()
	b, err := frame.Transport{General: frame.General{Header: header, Payload: payload}}.Encode()
	require.NoError(t, err)
	return b
}

// TestFeed_ByteAtATimeMatchesBulk is T1: feeding an encoded stream one byte
// at a time yields the same sequence of frames as feeding it all at once.
func TestFeed_ByteAtATimeMatchesBulk(t *testing.T) {
	stream := append(
		encodeFrame(t, 0x2101, nil),
		encodeFrame(t, 0x6402, []byte{0xAA, 0xBB, 0xCC})...,
	)

	bulk := NewReframer()
	bulkFrames := bulk.Feed(stream)

	streamed := NewReframer()
	var streamedFrames []frame.General
	for _, b := range stream {
		streamedFrames = append(streamedFrames, streamed.Feed([]byte{b})...)
	}

	assert.Equal(t, bulkFrames, streamedFrames)
	require.Len(t, streamedFrames, 2)
	assert.Equal(t, types.CommandHeader(0x2101), streamedFrames[0].Header)
	assert.Equal(t, types.CommandHeader(0x6402), streamedFrames[1].Header)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, streamedFrames[1].Payload)
}

// TestFeed_SkipsLeadingNoise is T4: garbage bytes preceding a valid frame
// (never matching SOF, or matching SOF but failing length/FCS validation)
// are dropped without losing the frame that follows.
func TestFeed_SkipsLeadingNoise(t *testing.T) {
	noise := []byte{0x00, 0xFF, 0x12, 0x34}
	stream := append(noise, encodeFrame(t, 0x2101, nil)...)

	r := NewReframer()
	frames := r.Feed(stream)

	require.Len(t, frames, 1)
	assert.Equal(t, types.CommandHeader(0x2101), frames[0].Header)
	assert.Empty(t, frames[0].Payload)
}

// TestFeed_ResyncsPastBadFCS is T5: a frame whose FCS byte is corrupted is
// discarded by resyncing one byte past its SOF, and frames following it in
// the same buffer are still recovered.
func TestFeed_ResyncsPastBadFCS(t *testing.T) {
	bad := encodeFrame(t, 0x2101, []byte{0x01, 0x02})
	bad[len(bad)-1] ^= 0xFF // corrupt the FCS byte

	good := encodeFrame(t, 0x6402, []byte{0x09})
	stream := append(bad, good...)

	r := NewReframer()
	frames := r.Feed(stream)

	require.Len(t, frames, 1)
	assert.Equal(t, types.CommandHeader(0x6402), frames[0].Header)
	assert.Equal(t, []byte{0x09}, frames[0].Payload)
}

// TestFeed_OversizeLengthIsTreatedAsNoise covers the length-validation half
// of T4/T5: a declared length beyond frame.MaxPayload can't be a real
// frame, so the reframer resyncs past its SOF byte instead of stalling.
func TestFeed_OversizeLengthIsTreatedAsNoise(t *testing.T) {
	bogus := []byte{frame.SOF, 0xFF, 0x01, 0x02, 0x00}
	good := encodeFrame(t, 0x2101, nil)
	stream := append(bogus, good...)

	r := NewReframer()
	frames := r.Feed(stream)

	require.Len(t, frames, 1)
	assert.Equal(t, types.CommandHeader(0x2101), frames[0].Header)
}

// TestFeed_WaitsForIncompleteFrame confirms a frame split across two Feed
// calls is only emitted once the trailing bytes arrive, exercising the
// same buffering path T1 depends on for byte-at-a-time delivery.
func TestFeed_WaitsForIncompleteFrame(t *testing.T) {
	full := encodeFrame(t, 0x2101, []byte{0x01, 0x02, 0x03})

	r := NewReframer()
	frames := r.Feed(full[:3])
	assert.Empty(t, frames)

	frames = r.Feed(full[3:])
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, frames[0].Payload)
}
