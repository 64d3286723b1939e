// Package uart owns the serial port to the coprocessor: the byte-stream
// reframer, a single-writer transport-frame encoder, and connection-lost
// propagation. Grounded in the other example pack's ASH framing layer
// (zigbee.ASHLayer in other_examples' urmzd-homai pkg-zigbee-ash.go), which
// solves the same "byte-at-a-time state machine over a noisy serial line"
// problem for a sibling Zigbee coprocessor protocol.
package uart

import (
	"github.com/go-zigbee/znp/frame"
	"github.com/go-zigbee/znp/types"
)

// Reframer implements the streaming TransportFrame decoder: it is fed one
// byte (or a whole read's worth of bytes) at a time and emits every General
// frame it can fully resolve, resyncing to the next SOF on any framing
// error so the line is never poisoned by one bad frame or one bad
// checksum.
type Reframer struct {
	buf []byte
}

// NewReframer returns an empty Reframer.
func NewReframer() *Reframer {
	return &Reframer{}
}

// Feed appends b to the rolling buffer and returns every General frame that
// can now be fully decoded. Feeding a stream one byte at a time or in bulk
// yields the same sequence of frames.
func (r *Reframer) Feed(b []byte) []frame.General {
	r.buf = append(r.buf, b...)
	var out []frame.General
	for {
		f, ok := r.next()
		if !ok {
			break
		}
		out = append(out, f)
	}
	return out
}

// next applies one pass of the six-step resync algorithm (§4.1) and reports
// whether a frame was emitted. It must be called repeatedly until it
// reports false, since resyncing past noise or a bad-FCS frame can unblock
// further frames already buffered.
func (r *Reframer) next() (frame.General, bool) {
	for {
		// Step 1: drop bytes until the next SOF, or the buffer is empty.
		for len(r.buf) > 0 && r.buf[0] != frame.SOF {
			r.buf = r.buf[1:]
		}
		if len(r.buf) == 0 {
			return frame.General{}, false
		}

		// Step 2: need at least SOF, len, header(2), fcs.
		if len(r.buf) < 5 {
			return frame.General{}, false
		}

		// Step 3: validate the declared length; treat an oversize value
		// as noise and resync past this SOF.
		length := int(r.buf[1])
		if length > frame.MaxPayload {
			r.buf = r.buf[1:]
			continue
		}

		// Step 4: wait for the full frame.
		total := 5 + length
		if len(r.buf) < total {
			return frame.General{}, false
		}

		// Step 5: verify the FCS over len‖header‖payload.
		want := frame.FCS(r.buf[1 : 3+length])
		got := r.buf[3+length]
		if want != got {
			r.buf = r.buf[1:]
			continue
		}

		// Step 6: emit and advance past the frame.
		header := types.CommandHeader(r.buf[2]) | types.CommandHeader(r.buf[3])<<8
		payload := make([]byte, length)
		copy(payload, r.buf[4:4+length])
		r.buf = r.buf[total:]

		return frame.General{Header: header, Payload: payload}, true
	}
}
