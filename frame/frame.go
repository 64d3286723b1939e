// Package frame implements the MT wire framing described in spec §3/§4.1:
// a General frame (header + payload) carried inside a Transport frame
// (SOF, length, header, payload, XOR checksum).
package frame

import (
	"errors"
	"fmt"

	"github.com/go-zigbee/znp/types"
)

// SOF is the start-of-frame byte that opens every Transport frame.
const SOF byte = 0xFE

// MaxPayload is the largest payload a single General frame can carry.
const MaxPayload = 250

// ErrPayloadTooLarge is returned by Transport.Encode when the payload
// exceeds MaxPayload.
var ErrPayloadTooLarge = errors.New("frame: payload exceeds 250 bytes")

// General is a decoded (header, payload) pair — the unit the command
// registry operates on (§3: GeneralFrame).
type General struct {
	Header  types.CommandHeader
	Payload []byte
}

// Transport is the on-the-wire encoding of a General frame: SOF, length,
// header, payload, FCS (§3: TransportFrame).
type Transport struct {
	General
}

// Encode serializes sf as 0xFE ‖ len ‖ header_le ‖ payload ‖ fcs.
func (sf Transport) Encode() ([]byte, error) {
	if len(sf.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: got %d", ErrPayloadTooLarge, len(sf.Payload))
	}

	out := make([]byte, 0, 5+len(sf.Payload))
	out = append(out, SOF, byte(len(sf.Payload)))
	out = append(out, byte(sf.Header), byte(sf.Header>>8))
	out = append(out, sf.Payload...)
	out = append(out, fcs(out[1:]))
	return out, nil
}

// fcs computes the XOR frame check sequence over len ‖ header ‖ payload
// (i.e. everything between SOF and the FCS byte itself).
func fcs(b []byte) byte {
	return FCS(b)
}

// FCS computes the XOR checksum over b, exported so uart.Reframer can
// validate a candidate frame's trailing byte without re-parsing it through
// Decode.
func FCS(b []byte) byte {
	var v byte
	for _, c := range b {
		v ^= c
	}
	return v
}

// Decode parses a complete Transport frame body (everything after SOF, up
// to and including the FCS byte) and validates its checksum. It is used
// directly by tests exercising single frames; production inbound decoding
// goes through the streaming Reframer, which applies the same checksum
// rule.
func Decode(body []byte) (Transport, error) {
	if len(body) < 4 {
		return Transport{}, fmt.Errorf("frame: body too short: %d bytes", len(body))
	}
	length := int(body[0])
	if len(body) != 4+length {
		return Transport{}, fmt.Errorf("frame: declared length %d does not match body size %d", length, len(body)-4)
	}
	want := fcs(body[:3+length])
	got := body[3+length]
	if want != got {
		return Transport{}, fmt.Errorf("frame: bad FCS: want 0x%02X got 0x%02X", want, got)
	}
	header := types.CommandHeader(body[1]) | types.CommandHeader(body[2])<<8
	payload := make([]byte, length)
	copy(payload, body[3:3+length])
	return Transport{General{Header: header, Payload: payload}}, nil
}
