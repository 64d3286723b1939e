package types

import "errors"

// ErrShortPayload is panicked by Reader when a fixed-width field runs past
// the end of the payload; command decoders recover it at the frame
// boundary (see commands.Decode) and turn it into a regular error so a
// single malformed frame cannot take down the read loop.
var ErrShortPayload = errors.New("types: payload too short for field")

// ErrFieldTooLarge is returned when a length-prefixed byte string exceeds
// what its prefix width can encode.
var ErrFieldTooLarge = errors.New("types: field exceeds maximum length for its prefix width")
