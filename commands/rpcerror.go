package commands

import "github.com/go-zigbee/znp/types"

// RPCError.CommandNotRecognized is the AREQ the coprocessor sends back in
// place of an SRSP when it doesn't recognize a request (§4.4, §7).

// CommandNotRecognizedErrorCode enumerates the RPCError status byte.
type CommandNotRecognizedErrorCode uint8

const (
	ErrorCodeInvalidSubsystem CommandNotRecognizedErrorCode = 0x01
	ErrorCodeInvalidCommandID CommandNotRecognizedErrorCode = 0x02
	ErrorCodeInvalidParameter CommandNotRecognizedErrorCode = 0x03
	ErrorCodeInvalidLength    CommandNotRecognizedErrorCode = 0x04
)

func (c CommandNotRecognizedErrorCode) String() string {
	switch c {
	case ErrorCodeInvalidSubsystem:
		return "InvalidSubsystem"
	case ErrorCodeInvalidCommandID:
		return "InvalidCommandId"
	case ErrorCodeInvalidParameter:
		return "InvalidParameter"
	case ErrorCodeInvalidLength:
		return "InvalidLength"
	default:
		return types.UnknownName(uint64(c), 1)
	}
}

var commandNotRecognizedHeader = types.NewCommandHeader(types.AREQ, types.SubsystemRPCError, 0x00)

// CommandNotRecognized is the decoded RPCError.CommandNotRecognized
// callback: ErrorCode plus the header of the SREQ it refused.
type CommandNotRecognized struct {
	ErrorCode     CommandNotRecognizedErrorCode
	RequestHeader types.CommandHeader
}

func (c CommandNotRecognized) Header() types.CommandHeader { return commandNotRecognizedHeader }

func (c CommandNotRecognized) Encode() []byte {
	w := types.NewWriter(3)
	w.Uint8(uint8(c.ErrorCode))
	w.Uint16(uint16(c.RequestHeader))
	return w.Bytes()
}

// CommandNotRecognizedPattern matches a CommandNotRecognized callback by an
// optionally-bound RequestHeader, used by znp.ZNP.Request to watch for the
// coprocessor refusing the SREQ it just sent (§4.4).
type CommandNotRecognizedPattern struct {
	RequestHeader types.Maybe[types.CommandHeader]
}

func (p CommandNotRecognizedPattern) Matches(c CommandNotRecognized) bool {
	return types.MatchesEq(p.RequestHeader, c.RequestHeader)
}

func decodeCommandNotRecognized(header types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return CommandNotRecognized{
		ErrorCode:     CommandNotRecognizedErrorCode(r.Uint8()),
		RequestHeader: types.CommandHeader(r.Uint16()),
	}, nil
}

func init() {
	register(Def{
		Header:     commandNotRecognizedHeader,
		Name:       "RPCError.CommandNotRecognized",
		Decode:     decodeCommandNotRecognized,
		Generation: GenerationAny,
	})
}
