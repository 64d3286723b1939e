package types

import "fmt"

// CommandType is the 3-bit frame type field of a CommandHeader (§3).
type CommandType uint8

// The four MT frame types.
const (
	POLL CommandType = 0
	SREQ CommandType = 1
	AREQ CommandType = 2
	SRSP CommandType = 3
)

func (t CommandType) String() string {
	switch t {
	case POLL:
		return "POLL"
	case SREQ:
		return "SREQ"
	case AREQ:
		return "AREQ"
	case SRSP:
		return "SRSP"
	default:
		return UnknownName(uint64(t), 1)
	}
}

// Subsystem is the 5-bit subsystem field of a CommandHeader (§3).
type Subsystem uint8

// The MT subsystem identifiers.
const (
	SubsystemRPCError   Subsystem = 0
	SubsystemSYS        Subsystem = 1
	SubsystemMAC        Subsystem = 2
	SubsystemNWK        Subsystem = 3
	SubsystemAF         Subsystem = 4
	SubsystemZDO        Subsystem = 5
	SubsystemSAPI       Subsystem = 6
	SubsystemUTIL       Subsystem = 7
	SubsystemAPP        Subsystem = 9
	SubsystemUBL        Subsystem = 13
	SubsystemAPPConfig  Subsystem = 15
	SubsystemGP         Subsystem = 21
)

var subsystemNames = map[Subsystem]string{
	SubsystemRPCError:  "RPCError",
	SubsystemSYS:       "SYS",
	SubsystemMAC:       "MAC",
	SubsystemNWK:       "NWK",
	SubsystemAF:        "AF",
	SubsystemZDO:       "ZDO",
	SubsystemSAPI:      "SAPI",
	SubsystemUTIL:      "UTIL",
	SubsystemAPP:       "APP",
	SubsystemUBL:       "UBL",
	SubsystemAPPConfig: "APP_CONFIG",
	SubsystemGP:        "GP",
}

func (s Subsystem) String() string {
	if name, ok := subsystemNames[s]; ok {
		return name
	}
	return UnknownName(uint64(s), 1)
}

// CommandHeader is the 16-bit header that opens every General frame (§3).
// The low byte ("cmd0") holds [type:3][subsystem:5] and the high byte holds
// the 8-bit command id; the two bytes are transmitted cmd0 then id, so a
// CommandHeader's numeric value is id<<8 | type<<5 | subsystem.
type CommandHeader uint16

// srspBit is the bit toggled in the type field to turn an SREQ header into
// its SRSP header (§3: "H | 0x0040"): SREQ=0b001 and SRSP=0b011 differ by
// bit 1 of the type field, which sits at header bit 5+1=6 (0x0040).
const srspBit CommandHeader = 0x0040

// NewCommandHeader packs a (type, subsystem, id) triple.
func NewCommandHeader(t CommandType, s Subsystem, id uint8) CommandHeader {
	return CommandHeader(id)<<8 | CommandHeader(t)<<5 | CommandHeader(s)
}

// CommandType unpacks the 3-bit type field (cmd0 bits 5-7).
func (h CommandHeader) CommandType() CommandType {
	return CommandType((h >> 5) & 0x07)
}

// Subsystem unpacks the 5-bit subsystem field (cmd0 bits 0-4).
func (h CommandHeader) Subsystem() Subsystem {
	return Subsystem(h & 0x1f)
}

// CommandID unpacks the 8-bit command id field (the header's high byte).
func (h CommandHeader) CommandID() uint8 {
	return uint8(h >> 8)
}

// SRSPHeader returns the SRSP header that answers an SREQ header h (§3).
// Panics if h is not an SREQ header, since it is a programmer error to ask
// for the SRSP counterpart of anything else.
func (h CommandHeader) SRSPHeader() CommandHeader {
	if h.CommandType() != SREQ {
		panic(fmt.Sprintf("types: SRSPHeader called on non-SREQ header %v", h))
	}
	return h | srspBit
}

func (h CommandHeader) String() string {
	return fmt.Sprintf("%s(%s,0x%02X)", h.CommandType(), h.Subsystem(), h.CommandID())
}
