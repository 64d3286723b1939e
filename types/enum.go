package types

import "fmt"

// UnknownName formats the fallback display name for an enum value outside
// its declared set, e.g. "unknown_0x2A". Every enum in this module is a
// plain named integer type, so the raw wire value always round-trips —
// only String() needs a fallback; Decode never rejects an unrecognized
// value (§6: "forward compatibility is maintained across firmware
// revisions").
func UnknownName(v uint64, width int) string {
	switch width {
	case 1:
		return fmt.Sprintf("unknown_0x%02X", v)
	case 2:
		return fmt.Sprintf("unknown_0x%04X", v)
	default:
		return fmt.Sprintf("unknown_0x%X", v)
	}
}
