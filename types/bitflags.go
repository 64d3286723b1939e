package types

import "strings"

// FlagName pairs one bit of a flag set with its display name, used by
// generated String() methods across commands and security (e.g.
// commands.Capabilities, security.AddrMgrUserType).
type FlagName struct {
	Bit  uint32
	Name string
}

// FormatFlags renders the set bits of v against names, in declaration
// order, falling back to a raw hex token for bits not in names, producing
// a short "<Tag...>" rendering suitable for String() methods.
func FormatFlags(tag string, v uint32, names []FlagName) string {
	var parts []string
	remaining := v
	for _, fn := range names {
		if v&fn.Bit == fn.Bit {
			parts = append(parts, fn.Name)
			remaining &^= fn.Bit
		}
	}
	if remaining != 0 {
		parts = append(parts, UnknownName(uint64(remaining), 4))
	}
	if len(parts) == 0 {
		return tag + "<none>"
	}
	return tag + "<" + strings.Join(parts, "|") + ">"
}
