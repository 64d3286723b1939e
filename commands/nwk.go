package commands

import "github.com/go-zigbee/znp/types"

// NWK subsystem: reserved by the MT protocol for direct NWK-layer access.
// The reference driver this module is grounded on (zigpy_znp) never issues
// an NWK.* command itself — every network-layer operation the core needs
// (route discovery, permit-join, network update) is reached through ZDO or
// APPConfig instead — so this file only carries the header helper for
// Subsystem completeness; nothing registers into Registry from here.

func nwkHeader(t types.CommandType, id uint8) types.CommandHeader {
	return types.NewCommandHeader(t, types.SubsystemNWK, id)
}
