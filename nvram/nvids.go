// Package nvram layers the read/write/resize/table protocol of §4.5 on top
// of the dispatcher's legacy OSAL surface and the extended (sys_id,
// item_id, sub_id) surface, grounded directly on zigpy_znp's nvram.py.
package nvram

// ID is a legacy 16-bit OSAL NV item identifier.
type ID uint16

// Legacy OSAL NVIDs actually exercised by the controller and security
// store (zigpy_znp/types/nvids.py NwkNvIds, trimmed to what this core
// touches).
const (
	IDExtAddr        ID = 0x0001
	IDBootCounter    ID = 0x0002
	IDStartupOption  ID = 0x0003
	IDStartDelay     ID = 0x0004
	IDNIB            ID = 0x0021
	IDDeviceListOld  ID = 0x0022
	IDAddrMgr        ID = 0x0023
	IDPollRateOld16  ID = 0x0024
	IDPollRate       ID = 0x0035
	IDPrecfgKey      ID = 0x0062
	IDPrecfgKeysEn   ID = 0x0063
	IDUserDesc       ID = 0x0081
	IDNwkKey         ID = 0x0082
	IDPanID          ID = 0x0083
	IDChanList       ID = 0x0084
	IDLogicalType    ID = 0x0087
	IDZDODirectCB    ID = 0x008F
	IDTCLKSeed       ID = 0x0101
	IDTCLKJoinDev    ID = 0x0102
	IDHasConfigured3 ID = 0x0060
	IDHasConfigured1 ID = 0x0F00
	IDExtendedPANID  ID = 0x002D
	IDAPSLinkKeyTable ID = 0x004C
)

// legacyTCLKTableStart/End bound the deprecated per-device TC link-key
// table on pre-3.30 firmware; entries in this range are walked by the
// security store.
const (
	legacyTCLKTableStart ID = 0x0111
	legacyTCLKTableEnd   ID = 0x01FF
)

// LegacyTCLKTableStart/End and LegacyAPSLinkKeyDataStart/End and
// LegacyNwkSecMaterialStart/End are exported for the security package,
// which walks these ranges directly on pre-3.30 firmware.
const (
	LegacyTCLKTableStart = legacyTCLKTableStart
	LegacyTCLKTableEnd   = legacyTCLKTableEnd

	LegacyAPSLinkKeyDataStart ID = 0x0201
	LegacyAPSLinkKeyDataEnd   ID = 0x02FF

	LegacyNwkSecMaterialStart ID = 0x0075
	LegacyNwkSecMaterialEnd   ID = 0x0080
)

// lengthQuirks lists NVIDs whose reported length does not match the
// length actually returned by a read (§4.5: "A small set of NVIDs ...
// exhibit aliased lengths"). These bypass the resize/recreate check on
// both read and write.
var lengthQuirks = map[ID]bool{
	IDPollRateOld16: true,
}

// SysID selects which NV subsystem an extended (sys_id, item_id, sub_id)
// triplet belongs to. The controller only ever uses the Z-Stack subsystem.
type SysID uint8

const SysIDZStack SysID = 1

// ItemID is an extended-surface item identifier (zigpy_znp's OsalExNvIds).
type ItemID uint16

const (
	ItemAddrMgr           ItemID = 0x0001
	ItemBindingTable      ItemID = 0x0002
	ItemDeviceList        ItemID = 0x0003
	ItemTCLKTable         ItemID = 0x0004
	ItemTCLKICTable       ItemID = 0x0005
	ItemAPSKeyDataTable   ItemID = 0x0006
	ItemNwkSecMaterial    ItemID = 0x0007
	ItemLegacy            ItemID = 0x0000 // sub_id addresses a legacy NVID under SysIDZStack
)

// IsSecure reports whether id is one of the items Z-Stack may refuse to
// return over OSALNVRead, requiring the SAPI fallback (§4.5).
func IsSecure(id ID) bool {
	switch id {
	case 0x0069, 0x006B, 0x006A, 0x003A, 0x003B, IDPrecfgKey, IDTCLKSeed:
		return true
	}
	return id >= legacyTCLKTableStart && id <= legacyTCLKTableEnd
}
