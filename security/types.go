package security

import "github.com/go-zigbee/znp/types"

// AddrMgrUserType flags an address-manager slot's role (§3 GLOSSARY).
type AddrMgrUserType uint8

const (
	AddrMgrUserTypeDefault  AddrMgrUserType = 0x00
	AddrMgrUserTypeAssoc    AddrMgrUserType = 0x01
	AddrMgrUserTypeSecurity AddrMgrUserType = 0x02
	AddrMgrUserTypeBinding  AddrMgrUserType = 0x04
	AddrMgrUserTypePrivate1 AddrMgrUserType = 0x08
)

var addrMgrUserTypeNames = []types.FlagName{
	{Bit: uint32(AddrMgrUserTypeAssoc), Name: "Assoc"},
	{Bit: uint32(AddrMgrUserTypeSecurity), Name: "Security"},
	{Bit: uint32(AddrMgrUserTypeBinding), Name: "Binding"},
	{Bit: uint32(AddrMgrUserTypePrivate1), Name: "Private1"},
}

func (t AddrMgrUserType) String() string {
	return types.FormatFlags("AddrMgrUserType", uint32(t), addrMgrUserTypeNames)
}

// Has reports whether t includes flag.
func (t AddrMgrUserType) Has(flag AddrMgrUserType) bool { return t&flag == flag }

// emptyIEEE and broadcastIEEE mark unused/default address-manager slots.
var (
	emptyIEEE     = [8]byte{}
	broadcastIEEE = [8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
)

// AddrMgrEntry is one row of the coprocessor's address-manager table,
// mapping a 16-bit NWK address to a 64-bit IEEE address (§3 GLOSSARY).
type AddrMgrEntry struct {
	Type AddrMgrUserType
	NWK  uint16
	IEEE [8]byte
}

// EncodeAddrMgrEntry serializes e in its fixed 11-byte on-wire layout.
func EncodeAddrMgrEntry(e AddrMgrEntry) []byte {
	w := types.NewWriter(11)
	w.Uint8(uint8(e.Type))
	w.Uint16(e.NWK)
	w.FixedBytes(e.IEEE[:])
	return w.Bytes()
}

// DecodeAddrMgrEntry parses one AddrMgrEntry row.
func DecodeAddrMgrEntry(raw []byte) (AddrMgrEntry, error) {
	r := types.NewReader(raw)
	var e AddrMgrEntry
	e.Type = AddrMgrUserType(r.Uint8())
	e.NWK = r.Uint16()
	copy(e.IEEE[:], r.FixedBytes(8))
	return e, nil
}

// emptyAddrMgrEntry is the fill value written into unused address-manager
// table slots (§4.6 restore).
var emptyAddrMgrEntry = AddrMgrEntry{Type: AddrMgrUserTypeDefault, NWK: 0xFFFF, IEEE: broadcastIEEE}

// KeyAttributes marks a TCLK table row's verification state.
type KeyAttributes uint8

const (
	KeyAttributesProvisional        KeyAttributes = 0x00
	KeyAttributesUnverified         KeyAttributes = 0x01
	KeyAttributesVerified           KeyAttributes = 0x02
	KeyAttributesDistributedDefault KeyAttributes = 0xFC
)

// KeyType distinguishes the kind of link/network key a TCLK entry holds.
type KeyType uint8

const (
	KeyTypeNone      KeyType = 0
	KeyTypeNWK       KeyType = 1
	KeyTypeAppMaster KeyType = 2
	KeyTypeAppLink   KeyType = 3
	KeyTypeTCLink    KeyType = 4
)

// TCLKDevEntry is one row of the Trust Center Link Key table: a hashed
// per-device key, derived on demand from the TCLK seed and SeedShift
// rather than stored directly (§3 GLOSSARY, §4.6).
type TCLKDevEntry struct {
	TxFrameCounter uint32
	RxFrameCounter uint32
	IEEE           [8]byte
	KeyAttributes  KeyAttributes
	KeyType        KeyType
	SeedShift      uint8
}

// EncodeTCLKDevEntry serializes e in its fixed 19-byte on-wire layout.
func EncodeTCLKDevEntry(e TCLKDevEntry) []byte {
	w := types.NewWriter(19)
	w.Uint32(e.TxFrameCounter)
	w.Uint32(e.RxFrameCounter)
	w.FixedBytes(e.IEEE[:])
	w.Uint8(uint8(e.KeyAttributes))
	w.Uint8(uint8(e.KeyType))
	w.Uint8(e.SeedShift)
	return w.Bytes()
}

// DecodeTCLKDevEntry parses one TCLKDevEntry row.
func DecodeTCLKDevEntry(raw []byte) (TCLKDevEntry, error) {
	r := types.NewReader(raw)
	var e TCLKDevEntry
	e.TxFrameCounter = r.Uint32()
	e.RxFrameCounter = r.Uint32()
	copy(e.IEEE[:], r.FixedBytes(8))
	e.KeyAttributes = KeyAttributes(r.Uint8())
	e.KeyType = KeyType(r.Uint8())
	e.SeedShift = r.Uint8()
	return e, nil
}

// emptyTCLKDevEntry is the fill value for unused TCLK table rows.
var emptyTCLKDevEntry = TCLKDevEntry{KeyAttributes: KeyAttributesDistributedDefault, KeyType: KeyTypeNone}

// APSKeyDataTableEntry holds a raw (unhashed) APS link key plus its frame
// counters, for devices whose key cannot be expressed as a TCLK seed
// rotation (§4.6).
type APSKeyDataTableEntry struct {
	Key            [16]byte
	TxFrameCounter uint32
	RxFrameCounter uint32
}

// EncodeAPSKeyDataTableEntry serializes e in its fixed 24-byte layout.
func EncodeAPSKeyDataTableEntry(e APSKeyDataTableEntry) []byte {
	w := types.NewWriter(24)
	w.FixedBytes(e.Key[:])
	w.Uint32(e.TxFrameCounter)
	w.Uint32(e.RxFrameCounter)
	return w.Bytes()
}

// DecodeAPSKeyDataTableEntry parses one APSKeyDataTableEntry row.
func DecodeAPSKeyDataTableEntry(raw []byte) (APSKeyDataTableEntry, error) {
	r := types.NewReader(raw)
	var e APSKeyDataTableEntry
	copy(e.Key[:], r.FixedBytes(16))
	e.TxFrameCounter = r.Uint32()
	e.RxFrameCounter = r.Uint32()
	return e, nil
}

var emptyAPSKeyDataTableEntry = APSKeyDataTableEntry{}

// AuthenticationOption records how an APS link key table row was
// authenticated.
type AuthenticationOption uint8

const (
	AuthenticationNotAuthenticated AuthenticationOption = 0x00
	AuthenticationCBCK             AuthenticationOption = 0x01
	AuthenticationEA               AuthenticationOption = 0x02
)

// APSLinkKeyTableEntry points from an address-manager slot to its raw key
// in APSKeyDataTableEntry, for devices not covered by the hashed TCLK
// table (§3 GLOSSARY).
type APSLinkKeyTableEntry struct {
	AddressManagerIndex uint16
	LinkKeyNvID         uint16
	AuthenticationState AuthenticationOption
}

// EncodeAPSLinkKeyTableEntry serializes e in its fixed 5-byte layout.
func EncodeAPSLinkKeyTableEntry(e APSLinkKeyTableEntry) []byte {
	w := types.NewWriter(5)
	w.Uint16(e.AddressManagerIndex)
	w.Uint16(e.LinkKeyNvID)
	w.Uint8(uint8(e.AuthenticationState))
	return w.Bytes()
}

// DecodeAPSLinkKeyTableEntry parses one APSLinkKeyTableEntry row.
func DecodeAPSLinkKeyTableEntry(raw []byte) (APSLinkKeyTableEntry, error) {
	r := types.NewReader(raw)
	var e APSLinkKeyTableEntry
	e.AddressManagerIndex = r.Uint16()
	e.LinkKeyNvID = r.Uint16()
	e.AuthenticationState = AuthenticationOption(r.Uint8())
	return e, nil
}

// NwkSecMaterialDesc is a row of the network security-material table,
// from which the TC frame counter is recovered on 3.0/3.30+ firmware
// (§4.6).
type NwkSecMaterialDesc struct {
	FrameCounter    uint32
	ExtendedPANID   [8]byte
}

// EncodeNwkSecMaterialDesc serializes e in its fixed 12-byte layout.
func EncodeNwkSecMaterialDesc(e NwkSecMaterialDesc) []byte {
	w := types.NewWriter(12)
	w.Uint32(e.FrameCounter)
	w.FixedBytes(e.ExtendedPANID[:])
	return w.Bytes()
}

// DecodeNwkSecMaterialDesc parses one NwkSecMaterialDesc row.
func DecodeNwkSecMaterialDesc(raw []byte) (NwkSecMaterialDesc, error) {
	r := types.NewReader(raw)
	var e NwkSecMaterialDesc
	e.FrameCounter = r.Uint32()
	copy(e.ExtendedPANID[:], r.FixedBytes(8))
	return e, nil
}

var globalExtendedPANID = broadcastIEEE

// NetworkInfo is the coordinator's live network state, assembled from the
// NIB plus the active network key (§3 GLOSSARY).
type NetworkInfo struct {
	IEEE           [8]byte `json:"ieee"`
	NWK            uint16  `json:"nwk"`
	Channel        uint8   `json:"channel"`
	ChannelMask    uint32  `json:"channel_mask"`
	PANID          uint16  `json:"pan_id"`
	ExtendedPANID  [8]byte `json:"extended_pan_id"`
	NWKUpdateID    uint8   `json:"nwk_update_id"`
	SecurityLevel  uint8   `json:"security_level"`
	NetworkKey     [16]byte `json:"network_key"`
	NetworkKeySeq  uint8   `json:"network_key_seq"`
	TCFrameCounter uint32  `json:"tc_frame_counter"`
}

// Device is one stored end device or router entry assembled by Backup
// from the address manager and link-key tables (zigpy_znp's StoredDevice).
type Device struct {
	IEEE [8]byte `json:"ieee"`
	NWK  uint16  `json:"nwk"`

	HashedLinkKeyShift types.Maybe[uint8]    `json:"hashed_link_key_shift"`
	APSLinkKey         types.Maybe[[16]byte] `json:"aps_link_key"`

	TxCounter types.Maybe[uint32] `json:"tx_counter"`
	RxCounter types.Maybe[uint32] `json:"rx_counter"`
}
