// Package security implements §4.6: TC link-key seed rotation/derivation,
// network backup/restore, and frame-counter bookkeeping, layered on top of
// nvram.Store. Grounded on zigpy_znp/znp/security.py (read in full) and the
// NIB/AddrMgrEntry/TCLKDevEntry/APSLinkKeyTableEntry struct layouts in
// zigpy_znp/types/structs.py.
package security

import (
	"fmt"

	"github.com/go-zigbee/znp/types"
)

// Alignment selects how NIB pads its multi-byte fields, since the
// coprocessor's C compiler lays the struct out differently depending on
// platform (§9 Design Notes: "Encode alignment as a codec parameter").
type Alignment uint8

const (
	// AlignmentPacked writes every field back-to-back with no padding
	// (CC253x-era firmware).
	AlignmentPacked Alignment = iota
	// AlignmentAligned inserts one padding byte before
	// TransactionPersistenceTime and one before NwkState; every other
	// field is laid out as under AlignmentPacked.
	AlignmentAligned
)

// NIB is the Network Information Base, the coprocessor's persisted
// network state, stored at the legacy NVID `nvram.IDNIB`.
type NIB struct {
	SequenceNum           uint8
	PassiveAckTimeout     uint8
	MaxBroadcastRetries   uint8
	MaxChildren           uint8
	MaxDepth              uint8
	MaxRouters            uint8
	BroadcastDeliveryTime uint8
	ReportConstantCost    uint8
	RouteDiscRetries      uint8
	SecureAllFrames       uint8
	SecurityLevel         uint8
	SymLink               uint8
	CapabilityFlags       uint8

	TransactionPersistenceTime uint16

	NwkProtocolVersion uint8
	RouteDiscoveryTime uint8
	RouteExpiryTime    uint8

	NwkDevAddress uint16

	NwkLogicalChannel uint8

	NwkCoordAddress    uint16
	NwkCoordExtAddress [8]byte
	NwkPanID           uint16

	NwkState    uint8 // max value 8; the high byte is always zero
	ChannelList uint32

	BeaconOrder      uint8
	SuperFrameOrder  uint8
	ScanDuration     uint8
	BattLifeExt      uint8

	AllocatedRouterAddresses    uint32
	AllocatedEndDeviceAddresses uint32

	NodeDepth uint8

	ExtendedPANID [8]byte

	NwkKeyLoaded bool

	NwkLinkStatusPeriod uint8
	NwkRouterAgeLimit   uint8
	NwkUseMultiCast     bool
	NwkIsConcentrator   bool

	NwkConcentratorDiscoveryTime uint8
	NwkConcentratorRadius        uint8
	NwkAllFresh                  uint8

	NwkManagerAddr         uint16
	NwkTotalTransmissions  uint16
	NwkUpdateID            uint8
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Encode serializes the NIB under the given alignment. Two zero-filled
// security key slots (`spare1`/`spare2`, each a 16-byte NwkKeyDesc-shaped
// block) and two spare bytes sit between NwkKeyLoaded and
// NwkLinkStatusPeriod on real firmware; they carry no information this
// core ever reads, so Encode always writes them as zero.
func (n NIB) Encode(align Alignment) []byte {
	w := types.NewWriter(128)
	w.Uint8(n.SequenceNum)
	w.Uint8(n.PassiveAckTimeout)
	w.Uint8(n.MaxBroadcastRetries)
	w.Uint8(n.MaxChildren)
	w.Uint8(n.MaxDepth)
	w.Uint8(n.MaxRouters)
	w.Uint8(0) // dummyNeighborTable
	w.Uint8(n.BroadcastDeliveryTime)
	w.Uint8(n.ReportConstantCost)
	w.Uint8(n.RouteDiscRetries)
	w.Uint8(0) // dummyRoutingTable
	w.Uint8(n.SecureAllFrames)
	w.Uint8(n.SecurityLevel)
	w.Uint8(n.SymLink)
	w.Uint8(n.CapabilityFlags)

	if align == AlignmentAligned {
		w.Uint8(0)
	}
	w.Uint16(n.TransactionPersistenceTime)

	w.Uint8(n.NwkProtocolVersion)
	w.Uint8(n.RouteDiscoveryTime)
	w.Uint8(n.RouteExpiryTime)

	w.Uint16(n.NwkDevAddress)
	w.Uint8(n.NwkLogicalChannel)
	w.Uint16(n.NwkCoordAddress)
	w.FixedBytes(n.NwkCoordExtAddress[:])
	w.Uint16(n.NwkPanID)

	if align == AlignmentAligned {
		w.Uint8(0)
	}
	w.Uint16(uint16(n.NwkState))
	w.Uint32(n.ChannelList)

	w.Uint8(n.BeaconOrder)
	w.Uint8(n.SuperFrameOrder)
	w.Uint8(n.ScanDuration)
	w.Uint8(n.BattLifeExt)

	w.Uint32(n.AllocatedRouterAddresses)
	w.Uint32(n.AllocatedEndDeviceAddresses)

	w.Uint8(n.NodeDepth)
	w.FixedBytes(n.ExtendedPANID[:])
	w.Uint8(boolByte(n.NwkKeyLoaded))

	w.FixedBytes(make([]byte, 32)) // spare1, spare2 (NwkKeyDesc x2)
	w.Uint8(0)                      // spare3
	w.Uint8(0)                      // spare4

	w.Uint8(n.NwkLinkStatusPeriod)
	w.Uint8(n.NwkRouterAgeLimit)
	w.Uint8(boolByte(n.NwkUseMultiCast))
	w.Uint8(boolByte(n.NwkIsConcentrator))
	w.Uint8(n.NwkConcentratorDiscoveryTime)
	w.Uint8(n.NwkConcentratorRadius)
	w.Uint8(n.NwkAllFresh)

	w.Uint16(n.NwkManagerAddr)
	w.Uint16(n.NwkTotalTransmissions)
	w.Uint8(n.NwkUpdateID)

	return w.Bytes()
}

// DecodeNIB parses a NIB under the given alignment. A length mismatch
// against what the coprocessor actually returns is the signal the
// controller's startup sequence uses to detect misaligned NVRAM on 3.30+
// firmware (§4.7 step 4).
func DecodeNIB(payload []byte, align Alignment) (NIB, error) {
	if want := len(NIB{}.Encode(align)); len(payload) != want {
		return NIB{}, fmt.Errorf("security: nib is %d bytes, want %d for this alignment", len(payload), want)
	}
	r := types.NewReader(payload)
	var n NIB
	n.SequenceNum = r.Uint8()
	n.PassiveAckTimeout = r.Uint8()
	n.MaxBroadcastRetries = r.Uint8()
	n.MaxChildren = r.Uint8()
	n.MaxDepth = r.Uint8()
	n.MaxRouters = r.Uint8()
	r.Uint8() // dummyNeighborTable
	n.BroadcastDeliveryTime = r.Uint8()
	n.ReportConstantCost = r.Uint8()
	n.RouteDiscRetries = r.Uint8()
	r.Uint8() // dummyRoutingTable
	n.SecureAllFrames = r.Uint8()
	n.SecurityLevel = r.Uint8()
	n.SymLink = r.Uint8()
	n.CapabilityFlags = r.Uint8()

	if align == AlignmentAligned {
		r.Uint8()
	}
	n.TransactionPersistenceTime = r.Uint16()

	n.NwkProtocolVersion = r.Uint8()
	n.RouteDiscoveryTime = r.Uint8()
	n.RouteExpiryTime = r.Uint8()

	n.NwkDevAddress = r.Uint16()
	n.NwkLogicalChannel = r.Uint8()
	n.NwkCoordAddress = r.Uint16()
	copy(n.NwkCoordExtAddress[:], r.FixedBytes(8))
	n.NwkPanID = r.Uint16()

	if align == AlignmentAligned {
		r.Uint8()
	}
	n.NwkState = uint8(r.Uint16())
	n.ChannelList = r.Uint32()

	n.BeaconOrder = r.Uint8()
	n.SuperFrameOrder = r.Uint8()
	n.ScanDuration = r.Uint8()
	n.BattLifeExt = r.Uint8()

	n.AllocatedRouterAddresses = r.Uint32()
	n.AllocatedEndDeviceAddresses = r.Uint32()

	n.NodeDepth = r.Uint8()
	copy(n.ExtendedPANID[:], r.FixedBytes(8))
	n.NwkKeyLoaded = r.Uint8() != 0

	r.FixedBytes(32) // spare1, spare2
	r.Uint8()        // spare3
	r.Uint8()        // spare4

	n.NwkLinkStatusPeriod = r.Uint8()
	n.NwkRouterAgeLimit = r.Uint8()
	n.NwkUseMultiCast = r.Uint8() != 0
	n.NwkIsConcentrator = r.Uint8() != 0
	n.NwkConcentratorDiscoveryTime = r.Uint8()
	n.NwkConcentratorRadius = r.Uint8()
	n.NwkAllFresh = r.Uint8()

	n.NwkManagerAddr = r.Uint16()
	n.NwkTotalTransmissions = r.Uint16()
	n.NwkUpdateID = r.Uint8()

	return n, nil
}
