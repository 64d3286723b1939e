package commands

import "github.com/go-zigbee/znp/types"

// ZDO subsystem: the MT-native ZDO commands the core rewrites (§4.8) plus
// route discovery and permit-join used directly by the controller (§4.7).

func zdoHeader(t types.CommandType, id uint8) types.CommandHeader {
	return types.NewCommandHeader(t, types.SubsystemZDO, id)
}

// --- NodeDescReq / NodeDescRsp (callback) --------------------------------

var (
	nodeDescReqHeader = zdoHeader(types.SREQ, 0x02)
	nodeDescRspHeader = nodeDescReqHeader.SRSPHeader()
	nodeDescIndHeader = zdoHeader(types.AREQ, 0x82)
)

// NodeDescReq asks dst to describe nwkAddrOfInterest's node descriptor.
type NodeDescReq struct {
	Dst               uint16
	NWKAddrOfInterest uint16
}

func (NodeDescReq) Header() types.CommandHeader { return nodeDescReqHeader }

func (r NodeDescReq) Encode() []byte {
	w := types.NewWriter(4)
	w.Uint16(r.Dst)
	w.Uint16(r.NWKAddrOfInterest)
	return w.Bytes()
}

// NodeDescInd is the AREQ callback carrying the actual node descriptor,
// synthesized upstream by zdo.Rewriter as a Node_Desc_rsp (§4.8).
type NodeDescInd struct {
	SrcAddr  uint16
	Status   Status
	NWKAddr  uint16
	Descriptor []byte
}

func (NodeDescInd) Header() types.CommandHeader { return nodeDescIndHeader }

func (c NodeDescInd) Encode() []byte {
	w := types.NewWriter(5 + len(c.Descriptor))
	w.Uint16(c.SrcAddr)
	w.Uint8(uint8(c.Status))
	w.Uint16(c.NWKAddr)
	w.FixedBytes(c.Descriptor)
	return w.Bytes()
}

// NodeDescIndPattern matches by the querying device's own SrcAddr, which
// equals the host's NWK address for requests the core itself issued.
type NodeDescIndPattern struct {
	SrcAddr types.Maybe[uint16]
	NWKAddr types.Maybe[uint16]
}

func (p NodeDescIndPattern) Matches(c NodeDescInd) bool {
	return types.MatchesEq(p.SrcAddr, c.SrcAddr) && types.MatchesEq(p.NWKAddr, c.NWKAddr)
}

func decodeNodeDescInd(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	ind := NodeDescInd{
		SrcAddr: r.Uint16(),
		Status:  Status(r.Uint8()),
		NWKAddr: r.Uint16(),
	}
	ind.Descriptor = r.Remaining()
	return ind, nil
}

// --- ActiveEpReq / ActiveEpRsp (callback) --------------------------------

var (
	activeEPReqHeader = zdoHeader(types.SREQ, 0x05)
	activeEPRspHeader = activeEPReqHeader.SRSPHeader()
	activeEPIndHeader = zdoHeader(types.AREQ, 0x85)
)

// ActiveEPReq asks dst for the active endpoint list of nwkAddrOfInterest.
type ActiveEPReq struct {
	Dst               uint16
	NWKAddrOfInterest uint16
}

func (ActiveEPReq) Header() types.CommandHeader { return activeEPReqHeader }

func (r ActiveEPReq) Encode() []byte {
	w := types.NewWriter(4)
	w.Uint16(r.Dst)
	w.Uint16(r.NWKAddrOfInterest)
	return w.Bytes()
}

// ActiveEPInd carries the active endpoint list (§4.8: Active_EP_req).
type ActiveEPInd struct {
	SrcAddr   uint16
	Status    Status
	NWKAddr   uint16
	Endpoints []uint8
}

func (ActiveEPInd) Header() types.CommandHeader { return activeEPIndHeader }

func (c ActiveEPInd) Encode() []byte {
	w := types.NewWriter(6 + len(c.Endpoints))
	w.Uint16(c.SrcAddr)
	w.Uint8(uint8(c.Status))
	w.Uint16(c.NWKAddr)
	_ = w.ShortBytes(c.Endpoints)
	return w.Bytes()
}

// ActiveEPIndPattern matches by SrcAddr.
type ActiveEPIndPattern struct {
	SrcAddr types.Maybe[uint16]
}

func (p ActiveEPIndPattern) Matches(c ActiveEPInd) bool {
	return types.MatchesEq(p.SrcAddr, c.SrcAddr)
}

func decodeActiveEPInd(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	ind := ActiveEPInd{
		SrcAddr: r.Uint16(),
		Status:  Status(r.Uint8()),
		NWKAddr: r.Uint16(),
	}
	eps := r.ShortBytes()
	ind.Endpoints = append([]uint8(nil), eps...)
	return ind, nil
}

// --- SimpleDescReq / SimpleDescRsp (callback) ----------------------------

var (
	simpleDescReqHeader = zdoHeader(types.SREQ, 0x04)
	simpleDescRspHeader = simpleDescReqHeader.SRSPHeader()
	simpleDescIndHeader = zdoHeader(types.AREQ, 0x84)
)

// SimpleDescReq asks dst for nwkAddrOfInterest's simple descriptor on
// endpoint.
type SimpleDescReq struct {
	Dst               uint16
	NWKAddrOfInterest uint16
	Endpoint          uint8
}

func (SimpleDescReq) Header() types.CommandHeader { return simpleDescReqHeader }

func (r SimpleDescReq) Encode() []byte {
	w := types.NewWriter(5)
	w.Uint16(r.Dst)
	w.Uint16(r.NWKAddrOfInterest)
	w.Uint8(r.Endpoint)
	return w.Bytes()
}

// SimpleDescInd carries the raw simple descriptor bytes (§4.8).
type SimpleDescInd struct {
	SrcAddr    uint16
	Status     Status
	NWKAddr    uint16
	Descriptor []byte
}

func (SimpleDescInd) Header() types.CommandHeader { return simpleDescIndHeader }

func (c SimpleDescInd) Encode() []byte {
	w := types.NewWriter(5 + len(c.Descriptor))
	w.Uint16(c.SrcAddr)
	w.Uint8(uint8(c.Status))
	w.Uint16(c.NWKAddr)
	w.FixedBytes(c.Descriptor)
	return w.Bytes()
}

type SimpleDescIndPattern struct {
	SrcAddr types.Maybe[uint16]
}

func (p SimpleDescIndPattern) Matches(c SimpleDescInd) bool {
	return types.MatchesEq(p.SrcAddr, c.SrcAddr)
}

func decodeSimpleDescInd(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	ind := SimpleDescInd{
		SrcAddr: r.Uint16(),
		Status:  Status(r.Uint8()),
		NWKAddr: r.Uint16(),
	}
	ind.Descriptor = r.Remaining()
	return ind, nil
}

// --- MgmtLeaveReq ---------------------------------------------------------

var mgmtLeaveReqHeader = zdoHeader(types.SREQ, 0x34)

// LeaveOptions controls whether children rejoin on a Mgmt_Leave_req.
type LeaveOptions uint8

const (
	LeaveOptionsNone          LeaveOptions = 0x00
	LeaveOptionsRemoveChildren LeaveOptions = 0x40
	LeaveOptionsRejoin        LeaveOptions = 0x80
)

// MgmtLeaveReq removes ieee from the network (§4.8: Mgmt_Leave_req).
type MgmtLeaveReq struct {
	Dst     uint16
	IEEE    [8]byte
	Options LeaveOptions
}

func (MgmtLeaveReq) Header() types.CommandHeader { return mgmtLeaveReqHeader }

func (r MgmtLeaveReq) Encode() []byte {
	w := types.NewWriter(11)
	w.Uint16(r.Dst)
	w.FixedBytes(r.IEEE[:])
	w.Uint8(uint8(r.Options))
	return w.Bytes()
}

// --- BindReq ---------------------------------------------------------------

var bindReqHeader = zdoHeader(types.SREQ, 0x21)

// BindReq installs a binding table entry on Dst (§4.8: Bind_req).
type BindReq struct {
	Dst       uint16
	SrcAddr   [8]byte
	SrcEndpoint uint8
	ClusterID uint16
	DstAddrMode AddrMode
	DstAddr   [8]byte
	DstEndpoint uint8
}

func (BindReq) Header() types.CommandHeader { return bindReqHeader }

func (r BindReq) Encode() []byte {
	w := types.NewWriter(23)
	w.Uint16(r.Dst)
	w.FixedBytes(r.SrcAddr[:])
	w.Uint8(r.SrcEndpoint)
	w.Uint16(r.ClusterID)
	w.Uint8(uint8(r.DstAddrMode))
	w.FixedBytes(r.DstAddr[:])
	w.Uint8(r.DstEndpoint)
	return w.Bytes()
}

// --- MgmtLqiReq / MgmtLqiRsp (callback) -----------------------------------

var (
	mgmtLqiReqHeader = zdoHeader(types.SREQ, 0x31)
	mgmtLqiIndHeader = zdoHeader(types.AREQ, 0xB1)
)

// MgmtLqiReq requests one page of dst's neighbor table (§4.8: Mgmt_Lqi_req).
type MgmtLqiReq struct {
	Dst        uint16
	StartIndex uint8
}

func (MgmtLqiReq) Header() types.CommandHeader { return mgmtLqiReqHeader }

func (r MgmtLqiReq) Encode() []byte {
	w := types.NewWriter(3)
	w.Uint16(r.Dst)
	w.Uint8(r.StartIndex)
	return w.Bytes()
}

// MgmtLqiInd carries the raw neighbor-table page (§4.8).
type MgmtLqiInd struct {
	SrcAddr uint16
	Status  Status
	Data    []byte
}

func (MgmtLqiInd) Header() types.CommandHeader { return mgmtLqiIndHeader }

func (c MgmtLqiInd) Encode() []byte {
	w := types.NewWriter(3 + len(c.Data))
	w.Uint16(c.SrcAddr)
	w.Uint8(uint8(c.Status))
	w.FixedBytes(c.Data)
	return w.Bytes()
}

type MgmtLqiIndPattern struct {
	SrcAddr types.Maybe[uint16]
}

func (p MgmtLqiIndPattern) Matches(c MgmtLqiInd) bool {
	return types.MatchesEq(p.SrcAddr, c.SrcAddr)
}

func decodeMgmtLqiInd(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	ind := MgmtLqiInd{SrcAddr: r.Uint16(), Status: Status(r.Uint8())}
	ind.Data = r.Remaining()
	return ind, nil
}

// --- MgmtRtgReq / MgmtRtgRsp (callback) -----------------------------------

var (
	mgmtRtgReqHeader = zdoHeader(types.SREQ, 0x32)
	mgmtRtgIndHeader = zdoHeader(types.AREQ, 0xB2)
)

// MgmtRtgReq requests one page of dst's routing table (§4.8: Mgmt_Rtg_req).
type MgmtRtgReq struct {
	Dst        uint16
	StartIndex uint8
}

func (MgmtRtgReq) Header() types.CommandHeader { return mgmtRtgReqHeader }

func (r MgmtRtgReq) Encode() []byte {
	w := types.NewWriter(3)
	w.Uint16(r.Dst)
	w.Uint8(r.StartIndex)
	return w.Bytes()
}

// MgmtRtgInd carries the raw routing-table page.
type MgmtRtgInd struct {
	SrcAddr uint16
	Status  Status
	Data    []byte
}

func (MgmtRtgInd) Header() types.CommandHeader { return mgmtRtgIndHeader }

func (c MgmtRtgInd) Encode() []byte {
	w := types.NewWriter(3 + len(c.Data))
	w.Uint16(c.SrcAddr)
	w.Uint8(uint8(c.Status))
	w.FixedBytes(c.Data)
	return w.Bytes()
}

type MgmtRtgIndPattern struct {
	SrcAddr types.Maybe[uint16]
}

func (p MgmtRtgIndPattern) Matches(c MgmtRtgInd) bool {
	return types.MatchesEq(p.SrcAddr, c.SrcAddr)
}

func decodeMgmtRtgInd(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	ind := MgmtRtgInd{SrcAddr: r.Uint16(), Status: Status(r.Uint8())}
	ind.Data = r.Remaining()
	return ind, nil
}

// --- MgmtPermitJoinReq -----------------------------------------------------

var (
	mgmtPermitJoinReqHeader = zdoHeader(types.SREQ, 0x36)
	mgmtPermitJoinRspHeader = mgmtPermitJoinReqHeader.SRSPHeader()
)

// MgmtPermitJoinReq opens (or closes) the join window. Permit-join
// broadcasts must go through this command, not a raw AF message, or the
// coordinator withholds the network key during the join window (§4.8).
type MgmtPermitJoinReq struct {
	AddrMode       AddrMode
	Dst            uint16
	Duration       uint8
	TCSignificance uint8
}

func (MgmtPermitJoinReq) Header() types.CommandHeader { return mgmtPermitJoinReqHeader }

func (r MgmtPermitJoinReq) Encode() []byte {
	w := types.NewWriter(5)
	w.Uint8(uint8(r.AddrMode))
	w.Uint16(r.Dst)
	w.Uint8(r.Duration)
	w.Uint8(r.TCSignificance)
	return w.Bytes()
}

// --- MgmtNWKUpdateReq (energy scan) ----------------------------------------

var (
	mgmtNWKUpdateReqHeader = zdoHeader(types.SREQ, 0x37)
	mgmtNWKUpdateIndHeader = zdoHeader(types.AREQ, 0xB8)
)

// MgmtNWKUpdateReq triggers an active-channel energy scan or network-update
// broadcast (§4.9 supplemented feature: "Energy scan").
type MgmtNWKUpdateReq struct {
	Dst            uint16
	DstAddrMode    AddrMode
	Channels       uint32
	ScanDuration   uint8
	ScanCount      uint8
	NwkManagerAddr uint16
}

func (MgmtNWKUpdateReq) Header() types.CommandHeader { return mgmtNWKUpdateReqHeader }

func (r MgmtNWKUpdateReq) Encode() []byte {
	w := types.NewWriter(11)
	w.Uint16(r.Dst)
	w.Uint8(uint8(r.DstAddrMode))
	w.Uint32(r.Channels)
	w.Uint8(r.ScanDuration)
	w.Uint8(r.ScanCount)
	w.Uint16(r.NwkManagerAddr)
	return w.Bytes()
}

// MgmtNWKUpdateInd carries either an energy-scan report (ScanDuration <
// 0x06) or a channel-change notification.
type MgmtNWKUpdateInd struct {
	SrcAddr      uint16
	Status       Status
	ScannedChannels uint32
	TotalTransmissions uint16
	TransmissionFailures uint16
	EnergyValues []uint8
}

func (MgmtNWKUpdateInd) Header() types.CommandHeader { return mgmtNWKUpdateIndHeader }

func (c MgmtNWKUpdateInd) Encode() []byte {
	w := types.NewWriter(11 + len(c.EnergyValues))
	w.Uint16(c.SrcAddr)
	w.Uint8(uint8(c.Status))
	w.Uint32(c.ScannedChannels)
	w.Uint16(c.TotalTransmissions)
	w.Uint16(c.TransmissionFailures)
	_ = w.ShortBytes(c.EnergyValues)
	return w.Bytes()
}

func decodeMgmtNWKUpdateInd(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	ind := MgmtNWKUpdateInd{
		SrcAddr:              r.Uint16(),
		Status:               Status(r.Uint8()),
		ScannedChannels:      r.Uint32(),
		TotalTransmissions:   r.Uint16(),
		TransmissionFailures: r.Uint16(),
	}
	ind.EnergyValues = r.ShortBytes()
	return ind, nil
}

// --- ExtRouteDisc ------------------------------------------------------

var extRouteDiscReqHeader = zdoHeader(types.SREQ, 0x45)

// RouteDiscoveryOptions controls ExtRouteDiscReq's discovery mode.
type RouteDiscoveryOptions uint8

const (
	RouteDiscoveryUnicast   RouteDiscoveryOptions = 0x00
	RouteDiscoveryReserved  RouteDiscoveryOptions = 0x01
)

// ExtRouteDiscReq triggers route discovery to Dst, used by the delivery
// recovery ladder's step 1 (§4.7).
type ExtRouteDiscReq struct {
	Dst     uint16
	Options RouteDiscoveryOptions
	Radius  uint8
}

func (ExtRouteDiscReq) Header() types.CommandHeader { return extRouteDiscReqHeader }

func (r ExtRouteDiscReq) Encode() []byte {
	w := types.NewWriter(4)
	w.Uint16(r.Dst)
	w.Uint8(uint8(r.Options))
	w.Uint8(r.Radius)
	return w.Bytes()
}

func init() {
	register(Def{Header: nodeDescRspHeader, Name: "ZDO.NodeDescReq.Rsp", Decode: decodeStatusRsp(nodeDescRspHeader), Generation: GenerationAny})
	register(Def{Header: nodeDescIndHeader, Name: "ZDO.NodeDescRsp", Decode: decodeNodeDescInd, Generation: GenerationAny})
	register(Def{Header: activeEPRspHeader, Name: "ZDO.ActiveEPReq.Rsp", Decode: decodeStatusRsp(activeEPRspHeader), Generation: GenerationAny})
	register(Def{Header: activeEPIndHeader, Name: "ZDO.ActiveEPRsp", Decode: decodeActiveEPInd, Generation: GenerationAny})
	register(Def{Header: simpleDescRspHeader, Name: "ZDO.SimpleDescReq.Rsp", Decode: decodeStatusRsp(simpleDescRspHeader), Generation: GenerationAny})
	register(Def{Header: simpleDescIndHeader, Name: "ZDO.SimpleDescRsp", Decode: decodeSimpleDescInd, Generation: GenerationAny})
	register(Def{Header: mgmtLeaveReqHeader.SRSPHeader(), Name: "ZDO.MgmtLeaveReq.Rsp", Decode: decodeStatusRsp(mgmtLeaveReqHeader.SRSPHeader()), Generation: GenerationAny})
	register(Def{Header: bindReqHeader.SRSPHeader(), Name: "ZDO.BindReq.Rsp", Decode: decodeStatusRsp(bindReqHeader.SRSPHeader()), Generation: GenerationAny})
	register(Def{Header: mgmtLqiReqHeader.SRSPHeader(), Name: "ZDO.MgmtLqiReq.Rsp", Decode: decodeStatusRsp(mgmtLqiReqHeader.SRSPHeader()), Generation: GenerationAny})
	register(Def{Header: mgmtLqiIndHeader, Name: "ZDO.MgmtLqiRsp", Decode: decodeMgmtLqiInd, Generation: GenerationAny})
	register(Def{Header: mgmtRtgReqHeader.SRSPHeader(), Name: "ZDO.MgmtRtgReq.Rsp", Decode: decodeStatusRsp(mgmtRtgReqHeader.SRSPHeader()), Generation: GenerationAny})
	register(Def{Header: mgmtRtgIndHeader, Name: "ZDO.MgmtRtgRsp", Decode: decodeMgmtRtgInd, Generation: GenerationAny})
	register(Def{Header: mgmtPermitJoinRspHeader, Name: "ZDO.MgmtPermitJoinReq.Rsp", Decode: decodeStatusRsp(mgmtPermitJoinRspHeader), Generation: GenerationAny})
	register(Def{Header: mgmtNWKUpdateReqHeader.SRSPHeader(), Name: "ZDO.MgmtNWKUpdateReq.Rsp", Decode: decodeStatusRsp(mgmtNWKUpdateReqHeader.SRSPHeader()), Generation: GenerationAny})
	register(Def{Header: mgmtNWKUpdateIndHeader, Name: "ZDO.MgmtNWKUpdateNotify", Decode: decodeMgmtNWKUpdateInd, Generation: GenerationAny})
	register(Def{Header: extRouteDiscReqHeader.SRSPHeader(), Name: "ZDO.ExtRouteDisc.Rsp", Decode: decodeStatusRsp(extRouteDiscReqHeader.SRSPHeader()), Generation: GenerationAny})
}
