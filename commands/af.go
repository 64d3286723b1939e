package commands

import "github.com/go-zigbee/znp/types"

// AF subsystem: endpoint registration and the data-request path (§4.7
// "Data-request path").

func afHeader(t types.CommandType, id uint8) types.CommandHeader {
	return types.NewCommandHeader(t, types.SubsystemAF, id)
}

// TransmitOptions is the AF data-request transmit-options bit flag set.
type TransmitOptions uint8

const (
	TransmitOptionsNone               TransmitOptions = 0x00
	TransmitOptionsWildcardProfileID  TransmitOptions = 0x02
	TransmitOptionsAPSPreprocess      TransmitOptions = 0x04
	TransmitOptionsLimitConcentrator  TransmitOptions = 0x08
	TransmitOptionsACKRequest         TransmitOptions = 0x10
	TransmitOptionsSuppressRouteDisc  TransmitOptions = 0x20
	TransmitOptionsEnableSecurity     TransmitOptions = 0x40
	TransmitOptionsSkipRouting        TransmitOptions = 0x80
)

// AddrMode selects the destination addressing mode of a data request
// (§4.7: "addressing mode IEEE or NWK per caller hint").
type AddrMode uint8

const (
	AddrModeNone     AddrMode = 0
	AddrModeGroup    AddrMode = 1
	AddrModeNWK      AddrMode = 2
	AddrModeIEEE     AddrMode = 3
	AddrModeBroadcast AddrMode = 15
)

// Status is the generic single-byte SRSP/callback status shared by most AF
// and NWK/ZDO commands.
type Status uint8

const (
	StatusSuccess Status = 0x00
	StatusFailure Status = 0x01
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "SUCCESS"
	}
	if s == StatusFailure {
		return "FAILURE"
	}
	return types.UnknownName(uint64(s), 1)
}

var (
	afRegisterReqHeader = afHeader(types.SREQ, 0x00)
	afRegisterRspHeader = afRegisterReqHeader.SRSPHeader()
)

// RegisterReq registers an application endpoint description (§4.7 step 6).
type RegisterReq struct {
	Endpoint       uint8
	ProfileID      uint16
	DeviceID       uint16
	DeviceVersion  uint8
	LatencyReq     uint8
	InputClusters  []uint16
	OutputClusters []uint16
}

func (RegisterReq) Header() types.CommandHeader { return afRegisterReqHeader }

func (r RegisterReq) Encode() []byte {
	w := types.NewWriter(16)
	w.Uint8(r.Endpoint)
	w.Uint16(r.ProfileID)
	w.Uint16(r.DeviceID)
	w.Uint8(r.DeviceVersion)
	w.Uint8(r.LatencyReq)
	w.Uint8(uint8(len(r.InputClusters)))
	for _, c := range r.InputClusters {
		w.Uint16(c)
	}
	w.Uint8(uint8(len(r.OutputClusters)))
	for _, c := range r.OutputClusters {
		w.Uint16(c)
	}
	return w.Bytes()
}

// StatusRsp is the generic single-Status-byte SRSP shape shared by most
// subsystems (AF.Register, APPConfig.BDBStartCommissioning, UTIL.AssocAdd,
// ZDO.BindReq, and others): callers type-assert a Request/RequestCallbackRsp
// result to StatusRsp and read its Status field rather than a
// subsystem-specific wrapper type.
type StatusRsp struct {
	header types.CommandHeader
	Status Status
}

func (r StatusRsp) Header() types.CommandHeader { return r.header }

func (r StatusRsp) Encode() []byte {
	w := types.NewWriter(1)
	w.Uint8(uint8(r.Status))
	return w.Bytes()
}

func decodeStatusRsp(header types.CommandHeader) Decoder {
	return func(_ types.CommandHeader, payload []byte) (Command, error) {
		r := types.NewReader(payload)
		return StatusRsp{header: header, Status: Status(r.Uint8())}, nil
	}
}

var (
	afDataRequestExtReqHeader   = afHeader(types.SREQ, 0x02)
	afDataRequestExtRspHeader   = afDataRequestExtReqHeader.SRSPHeader()
	afDataRequestSrcRtgReqHeader = afHeader(types.SREQ, 0x03)
	afDataRequestSrcRtgRspHeader = afDataRequestSrcRtgReqHeader.SRSPHeader()
)

// DataRequestExtReq is the extended unicast/broadcast data request used for
// the core data-request path (§4.7).
type DataRequestExtReq struct {
	DstAddrMode AddrMode
	DstAddr     [8]byte // NWK address in low 2 bytes, or full IEEE
	DstEndpoint uint8
	DstPanID    uint16
	SrcEndpoint uint8
	ClusterID   uint16
	TSN         uint8
	Options     TransmitOptions
	Radius      uint8
	Data        []byte
}

func (DataRequestExtReq) Header() types.CommandHeader { return afDataRequestExtReqHeader }

func (r DataRequestExtReq) Encode() []byte {
	w := types.NewWriter(20 + len(r.Data))
	w.Uint8(uint8(r.DstAddrMode))
	w.FixedBytes(r.DstAddr[:])
	w.Uint8(r.DstEndpoint)
	w.Uint16(r.DstPanID)
	w.Uint8(r.SrcEndpoint)
	w.Uint16(r.ClusterID)
	w.Uint8(r.TSN)
	w.Uint8(uint8(r.Options))
	w.Uint8(r.Radius)
	_ = w.LongBytes(r.Data)
	return w.Bytes()
}

// DataRequestSrcRtgReq is the source-routed data request used by the
// recovery ladder's step 4 (§4.7).
type DataRequestSrcRtgReq struct {
	DstAddr     uint16
	DstEndpoint uint8
	SrcEndpoint uint8
	ClusterID   uint16
	TSN         uint8
	Options     TransmitOptions
	Radius      uint8
	SourceRoute []uint16
	Data        []byte
}

func (DataRequestSrcRtgReq) Header() types.CommandHeader { return afDataRequestSrcRtgReqHeader }

func (r DataRequestSrcRtgReq) Encode() []byte {
	w := types.NewWriter(12 + 2*len(r.SourceRoute) + len(r.Data))
	w.Uint16(r.DstAddr)
	w.Uint8(r.DstEndpoint)
	w.Uint8(r.SrcEndpoint)
	w.Uint16(r.ClusterID)
	w.Uint8(r.TSN)
	w.Uint8(uint8(r.Options))
	w.Uint8(r.Radius)
	w.Uint8(uint8(len(r.SourceRoute)))
	for _, hop := range r.SourceRoute {
		w.Uint16(hop)
	}
	_ = w.ShortBytes(r.Data)
	return w.Bytes()
}

var afDataConfirmHeader = afHeader(types.AREQ, 0x80)

// DataConfirm correlates to the data request that triggered it by
// (Endpoint, TSN) (§4.7).
type DataConfirm struct {
	Status   Status
	Endpoint uint8
	TSN      uint8
}

func (DataConfirm) Header() types.CommandHeader { return afDataConfirmHeader }

func (c DataConfirm) Encode() []byte {
	w := types.NewWriter(3)
	w.Uint8(uint8(c.Status))
	w.Uint8(c.Endpoint)
	w.Uint8(c.TSN)
	return w.Bytes()
}

// DataConfirmPattern matches a DataConfirm by its correlating fields,
// leaving Status a wildcard so any outcome resolves the wait (§4.7).
type DataConfirmPattern struct {
	Endpoint types.Maybe[uint8]
	TSN      types.Maybe[uint8]
}

func (p DataConfirmPattern) Matches(c DataConfirm) bool {
	return types.MatchesEq(p.Endpoint, c.Endpoint) && types.MatchesEq(p.TSN, c.TSN)
}

func decodeDataConfirm(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return DataConfirm{
		Status:   Status(r.Uint8()),
		Endpoint: r.Uint8(),
		TSN:      r.Uint8(),
	}, nil
}

var afIncomingMsgHeader = afHeader(types.AREQ, 0x81)

// IncomingMsg is the callback carrying data addressed to one of the
// registered endpoints; zdo.Rewriter and the upstream AF consumer both
// watch for it.
type IncomingMsg struct {
	GroupID      uint16
	ClusterID    uint16
	SrcAddr      uint16
	SrcEndpoint  uint8
	DstEndpoint  uint8
	WasBroadcast bool
	LQI          uint8
	SecurityUse  bool
	TimeStamp    uint32
	TSN          uint8
	Data         []byte
}

func (IncomingMsg) Header() types.CommandHeader { return afIncomingMsgHeader }

func (c IncomingMsg) Encode() []byte {
	w := types.NewWriter(20 + len(c.Data))
	w.Uint16(c.GroupID)
	w.Uint16(c.ClusterID)
	w.Uint16(c.SrcAddr)
	w.Uint8(c.SrcEndpoint)
	w.Uint8(c.DstEndpoint)
	w.Uint8(boolToUint8(c.WasBroadcast))
	w.Uint8(c.LQI)
	w.Uint8(boolToUint8(c.SecurityUse))
	w.Uint32(c.TimeStamp)
	w.Uint8(c.TSN)
	_ = w.ShortBytes(c.Data)
	return w.Bytes()
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// IncomingMsgPattern matches an IncomingMsg by an optionally-bound
// ClusterID, used by zdo.Rewriter to watch for ZDO responses rewritten
// onto the AF channel.
type IncomingMsgPattern struct {
	ClusterID types.Maybe[uint16]
	SrcAddr   types.Maybe[uint16]
}

func (p IncomingMsgPattern) Matches(c IncomingMsg) bool {
	return types.MatchesEq(p.ClusterID, c.ClusterID) && types.MatchesEq(p.SrcAddr, c.SrcAddr)
}

func decodeIncomingMsg(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	msg := IncomingMsg{
		GroupID:      r.Uint16(),
		ClusterID:    r.Uint16(),
		SrcAddr:      r.Uint16(),
		SrcEndpoint:  r.Uint8(),
		DstEndpoint:  r.Uint8(),
		WasBroadcast: r.Uint8() != 0,
		LQI:          r.Uint8(),
		SecurityUse:  r.Uint8() != 0,
		TimeStamp:    r.Uint32(),
		TSN:          r.Uint8(),
	}
	msg.Data = r.ShortBytes()
	return msg, nil
}

func init() {
	register(Def{Header: afRegisterRspHeader, Name: "AF.Register.Rsp", Decode: decodeStatusRsp(afRegisterRspHeader), Generation: GenerationAny})
	register(Def{Header: afDataRequestExtRspHeader, Name: "AF.DataRequestExt.Rsp", Decode: decodeStatusRsp(afDataRequestExtRspHeader), Generation: GenerationAny})
	register(Def{Header: afDataRequestSrcRtgRspHeader, Name: "AF.DataRequestSrcRtg.Rsp", Decode: decodeStatusRsp(afDataRequestSrcRtgRspHeader), Generation: GenerationAny})
	register(Def{Header: afDataConfirmHeader, Name: "AF.DataConfirm", Decode: decodeDataConfirm, Generation: GenerationAny})
	register(Def{Header: afIncomingMsgHeader, Name: "AF.IncomingMsg", Decode: decodeIncomingMsg, Generation: GenerationAny})
}
