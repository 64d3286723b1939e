package commands

import "github.com/go-zigbee/znp/types"

// SAPI subsystem: the "simple API" configuration surface, kept alive here
// purely as the NVRAM security fallback path (§4.5: some firmware answers
// OSALNVRead with InvalidParameter on security-table items and only exposes
// them through ZBReadConfiguration/ZBWriteConfiguration).

func sapiHeader(t types.CommandType, id uint8) types.CommandHeader {
	return types.NewCommandHeader(t, types.SubsystemSAPI, id)
}

var (
	zbReadConfigurationReqHeader = sapiHeader(types.SREQ, 0x04)
	zbReadConfigurationRspHeader = zbReadConfigurationReqHeader.SRSPHeader()
)

// ZBReadConfigurationReq reads a configuration property by its legacy
// ConfigId, which the nvram package maps 1:1 onto the equivalent OSAL NVID
// whenever possible (§4.5).
type ZBReadConfigurationReq struct {
	ConfigID uint8
}

func (ZBReadConfigurationReq) Header() types.CommandHeader { return zbReadConfigurationReqHeader }

func (r ZBReadConfigurationReq) Encode() []byte {
	w := types.NewWriter(1)
	w.Uint8(r.ConfigID)
	return w.Bytes()
}

// ZBReadConfigurationRsp carries the raw configuration value.
type ZBReadConfigurationRsp struct {
	Status   Status
	ConfigID uint8
	Value    []byte
}

func (ZBReadConfigurationRsp) Header() types.CommandHeader { return zbReadConfigurationRspHeader }

func (r ZBReadConfigurationRsp) Encode() []byte {
	w := types.NewWriter(2 + len(r.Value))
	w.Uint8(uint8(r.Status))
	w.Uint8(r.ConfigID)
	_ = w.ShortBytes(r.Value)
	return w.Bytes()
}

func decodeZBReadConfigurationRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return ZBReadConfigurationRsp{
		Status:   Status(r.Uint8()),
		ConfigID: r.Uint8(),
		Value:    r.ShortBytes(),
	}, nil
}

var (
	zbWriteConfigurationReqHeader = sapiHeader(types.SREQ, 0x05)
	zbWriteConfigurationRspHeader = zbWriteConfigurationReqHeader.SRSPHeader()
)

// ZBWriteConfigurationReq writes a configuration property by ConfigId.
type ZBWriteConfigurationReq struct {
	ConfigID uint8
	Value    []byte
}

func (ZBWriteConfigurationReq) Header() types.CommandHeader { return zbWriteConfigurationReqHeader }

func (r ZBWriteConfigurationReq) Encode() []byte {
	w := types.NewWriter(1 + len(r.Value))
	w.Uint8(r.ConfigID)
	_ = w.ShortBytes(r.Value)
	return w.Bytes()
}

var (
	zbPermitJoiningReqHeader = sapiHeader(types.SREQ, 0x08)
	zbPermitJoiningRspHeader = zbPermitJoiningReqHeader.SRSPHeader()
)

// ZBPermitJoiningReq is the SAPI-layer equivalent of
// ZDO.MgmtPermitJoinReq; the core prefers the ZDO command (§4.8) and keeps
// this one only for firmware that predates it.
type ZBPermitJoiningReq struct {
	Dst      uint16
	Timeout  uint8
}

func (ZBPermitJoiningReq) Header() types.CommandHeader { return zbPermitJoiningReqHeader }

func (r ZBPermitJoiningReq) Encode() []byte {
	w := types.NewWriter(3)
	w.Uint16(r.Dst)
	w.Uint8(r.Timeout)
	return w.Bytes()
}

func init() {
	register(Def{Header: zbReadConfigurationRspHeader, Name: "SAPI.ZBReadConfiguration.Rsp", Decode: decodeZBReadConfigurationRsp, Generation: GenerationAny})
	register(Def{Header: zbWriteConfigurationRspHeader, Name: "SAPI.ZBWriteConfiguration.Rsp", Decode: decodeStatusRsp(zbWriteConfigurationRspHeader), Generation: GenerationAny})
	register(Def{Header: zbPermitJoiningRspHeader, Name: "SAPI.ZBPermitJoining.Rsp", Decode: decodeStatusRsp(zbPermitJoiningRspHeader), Generation: GenerationAny})
}
