package commands

import "github.com/go-zigbee/znp/types"

// MAC subsystem: low-level 802.15.4 MAC PIB commands. The core only
// reaches into this subsystem to reset and initialize the MAC layer before
// handing network startup to ZDO/SAPI/APPConfig (§4.7 step 4).

func macHeader(t types.CommandType, id uint8) types.CommandHeader {
	return types.NewCommandHeader(t, types.SubsystemMAC, id)
}

var (
	macResetReqHeader = macHeader(types.SREQ, 0x01)
	macResetRspHeader = macResetReqHeader.SRSPHeader()
)

// MACResetReq resets the MAC state machine, optionally restoring PIB
// defaults.
type MACResetReq struct {
	SetDefault bool
}

func (MACResetReq) Header() types.CommandHeader { return macResetReqHeader }

func (r MACResetReq) Encode() []byte {
	w := types.NewWriter(1)
	w.Uint8(boolToUint8(r.SetDefault))
	return w.Bytes()
}

var (
	macInitReqHeader = macHeader(types.SREQ, 0x02)
	macInitRspHeader = macInitReqHeader.SRSPHeader()
)

// MACInitReq initializes the MAC layer; carries no parameters.
type MACInitReq struct{}

func (MACInitReq) Header() types.CommandHeader { return macInitReqHeader }
func (MACInitReq) Encode() []byte              { return nil }

func init() {
	register(Def{Header: macResetRspHeader, Name: "MAC.Reset.Rsp", Decode: decodeStatusRsp(macResetRspHeader), Generation: GenerationAny})
	register(Def{Header: macInitRspHeader, Name: "MAC.Init.Rsp", Decode: decodeStatusRsp(macInitRspHeader), Generation: GenerationAny})
}
