package commands

import "github.com/go-zigbee/znp/types"

// APP subsystem: the legacy test-application message path, kept for
// firmware that exposes it but never used by the controller's own
// data-request path (that goes through AF, §4.7).

func appHeader(t types.CommandType, id uint8) types.CommandHeader {
	return types.NewCommandHeader(t, types.SubsystemAPP, id)
}

var (
	appMsgReqHeader = appHeader(types.SREQ, 0x00)
	appMsgRspHeader = appMsgReqHeader.SRSPHeader()
)

// AppMsgReq sends raw data to the test application running on Endpoint.
type AppMsgReq struct {
	Endpoint    uint8
	DstAddr     uint16
	DstEndpoint uint8
	ClusterID   uint16
	Data        []byte
}

func (AppMsgReq) Header() types.CommandHeader { return appMsgReqHeader }

func (r AppMsgReq) Encode() []byte {
	w := types.NewWriter(7 + len(r.Data))
	w.Uint8(r.Endpoint)
	w.Uint16(r.DstAddr)
	w.Uint8(r.DstEndpoint)
	w.Uint16(r.ClusterID)
	_ = w.ShortBytes(r.Data)
	return w.Bytes()
}

func init() {
	register(Def{Header: appMsgRspHeader, Name: "APP.Msg.Rsp", Decode: decodeStatusRsp(appMsgRspHeader), Generation: GenerationAny})
}
