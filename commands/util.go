package commands

import "github.com/go-zigbee/znp/types"

// UTIL subsystem: device info, the association-table repair commands used
// by the delivery recovery ladder's step 2 (§4.7), and board LED control
// (startup step 7).

func utilHeader(t types.CommandType, id uint8) types.CommandHeader {
	return types.NewCommandHeader(t, types.SubsystemUTIL, id)
}

var (
	getDeviceInfoReqHeader = utilHeader(types.SREQ, 0x00)
	getDeviceInfoRspHeader = getDeviceInfoReqHeader.SRSPHeader()
)

// GetDeviceInfoReq carries no parameters.
type GetDeviceInfoReq struct{}

func (GetDeviceInfoReq) Header() types.CommandHeader { return getDeviceInfoReqHeader }
func (GetDeviceInfoReq) Encode() []byte              { return nil }

// GetDeviceInfoRsp reports the coprocessor's own identity and child list.
type GetDeviceInfoRsp struct {
	Status      Status
	IEEE        [8]byte
	NWK         uint16
	DeviceType  uint8
	DeviceState uint8
	Children    []uint16
}

func (GetDeviceInfoRsp) Header() types.CommandHeader { return getDeviceInfoRspHeader }

func (r GetDeviceInfoRsp) Encode() []byte {
	w := types.NewWriter(13 + 2*len(r.Children))
	w.Uint8(uint8(r.Status))
	w.FixedBytes(r.IEEE[:])
	w.Uint16(r.NWK)
	w.Uint8(r.DeviceType)
	w.Uint8(r.DeviceState)
	w.Uint8(uint8(len(r.Children)))
	for _, c := range r.Children {
		w.Uint16(c)
	}
	return w.Bytes()
}

func decodeGetDeviceInfoRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	rsp := GetDeviceInfoRsp{Status: Status(r.Uint8())}
	copy(rsp.IEEE[:], r.FixedBytes(8))
	rsp.NWK = r.Uint16()
	rsp.DeviceType = r.Uint8()
	rsp.DeviceState = r.Uint8()
	n := r.Uint8()
	rsp.Children = make([]uint16, n)
	for i := range rsp.Children {
		rsp.Children[i] = r.Uint16()
	}
	return rsp, nil
}

// --- UTIL.AssocGetWithAddress --------------------------------------------

var (
	assocGetWithAddressReqHeader = utilHeader(types.SREQ, 0x4A)
	assocGetWithAddressRspHeader = assocGetWithAddressReqHeader.SRSPHeader()
)

// AssocGetWithAddressReq looks up an association-table entry by IEEE, or by
// NWK when IEEE is all-zero. The delivery recovery ladder's step 2 uses this
// to confirm a device is still in the table before retrying (§4.7).
type AssocGetWithAddressReq struct {
	IEEE [8]byte
	NWK  uint16
}

func (AssocGetWithAddressReq) Header() types.CommandHeader { return assocGetWithAddressReqHeader }

func (r AssocGetWithAddressReq) Encode() []byte {
	w := types.NewWriter(10)
	w.FixedBytes(r.IEEE[:])
	w.Uint16(r.NWK)
	return w.Bytes()
}

// AssocGetWithAddressRsp carries the raw associated_devices_t structure (18
// bytes); an all-0xFF device entry means "not found".
type AssocGetWithAddressRsp struct {
	Device [18]byte
}

func (AssocGetWithAddressRsp) Header() types.CommandHeader { return assocGetWithAddressRspHeader }

func (r AssocGetWithAddressRsp) Encode() []byte {
	w := types.NewWriter(18)
	w.FixedBytes(r.Device[:])
	return w.Bytes()
}

func decodeAssocGetWithAddressRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	var rsp AssocGetWithAddressRsp
	copy(rsp.Device[:], r.FixedBytes(18))
	return rsp, nil
}

// --- UTIL.AssocRemove / UTIL.AssocAdd ------------------------------------

var (
	assocRemoveReqHeader = utilHeader(types.SREQ, 0x4B)
	assocRemoveRspHeader = assocRemoveReqHeader.SRSPHeader()
	assocAddReqHeader     = utilHeader(types.SREQ, 0x4C)
	assocAddRspHeader     = assocAddReqHeader.SRSPHeader()
)

// AssocRemoveReq drops a device from the association table; recovery
// ladder step 2 pairs this with AssocAddReq to force a fresh entry when a
// device's route has gone stale (§4.7). Not all firmware supports this
// pair — the caller must treat CommandNotRecognized as "unsupported", not
// as a delivery failure.
type AssocRemoveReq struct {
	IEEE [8]byte
}

func (AssocRemoveReq) Header() types.CommandHeader { return assocRemoveReqHeader }

func (r AssocRemoveReq) Encode() []byte {
	w := types.NewWriter(8)
	w.FixedBytes(r.IEEE[:])
	return w.Bytes()
}

// NodeRelation classifies a child for AssocAddReq.
type NodeRelation uint8

const (
	NodeRelationParent       NodeRelation = 0
	NodeRelationChildRFD     NodeRelation = 1
	NodeRelationChildRFDRxIdle NodeRelation = 2
	NodeRelationChildFFDRxIdle NodeRelation = 3
	NodeRelationChildFFD     NodeRelation = 4
	NodeRelationNone         NodeRelation = 0xFF
)

// AssocAddReq re-inserts a device into the association table after
// AssocRemoveReq, forcing the stack to treat it as newly joined (§4.7).
type AssocAddReq struct {
	NWK          uint16
	IEEE         [8]byte
	NodeRelation NodeRelation
}

func (AssocAddReq) Header() types.CommandHeader { return assocAddReqHeader }

func (r AssocAddReq) Encode() []byte {
	w := types.NewWriter(11)
	w.Uint16(r.NWK)
	w.FixedBytes(r.IEEE[:])
	w.Uint8(uint8(r.NodeRelation))
	return w.Bytes()
}

// --- UTIL.LEDControl -------------------------------------------------------

var (
	ledControlReqHeader = utilHeader(types.SREQ, 0x0A)
	ledControlRspHeader = ledControlReqHeader.SRSPHeader()
)

// LEDControlReq turns one of the coprocessor board's LEDs on or off (§4.7
// step 7 / config LEDMode).
type LEDControlReq struct {
	LED uint8
	On  bool
}

func (LEDControlReq) Header() types.CommandHeader { return ledControlReqHeader }

func (r LEDControlReq) Encode() []byte {
	w := types.NewWriter(2)
	w.Uint8(r.LED)
	w.Uint8(boolToUint8(r.On))
	return w.Bytes()
}

func init() {
	register(Def{Header: getDeviceInfoRspHeader, Name: "UTIL.GetDeviceInfo.Rsp", Decode: decodeGetDeviceInfoRsp, Generation: GenerationAny})
	register(Def{Header: assocGetWithAddressRspHeader, Name: "UTIL.AssocGetWithAddress.Rsp", Decode: decodeAssocGetWithAddressRsp, Generation: GenerationAny})
	register(Def{Header: assocRemoveRspHeader, Name: "UTIL.AssocRemove.Rsp", Decode: decodeStatusRsp(assocRemoveRspHeader), Generation: GenerationZStack30})
	register(Def{Header: assocAddRspHeader, Name: "UTIL.AssocAdd.Rsp", Decode: decodeStatusRsp(assocAddRspHeader), Generation: GenerationZStack30})
	register(Def{Header: ledControlRspHeader, Name: "UTIL.LEDControl.Rsp", Decode: decodeStatusRsp(ledControlRspHeader), Generation: GenerationAny})
}
