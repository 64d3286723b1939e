package commands

import "github.com/go-zigbee/znp/types"

// SYS subsystem: the extended 24-bit (sys_id, item_id, sub_id) NVRAM
// surface added in Z-Stack 3.0+ firmware (§3: NVID, §4.5).

var (
	nvLengthReqHeader = sysHeader(types.SREQ, 0x30)
	nvLengthRspHeader = nvLengthReqHeader.SRSPHeader()
	nvReadReqHeader   = sysHeader(types.SREQ, 0x31)
	nvReadRspHeader   = nvReadReqHeader.SRSPHeader()
	nvWriteReqHeader  = sysHeader(types.SREQ, 0x32)
	nvWriteRspHeader  = nvWriteReqHeader.SRSPHeader()
	nvDeleteReqHeader = sysHeader(types.SREQ, 0x33)
	nvDeleteRspHeader = nvDeleteReqHeader.SRSPHeader()
	nvCreateReqHeader = sysHeader(types.SREQ, 0x34)
	nvCreateRspHeader = nvCreateReqHeader.SRSPHeader()
)

func extItemID(sysID uint8, itemID, subID uint16) []byte {
	w := types.NewWriter(5)
	w.Uint8(sysID)
	w.Uint16(itemID)
	w.Uint16(subID)
	return w.Bytes()
}

// NVLengthReq asks for the length of an extended NV item, 0 meaning absent.
type NVLengthReq struct {
	SysID  uint8
	ItemID uint16
	SubID  uint16
}

func (NVLengthReq) Header() types.CommandHeader { return nvLengthReqHeader }

func (r NVLengthReq) Encode() []byte {
	return extItemID(r.SysID, r.ItemID, r.SubID)
}

// NVLengthRsp's bare length, mirroring OSALNVLengthRsp (§4.5).
type NVLengthRsp struct {
	Length uint32
}

func (NVLengthRsp) Header() types.CommandHeader { return nvLengthRspHeader }

func (r NVLengthRsp) Encode() []byte {
	w := types.NewWriter(4)
	w.Uint32(r.Length)
	return w.Bytes()
}

func decodeNVLengthRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return NVLengthRsp{Length: r.Uint32()}, nil
}

// NVReadReq reads up to 244 bytes of an extended NV item at Offset.
type NVReadReq struct {
	SysID  uint8
	ItemID uint16
	SubID  uint16
	Offset uint16
	Length uint8
}

func (NVReadReq) Header() types.CommandHeader { return nvReadReqHeader }

func (r NVReadReq) Encode() []byte {
	w := types.NewWriter(8)
	w.FixedBytes(extItemID(r.SysID, r.ItemID, r.SubID))
	w.Uint16(r.Offset)
	w.Uint8(r.Length)
	return w.Bytes()
}

// NVReadRsp carries the status and the chunk read.
type NVReadRsp struct {
	Status NVStatus
	Value  []byte
}

func (NVReadRsp) Header() types.CommandHeader { return nvReadRspHeader }

func (r NVReadRsp) Encode() []byte {
	w := types.NewWriter(2 + len(r.Value))
	w.Uint8(uint8(r.Status))
	_ = w.ShortBytes(r.Value)
	return w.Bytes()
}

func decodeNVReadRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return NVReadRsp{Status: NVStatus(r.Uint8()), Value: r.ShortBytes()}, nil
}

// NVWriteReq writes Value at Offset; unlike the legacy surface, this
// command always honors Offset (§4.5).
type NVWriteReq struct {
	SysID  uint8
	ItemID uint16
	SubID  uint16
	Offset uint16
	Value  []byte
}

func (NVWriteReq) Header() types.CommandHeader { return nvWriteReqHeader }

func (r NVWriteReq) Encode() []byte {
	w := types.NewWriter(8 + len(r.Value))
	w.FixedBytes(extItemID(r.SysID, r.ItemID, r.SubID))
	w.Uint16(r.Offset)
	_ = w.ShortBytes(r.Value)
	return w.Bytes()
}

// NVWriteRsp is SYS.NVWrite's SRSP: reuses the shared single-status-byte
// shape (see sys.go's nvWriteStatus).
type NVWriteRsp struct{ nvWriteStatus }

func (NVWriteRsp) Header() types.CommandHeader { return nvWriteRspHeader }

func decodeNVWriteRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return NVWriteRsp{nvWriteStatus{Status: NVStatus(r.Uint8())}}, nil
}

// NVDeleteReq deletes an extended NV item.
type NVDeleteReq struct {
	SysID  uint8
	ItemID uint16
	SubID  uint16
}

func (NVDeleteReq) Header() types.CommandHeader { return nvDeleteReqHeader }

func (r NVDeleteReq) Encode() []byte {
	return extItemID(r.SysID, r.ItemID, r.SubID)
}

// NVDeleteRsp is SYS.NVDelete's SRSP.
type NVDeleteRsp struct{ Status NVStatus }

func (NVDeleteRsp) Header() types.CommandHeader { return nvDeleteRspHeader }

func (r NVDeleteRsp) Encode() []byte {
	w := types.NewWriter(1)
	w.Uint8(uint8(r.Status))
	return w.Bytes()
}

func decodeNVDeleteRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return NVDeleteRsp{Status: NVStatus(r.Uint8())}, nil
}

// NVCreateReq creates (or recreates) an extended NV item of Length bytes.
type NVCreateReq struct {
	SysID  uint8
	ItemID uint16
	SubID  uint16
	Length uint32
}

func (NVCreateReq) Header() types.CommandHeader { return nvCreateReqHeader }

func (r NVCreateReq) Encode() []byte {
	w := types.NewWriter(9)
	w.FixedBytes(extItemID(r.SysID, r.ItemID, r.SubID))
	w.Uint32(r.Length)
	return w.Bytes()
}

// NVCreateRsp is SYS.NVCreate's SRSP; NVStatusItemUninit also indicates
// success (the item was created), mirroring OSALNVItemInitRsp.
type NVCreateRsp struct{ Status NVStatus }

func (NVCreateRsp) Header() types.CommandHeader { return nvCreateRspHeader }

func (r NVCreateRsp) Encode() []byte {
	w := types.NewWriter(1)
	w.Uint8(uint8(r.Status))
	return w.Bytes()
}

func decodeNVCreateRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return NVCreateRsp{Status: NVStatus(r.Uint8())}, nil
}

func init() {
	register(Def{Header: nvLengthRspHeader, Name: "SYS.NVLength.Rsp", Decode: decodeNVLengthRsp, Generation: GenerationZStack330Plus})
	register(Def{Header: nvReadRspHeader, Name: "SYS.NVRead.Rsp", Decode: decodeNVReadRsp, Generation: GenerationZStack330Plus})
	register(Def{Header: nvWriteRspHeader, Name: "SYS.NVWrite.Rsp", Decode: decodeNVWriteRsp, Generation: GenerationZStack330Plus})
	register(Def{Header: nvDeleteRspHeader, Name: "SYS.NVDelete.Rsp", Decode: decodeNVDeleteRsp, Generation: GenerationZStack330Plus})
	register(Def{Header: nvCreateRspHeader, Name: "SYS.NVCreate.Rsp", Decode: decodeNVCreateRsp, Generation: GenerationZStack330Plus})
}
