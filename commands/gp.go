package commands

import "github.com/go-zigbee/znp/types"

// GP subsystem: Green Power proxy commands. Full GPD commissioning is out
// of scope for the core, but GPDataReq is wired since it is the one GP
// primitive the AF-equivalent data-request path needs to relay an
// already-commissioned GPD's application data.

func gpHeader(t types.CommandType, id uint8) types.CommandHeader {
	return types.NewCommandHeader(t, types.SubsystemGP, id)
}

// GPApplicationID selects how a Green Power Device is addressed.
type GPApplicationID uint8

const (
	GPApplicationIDSrcID GPApplicationID = 0x00
	GPApplicationIDIEEE  GPApplicationID = 0x02
)

var (
	gpDataReqHeader = gpHeader(types.SREQ, 0x01)
	gpDataRspHeader = gpDataReqHeader.SRSPHeader()
)

// GPDataReq queues (or dequeues) a GPDF for transmission to a Green Power
// Device.
type GPDataReq struct {
	Add           bool
	TXOptions     uint8
	ApplicationID GPApplicationID
	SrcID         uint32
	IEEE          [8]byte
	Endpoint      uint8
	CommandID     uint8
	ASDU          []byte
	Handle        uint8
	LifeTime      uint32 // encoded as a 24-bit value on the wire
}

func (GPDataReq) Header() types.CommandHeader { return gpDataReqHeader }

func (r GPDataReq) Encode() []byte {
	w := types.NewWriter(20 + len(r.ASDU))
	w.Uint8(boolToUint8(r.Add))
	w.Uint8(r.TXOptions)
	w.Uint8(uint8(r.ApplicationID))
	w.Uint32(r.SrcID)
	w.FixedBytes(r.IEEE[:])
	w.Uint8(r.Endpoint)
	w.Uint8(r.CommandID)
	_ = w.ShortBytes(r.ASDU)
	w.Uint8(r.Handle)
	w.Uint8(uint8(r.LifeTime))
	w.Uint8(uint8(r.LifeTime >> 8))
	w.Uint8(uint8(r.LifeTime >> 16))
	return w.Bytes()
}

func init() {
	register(Def{Header: gpDataRspHeader, Name: "GP.DataReq.Rsp", Decode: decodeStatusRsp(gpDataRspHeader), Generation: GenerationZStack30})
}
