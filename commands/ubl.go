package commands

import "github.com/go-zigbee/znp/types"

// UBL subsystem: the serial bootloader protocol. Firmware flashing itself
// is out of scope (§4.9 lists only the probe/version primitives the core
// needs), but HandshakeReq/Rsp is grounded here since
// uart.skipBootloader's 0xEF preamble is this same bootloader's
// handshake framing, and a caller probing an unresponsive port benefits
// from being able to tell "stuck in bootloader" apart from "no response".

func ublHeader(t types.CommandType, id uint8) types.CommandHeader {
	return types.NewCommandHeader(t, types.SubsystemUBL, id)
}

// BootloaderStatus is the serial bootloader's single-byte status code.
type BootloaderStatus uint8

const (
	BootloaderStatusSuccess         BootloaderStatus = 0
	BootloaderStatusFailure         BootloaderStatus = 1
	BootloaderStatusInvalidFCS      BootloaderStatus = 2
	BootloaderStatusInvalidFile     BootloaderStatus = 3
	BootloaderStatusFilesystemError BootloaderStatus = 4
	BootloaderStatusAlreadyStarted  BootloaderStatus = 5
	BootloaderStatusNoResponse      BootloaderStatus = 6
	BootloaderStatusValidateFailed  BootloaderStatus = 7
	BootloaderStatusCanceled        BootloaderStatus = 8
)

func (s BootloaderStatus) String() string {
	switch s {
	case BootloaderStatusSuccess:
		return "SUCCESS"
	case BootloaderStatusFailure:
		return "FAILURE"
	case BootloaderStatusInvalidFCS:
		return "INVALID_FCS"
	case BootloaderStatusInvalidFile:
		return "INVALID_FILE"
	case BootloaderStatusFilesystemError:
		return "FILESYSTEM_ERROR"
	case BootloaderStatusAlreadyStarted:
		return "ALREADY_STARTED"
	case BootloaderStatusNoResponse:
		return "NO_RESPONSE"
	case BootloaderStatusValidateFailed:
		return "VALIDATE_FAILED"
	case BootloaderStatusCanceled:
		return "CANCELED"
	default:
		return types.UnknownName(uint64(s), 1)
	}
}

// BootloaderDeviceType identifies the coprocessor's flash part.
type BootloaderDeviceType uint8

const (
	BootloaderDeviceCC2538 BootloaderDeviceType = 1
	BootloaderDeviceCC2530 BootloaderDeviceType = 2
)

var ublHandshakeReqHeader = ublHeader(types.AREQ, 0x04)

// UBLHandshakeReq probes whether the coprocessor is sitting in its serial
// bootloader instead of running application firmware.
type UBLHandshakeReq struct{}

func (UBLHandshakeReq) Header() types.CommandHeader { return ublHandshakeReqHeader }
func (UBLHandshakeReq) Encode() []byte              { return nil }

var ublHandshakeRspHeader = ublHeader(types.AREQ, 0x84)

// UBLHandshakeRsp identifies the bootloader build and transfer buffer size.
type UBLHandshakeRsp struct {
	Status                 BootloaderStatus
	BootloaderRevision     uint32
	DeviceType             BootloaderDeviceType
	BufferSize             uint32
	PageSize               uint32
	BootloaderCodeRevision uint32
}

func (UBLHandshakeRsp) Header() types.CommandHeader { return ublHandshakeRspHeader }

func (c UBLHandshakeRsp) Encode() []byte {
	w := types.NewWriter(17)
	w.Uint8(uint8(c.Status))
	w.Uint32(c.BootloaderRevision)
	w.Uint8(uint8(c.DeviceType))
	w.Uint32(c.BufferSize)
	w.Uint32(c.PageSize)
	w.Uint32(c.BootloaderCodeRevision)
	return w.Bytes()
}

func decodeUBLHandshakeRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return UBLHandshakeRsp{
		Status:                 BootloaderStatus(r.Uint8()),
		BootloaderRevision:     r.Uint32(),
		DeviceType:             BootloaderDeviceType(r.Uint8()),
		BufferSize:             r.Uint32(),
		PageSize:               r.Uint32(),
		BootloaderCodeRevision: r.Uint32(),
	}, nil
}

func init() {
	register(Def{Header: ublHandshakeRspHeader, Name: "UBL.Handshake.Rsp", Decode: decodeUBLHandshakeRsp, Generation: GenerationAny})
}
