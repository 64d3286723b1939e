package commands

import "github.com/go-zigbee/znp/types"

// SYS subsystem: device-level reset, identity, and the legacy OSAL NVRAM
// surface (§4.5's osal_* commands live here, per the real ZNP MT spec).

func sysHeader(t types.CommandType, id uint8) types.CommandHeader {
	return types.NewCommandHeader(t, types.SubsystemSYS, id)
}

// --- SYS.Ping ---------------------------------------------------------

var (
	pingReqHeader = sysHeader(types.SREQ, 0x01)
	pingRspHeader = pingReqHeader.SRSPHeader()
)

// PingReq carries no parameters (header 0x2101, empty payload).
type PingReq struct{}

func (PingReq) Header() types.CommandHeader { return pingReqHeader }
func (PingReq) Encode() []byte              { return nil }

// PingRsp reports which subsystems the firmware supports.
type PingRsp struct {
	Capabilities Capabilities
}

func (PingRsp) Header() types.CommandHeader { return pingRspHeader }

func (r PingRsp) Encode() []byte {
	w := types.NewWriter(2)
	w.Uint16(uint16(r.Capabilities))
	return w.Bytes()
}

// PingRspPattern matches a PingRsp by an optionally-bound Capabilities.
type PingRspPattern struct {
	Capabilities types.Maybe[Capabilities]
}

func (p PingRspPattern) Matches(r PingRsp) bool {
	return types.MatchesEq(p.Capabilities, r.Capabilities)
}

func decodePingReq(_ types.CommandHeader, _ []byte) (Command, error) {
	return PingReq{}, nil
}

func decodePingRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return PingRsp{Capabilities: Capabilities(r.Uint16())}, nil
}

// --- SYS.Version -------------------------------------------------------

var (
	versionReqHeader = sysHeader(types.SREQ, 0x02)
	versionRspHeader = versionReqHeader.SRSPHeader()
)

// VersionReq carries no parameters.
type VersionReq struct{}

func (VersionReq) Header() types.CommandHeader { return versionReqHeader }
func (VersionReq) Encode() []byte              { return nil }

// VersionRsp identifies the firmware build (§4.7 step 6, §9 Open Questions'
// build-id-gated ZLL endpoint selection).
type VersionRsp struct {
	TransportRev uint8
	ProductID    uint8
	MajorRel     uint8
	MinorRel     uint8
	HwRev        uint8
	BuildID      uint32 // 0 on firmware that omits the trailing extension
}

func (VersionRsp) Header() types.CommandHeader { return versionRspHeader }

func (r VersionRsp) Encode() []byte {
	w := types.NewWriter(9)
	w.Uint8(r.TransportRev)
	w.Uint8(r.ProductID)
	w.Uint8(r.MajorRel)
	w.Uint8(r.MinorRel)
	w.Uint8(r.HwRev)
	w.Uint32(r.BuildID)
	return w.Bytes()
}

func decodeVersionReq(_ types.CommandHeader, _ []byte) (Command, error) {
	return VersionReq{}, nil
}

func decodeVersionRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	rsp := VersionRsp{
		TransportRev: r.Uint8(),
		ProductID:    r.Uint8(),
		MajorRel:     r.Uint8(),
		MinorRel:     r.Uint8(),
		HwRev:        r.Uint8(),
	}
	// BuildID is a trailing-optional parameter (§4.2): older firmware
	// omits it entirely.
	if r.HasMore() {
		rsp.BuildID = r.Uint32()
	}
	return rsp, nil
}

// --- SYS.ResetReq (fire-and-forget AREQ) --------------------------------

var resetReqHeader = sysHeader(types.AREQ, 0x00)

// ResetType selects a hardware or soft reset (§4.7 step 3).
type ResetType uint8

const (
	ResetTypeHard ResetType = 0
	ResetTypeSoft ResetType = 1
)

// ResetReq triggers a device reset; it has no response (the device instead
// emits a ResetInd callback once it has booted).
type ResetReq struct {
	Type ResetType
}

func (ResetReq) Header() types.CommandHeader { return resetReqHeader }

func (r ResetReq) Encode() []byte {
	w := types.NewWriter(1)
	w.Uint8(uint8(r.Type))
	return w.Bytes()
}

// --- SYS.ResetInd (callback) --------------------------------------------

var resetIndHeader = sysHeader(types.AREQ, 0x80)

// ResetReason distinguishes power-on, external, and watchdog resets.
type ResetReason uint8

const (
	ResetReasonPowerUp  ResetReason = 0
	ResetReasonExternal ResetReason = 1
	ResetReasonWatchdog ResetReason = 2
)

func (r ResetReason) String() string {
	switch r {
	case ResetReasonPowerUp:
		return "PowerUp"
	case ResetReasonExternal:
		return "External"
	case ResetReasonWatchdog:
		return "Watchdog"
	default:
		return types.UnknownName(uint64(r), 1)
	}
}

// ResetInd is awaited after issuing ResetReq (§4.7 step 3).
type ResetInd struct {
	Reason       ResetReason
	TransportRev uint8
	MajorRel     uint8
	MinorRel     uint8
	HwRev        uint8
}

func (ResetInd) Header() types.CommandHeader { return resetIndHeader }

func (c ResetInd) Encode() []byte {
	w := types.NewWriter(5)
	w.Uint8(uint8(c.Reason))
	w.Uint8(c.TransportRev)
	w.Uint8(c.MajorRel)
	w.Uint8(c.MinorRel)
	w.Uint8(c.HwRev)
	return w.Bytes()
}

// ResetIndPattern matches any ResetInd; the callback carries no fields
// worth filtering on during startup (§4.7 step 3 just awaits the next one).
type ResetIndPattern struct{}

func (ResetIndPattern) Matches(ResetInd) bool { return true }

func decodeResetInd(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return ResetInd{
		Reason:       ResetReason(r.Uint8()),
		TransportRev: r.Uint8(),
		MajorRel:     r.Uint8(),
		MinorRel:     r.Uint8(),
		HwRev:        r.Uint8(),
	}, nil
}

// --- SYS.SetTxPower ------------------------------------------------------

var (
	setTxPowerReqHeader = sysHeader(types.SREQ, 0x14)
	setTxPowerRspHeader = setTxPowerReqHeader.SRSPHeader()
)

// SetTxPowerReq sets the radio's transmit power in dBm (§4.7 step 7).
type SetTxPowerReq struct {
	TXPower int8
}

func (SetTxPowerReq) Header() types.CommandHeader { return setTxPowerReqHeader }

func (r SetTxPowerReq) Encode() []byte {
	w := types.NewWriter(1)
	w.Int8(r.TXPower)
	return w.Bytes()
}

// SetTxPowerRsp's encoding differs by firmware generation (§9 Open
// Questions: "TX power SRSP encoding changed between firmware
// generations"): post-3.0 firmware reports the achieved dBm, older
// firmware a plain Status byte. Decoding stores the byte in TXPower
// whatever the firmware generation and never sets RawStatus; Encode
// writes RawStatus in place of TXPower when it is set.
type SetTxPowerRsp struct {
	TXPower   int8
	RawStatus types.Maybe[uint8]
}

func (SetTxPowerRsp) Header() types.CommandHeader { return setTxPowerRspHeader }

func (r SetTxPowerRsp) Encode() []byte {
	w := types.NewWriter(1)
	if v, ok := r.RawStatus.Get(); ok {
		w.Uint8(v)
	} else {
		w.Int8(r.TXPower)
	}
	return w.Bytes()
}

func decodeSetTxPowerRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	// Both shapes are a single byte on the wire; the raw value is stored
	// as TXPower and is not reinterpreted by firmware generation.
	return SetTxPowerRsp{TXPower: r.Int8()}, nil
}

// --- SYS.OSALNVItemInit --------------------------------------------------

var (
	osalNVItemInitReqHeader = sysHeader(types.SREQ, 0x07)
	osalNVItemInitRspHeader = osalNVItemInitReqHeader.SRSPHeader()
)

// NVStatus is the single-byte status code shared by every legacy OSAL NV
// command.
type NVStatus uint8

const (
	NVStatusSuccess        NVStatus = 0x00
	NVStatusItemUninit     NVStatus = 0x09
	NVStatusBadItemLen     NVStatus = 0x0C
	NVStatusInvalidParameter NVStatus = 0x05
	NVStatusFailure        NVStatus = 0x01
)

func (s NVStatus) String() string {
	switch s {
	case NVStatusSuccess:
		return "SUCCESS"
	case NVStatusItemUninit:
		return "NV_ITEM_UNINIT"
	case NVStatusBadItemLen:
		return "NV_BAD_ITEM_LEN"
	case NVStatusInvalidParameter:
		return "INVALID_PARAMETER"
	case NVStatusFailure:
		return "FAILURE"
	default:
		return types.UnknownName(uint64(s), 1)
	}
}

// OSALNVItemInitReq creates a legacy NV item of InitLen bytes, pre-filled
// with InitData (the first chunk, up to 244 bytes) (§4.5).
type OSALNVItemInitReq struct {
	ID       uint16
	ItemLen  uint16
	InitData []byte
}

func (OSALNVItemInitReq) Header() types.CommandHeader { return osalNVItemInitReqHeader }

func (r OSALNVItemInitReq) Encode() []byte {
	w := types.NewWriter(4 + len(r.InitData))
	w.Uint16(r.ID)
	w.Uint16(r.ItemLen)
	_ = w.ShortBytes(r.InitData)
	return w.Bytes()
}

// OSALNVItemInitRsp reports NVStatusItemUninit on success (meaning
// "created"), matching S5's expectation exactly.
type OSALNVItemInitRsp struct {
	Status NVStatus
}

func (OSALNVItemInitRsp) Header() types.CommandHeader { return osalNVItemInitRspHeader }

func (r OSALNVItemInitRsp) Encode() []byte {
	w := types.NewWriter(1)
	w.Uint8(uint8(r.Status))
	return w.Bytes()
}

func decodeOSALNVItemInitRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return OSALNVItemInitRsp{Status: NVStatus(r.Uint8())}, nil
}

// --- SYS.OSALNVRead / OSALNVWrite / OSALNVWriteExt -----------------------

var (
	osalNVReadReqHeader     = sysHeader(types.SREQ, 0x08)
	osalNVReadRspHeader     = osalNVReadReqHeader.SRSPHeader()
	osalNVWriteReqHeader    = sysHeader(types.SREQ, 0x09)
	osalNVWriteRspHeader    = osalNVWriteReqHeader.SRSPHeader()
	osalNVWriteExtReqHeader = sysHeader(types.SREQ, 0x24)
	osalNVWriteExtRspHeader = osalNVWriteExtReqHeader.SRSPHeader()
	osalNVLengthReqHeader   = sysHeader(types.SREQ, 0x13)
	osalNVLengthRspHeader   = osalNVLengthReqHeader.SRSPHeader()
	osalNVDeleteReqHeader   = sysHeader(types.SREQ, 0x12)
	osalNVDeleteRspHeader   = osalNVDeleteReqHeader.SRSPHeader()
)

// OSALNVReadReq reads up to 244 bytes of a legacy NV item starting at
// Offset (§4.5).
type OSALNVReadReq struct {
	ID     uint16
	Offset uint8
}

func (OSALNVReadReq) Header() types.CommandHeader { return osalNVReadReqHeader }

func (r OSALNVReadReq) Encode() []byte {
	w := types.NewWriter(3)
	w.Uint16(r.ID)
	w.Uint8(r.Offset)
	return w.Bytes()
}

// OSALNVReadRsp carries the chunk read, or a non-success Status
// (§4.5 security fallback triggers on NVStatusInvalidParameter here).
type OSALNVReadRsp struct {
	Status NVStatus
	Value  []byte
}

func (OSALNVReadRsp) Header() types.CommandHeader { return osalNVReadRspHeader }

func (r OSALNVReadRsp) Encode() []byte {
	w := types.NewWriter(2 + len(r.Value))
	w.Uint8(uint8(r.Status))
	_ = w.ShortBytes(r.Value)
	return w.Bytes()
}

func decodeOSALNVReadRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	status := NVStatus(r.Uint8())
	return OSALNVReadRsp{Status: status, Value: r.ShortBytes()}, nil
}

// OSALNVWriteReq writes Value at Offset; the non-Ext variant ignores
// Offset on real firmware, a quirk the nvram package must route around by
// preferring OSALNVWriteExtReq whenever available (§4.5, §9 Open
// Questions).
type OSALNVWriteReq struct {
	ID     uint16
	Offset uint8
	Value  []byte
}

func (OSALNVWriteReq) Header() types.CommandHeader { return osalNVWriteReqHeader }

func (r OSALNVWriteReq) Encode() []byte {
	w := types.NewWriter(3 + len(r.Value))
	w.Uint16(r.ID)
	w.Uint8(r.Offset)
	_ = w.ShortBytes(r.Value)
	return w.Bytes()
}

// OSALNVWriteExtReq is the offset-honoring write; nvram.Store.Write uses it
// for every 244-byte chunk, the first included (§4.5).
type OSALNVWriteExtReq struct {
	ID     uint16
	Offset uint16
	Value  []byte
}

func (OSALNVWriteExtReq) Header() types.CommandHeader { return osalNVWriteExtReqHeader }

func (r OSALNVWriteExtReq) Encode() []byte {
	w := types.NewWriter(4 + len(r.Value))
	w.Uint16(r.ID)
	w.Uint16(r.Offset)
	_ = w.ShortBytes(r.Value)
	return w.Bytes()
}

// nvWriteStatus is the single status byte shared by every legacy/extended
// NV write response; it has no Header of its own, only its named wrapper
// types below do, since OSALNVWrite, OSALNVWriteExt, and NVWrite are
// distinct SRSPs with this one shape.
type nvWriteStatus struct {
	Status NVStatus
}

func (r nvWriteStatus) Encode() []byte {
	w := types.NewWriter(1)
	w.Uint8(uint8(r.Status))
	return w.Bytes()
}

// OSALNVWriteRsp is SYS.OSALNVWrite's SRSP.
type OSALNVWriteRsp struct{ nvWriteStatus }

func (OSALNVWriteRsp) Header() types.CommandHeader { return osalNVWriteRspHeader }

// OSALNVWriteExtRsp is SYS.OSALNVWriteExt's SRSP.
type OSALNVWriteExtRsp struct{ nvWriteStatus }

func (OSALNVWriteExtRsp) Header() types.CommandHeader { return osalNVWriteExtRspHeader }

func decodeOSALNVWriteRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return OSALNVWriteRsp{nvWriteStatus{Status: NVStatus(r.Uint8())}}, nil
}

func decodeOSALNVWriteExtRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return OSALNVWriteExtRsp{nvWriteStatus{Status: NVStatus(r.Uint8())}}, nil
}

// OSALNVLengthReq asks for a legacy NV item's current length; the coprocessor
// answers length=0 for an absent item (§4.5).
type OSALNVLengthReq struct {
	ID uint16
}

func (OSALNVLengthReq) Header() types.CommandHeader { return osalNVLengthReqHeader }

func (r OSALNVLengthReq) Encode() []byte {
	w := types.NewWriter(2)
	w.Uint16(r.ID)
	return w.Bytes()
}

// OSALNVLengthRsp's SRSP has no Status byte on real firmware: the bare
// length, 0 meaning absent.
type OSALNVLengthRsp struct {
	Length uint8
}

func (OSALNVLengthRsp) Header() types.CommandHeader { return osalNVLengthRspHeader }

func (r OSALNVLengthRsp) Encode() []byte {
	w := types.NewWriter(1)
	w.Uint8(r.Length)
	return w.Bytes()
}

func decodeOSALNVLengthRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return OSALNVLengthRsp{Length: r.Uint8()}, nil
}

// OSALNVDeleteReq deletes a legacy NV item, the coprocessor rejecting the
// call if ItemLen does not match the stored length (§4.5).
type OSALNVDeleteReq struct {
	ID      uint16
	ItemLen uint16
}

func (OSALNVDeleteReq) Header() types.CommandHeader { return osalNVDeleteReqHeader }

func (r OSALNVDeleteReq) Encode() []byte {
	w := types.NewWriter(4)
	w.Uint16(r.ID)
	w.Uint16(r.ItemLen)
	return w.Bytes()
}

// OSALNVDeleteRsp reports whether the delete succeeded.
type OSALNVDeleteRsp struct {
	Status NVStatus
}

func (OSALNVDeleteRsp) Header() types.CommandHeader { return osalNVDeleteRspHeader }

func (r OSALNVDeleteRsp) Encode() []byte {
	w := types.NewWriter(1)
	w.Uint8(uint8(r.Status))
	return w.Bytes()
}

func decodeOSALNVDeleteRsp(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return OSALNVDeleteRsp{Status: NVStatus(r.Uint8())}, nil
}

func init() {
	register(Def{Header: pingReqHeader, Name: "SYS.Ping.Req", Decode: decodePingReq, Generation: GenerationAny})
	register(Def{Header: pingRspHeader, Name: "SYS.Ping.Rsp", Decode: decodePingRsp, Generation: GenerationAny})
	register(Def{Header: versionReqHeader, Name: "SYS.Version.Req", Decode: decodeVersionReq, Generation: GenerationAny})
	register(Def{Header: versionRspHeader, Name: "SYS.Version.Rsp", Decode: decodeVersionRsp, Generation: GenerationAny})
	register(Def{Header: resetIndHeader, Name: "SYS.ResetInd", Decode: decodeResetInd, Generation: GenerationAny})
	register(Def{Header: setTxPowerRspHeader, Name: "SYS.SetTxPower.Rsp", Decode: decodeSetTxPowerRsp, Generation: GenerationAny})
	register(Def{Header: osalNVItemInitRspHeader, Name: "SYS.OSALNVItemInit.Rsp", Decode: decodeOSALNVItemInitRsp, Generation: GenerationAny})
	register(Def{Header: osalNVReadRspHeader, Name: "SYS.OSALNVRead.Rsp", Decode: decodeOSALNVReadRsp, Generation: GenerationAny})
	register(Def{Header: osalNVWriteRspHeader, Name: "SYS.OSALNVWrite.Rsp", Decode: decodeOSALNVWriteRsp, Generation: GenerationAny})
	register(Def{Header: osalNVWriteExtRspHeader, Name: "SYS.OSALNVWriteExt.Rsp", Decode: decodeOSALNVWriteExtRsp, Generation: GenerationAny})
	register(Def{Header: osalNVLengthRspHeader, Name: "SYS.OSALNVLength.Rsp", Decode: decodeOSALNVLengthRsp, Generation: GenerationAny})
	register(Def{Header: osalNVDeleteRspHeader, Name: "SYS.OSALNVDelete.Rsp", Decode: decodeOSALNVDeleteRsp, Generation: GenerationAny})
}
