package commands

import "github.com/go-zigbee/znp/types"

// APP_CONFIG subsystem: the Base Device Behavior commissioning commands
// that drive network formation (§4.7 form-network).

func appConfigHeader(t types.CommandType, id uint8) types.CommandHeader {
	return types.NewCommandHeader(t, types.SubsystemAPPConfig, id)
}

// BDBCommissioningMode is a bitmask selecting which BDB commissioning
// procedures BDBStartCommissioningReq runs.
type BDBCommissioningMode uint8

const (
	BDBCommissioningModeNone               BDBCommissioningMode = 0
	BDBCommissioningModeInitiatorTouchLink BDBCommissioningMode = 1 << 0
	BDBCommissioningModeNwkSteering        BDBCommissioningMode = 1 << 1
	BDBCommissioningModeNwkFormation       BDBCommissioningMode = 1 << 2
	BDBCommissioningModeFindingBinding     BDBCommissioningMode = 1 << 3
	BDBCommissioningModeTouchlink          BDBCommissioningMode = 1 << 4
	BDBCommissioningModeParentLost         BDBCommissioningMode = 1 << 5
)

var bdbCommissioningModeNames = []types.FlagName{
	{Bit: uint32(BDBCommissioningModeInitiatorTouchLink), Name: "InitiatorTouchLink"},
	{Bit: uint32(BDBCommissioningModeNwkSteering), Name: "NwkSteering"},
	{Bit: uint32(BDBCommissioningModeNwkFormation), Name: "NwkFormation"},
	{Bit: uint32(BDBCommissioningModeFindingBinding), Name: "FindingBinding"},
	{Bit: uint32(BDBCommissioningModeTouchlink), Name: "Touchlink"},
	{Bit: uint32(BDBCommissioningModeParentLost), Name: "ParentLost"},
}

func (m BDBCommissioningMode) String() string {
	return types.FormatFlags("BDBCommissioningMode", uint32(m), bdbCommissioningModeNames)
}

// BDBCommissioningStatus reports the outcome of a BDB procedure.
type BDBCommissioningStatus uint8

const (
	BDBCommissioningStatusSuccess             BDBCommissioningStatus = 0x00
	BDBCommissioningStatusInProgress          BDBCommissioningStatus = 0x01
	BDBCommissioningStatusNoNetwork           BDBCommissioningStatus = 0x02
	BDBCommissioningStatusFormationFailure    BDBCommissioningStatus = 0x08
	BDBCommissioningStatusNetworkRestored     BDBCommissioningStatus = 0x0D
	BDBCommissioningStatusFailure             BDBCommissioningStatus = 0x0E
)

func (s BDBCommissioningStatus) String() string {
	switch s {
	case BDBCommissioningStatusSuccess:
		return "Success"
	case BDBCommissioningStatusInProgress:
		return "InProgress"
	case BDBCommissioningStatusNoNetwork:
		return "NoNetwork"
	case BDBCommissioningStatusFormationFailure:
		return "FormationFailure"
	case BDBCommissioningStatusNetworkRestored:
		return "NetworkRestored"
	case BDBCommissioningStatusFailure:
		return "Failure"
	default:
		return types.UnknownName(uint64(s), 1)
	}
}

var (
	bdbStartCommissioningReqHeader = appConfigHeader(types.SREQ, 0x05)
	bdbStartCommissioningRspHeader = bdbStartCommissioningReqHeader.SRSPHeader()
)

// BDBStartCommissioningReq kicks off one or more BDB procedures; forming a
// new network is Mode=NwkFormation, joining an existing one is
// Mode=NwkSteering (§4.7).
type BDBStartCommissioningReq struct {
	Mode BDBCommissioningMode
}

func (BDBStartCommissioningReq) Header() types.CommandHeader { return bdbStartCommissioningReqHeader }

func (r BDBStartCommissioningReq) Encode() []byte {
	w := types.NewWriter(1)
	w.Uint8(uint8(r.Mode))
	return w.Bytes()
}

var bdbSetChannelReqHeader = appConfigHeader(types.SREQ, 0x08)

// BDBSetChannelReq sets BDB's primary or secondary channel mask, consumed
// before BDBStartCommissioningReq(NwkFormation) during network formation.
type BDBSetChannelReq struct {
	IsPrimary bool
	Channels  uint32
}

func (BDBSetChannelReq) Header() types.CommandHeader { return bdbSetChannelReqHeader }

func (r BDBSetChannelReq) Encode() []byte {
	w := types.NewWriter(5)
	w.Uint8(boolToUint8(r.IsPrimary))
	w.Uint32(r.Channels)
	return w.Bytes()
}

var bdbCommissioningNotificationHeader = appConfigHeader(types.AREQ, 0x80)

// BDBCommissioningNotification reports progress of a started BDB procedure;
// the controller awaits one with Mode=NwkFormation to learn whether
// formation succeeded (§4.7).
type BDBCommissioningNotification struct {
	Status         BDBCommissioningStatus
	Mode           BDBCommissioningMode
	RemainingModes BDBCommissioningMode
}

func (BDBCommissioningNotification) Header() types.CommandHeader {
	return bdbCommissioningNotificationHeader
}

func (c BDBCommissioningNotification) Encode() []byte {
	w := types.NewWriter(3)
	w.Uint8(uint8(c.Status))
	w.Uint8(uint8(c.Mode))
	w.Uint8(uint8(c.RemainingModes))
	return w.Bytes()
}

// BDBCommissioningNotificationPattern matches by an optionally-bound Mode,
// letting a caller wait specifically for the NwkFormation notification
// while other BDB procedures run concurrently.
type BDBCommissioningNotificationPattern struct {
	Mode types.Maybe[BDBCommissioningMode]
}

func (p BDBCommissioningNotificationPattern) Matches(c BDBCommissioningNotification) bool {
	return types.MatchesEq(p.Mode, c.Mode)
}

func decodeBDBCommissioningNotification(_ types.CommandHeader, payload []byte) (Command, error) {
	r := types.NewReader(payload)
	return BDBCommissioningNotification{
		Status:         BDBCommissioningStatus(r.Uint8()),
		Mode:           BDBCommissioningMode(r.Uint8()),
		RemainingModes: BDBCommissioningMode(r.Uint8()),
	}, nil
}

func init() {
	register(Def{Header: bdbStartCommissioningRspHeader, Name: "APPConfig.BDBStartCommissioning.Rsp", Decode: decodeStatusRsp(bdbStartCommissioningRspHeader), Generation: GenerationZStack30})
	register(Def{Header: bdbSetChannelReqHeader.SRSPHeader(), Name: "APPConfig.BDBSetChannel.Rsp", Decode: decodeStatusRsp(bdbSetChannelReqHeader.SRSPHeader()), Generation: GenerationZStack30})
	register(Def{Header: bdbCommissioningNotificationHeader, Name: "APPConfig.BDBCommissioningNotification", Decode: decodeBDBCommissioningNotification, Generation: GenerationZStack30})
}
