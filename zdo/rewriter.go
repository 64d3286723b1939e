// Package zdo rewrites Zigbee-stack ZDO requests onto the MT ZDO.* commands
// this coprocessor actually exposes, and synthesizes standard ZDO responses
// from whatever the coprocessor hands back, injecting them upstream as if
// they had arrived over the air on the AF endpoint (§4.8).
//
// Nine clusters are covered: Node_Desc_req, Active_EP_req, Simple_Desc_req,
// Mgmt_Permit_Joining_req, Mgmt_Leave_req, Bind_req, Mgmt_Lqi_req,
// Mgmt_Rtg_req, Mgmt_NWK_Update_req. Permit-join in particular must go
// through ZDO.MgmtPermitJoinReq rather than a raw AF message, or the
// coordinator withholds the network key during the join window.
package zdo

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/go-zigbee/znp/commands"
	"github.com/go-zigbee/znp/logging"
	"github.com/go-zigbee/znp/types"
	"github.com/go-zigbee/znp/znp"
)

// Standard Zigbee ZDO cluster IDs for the requests this package rewrites
// and the responses it synthesizes — the well-known constants from the
// Zigbee ZDP cluster library.
const (
	ClusterNodeDescRsp          uint16 = 0x8002
	ClusterActiveEPRsp          uint16 = 0x8005
	ClusterSimpleDescRsp        uint16 = 0x8004
	ClusterMgmtPermitJoiningRsp uint16 = 0x8036
	ClusterMgmtLeaveRsp         uint16 = 0x8034
	ClusterBindRsp              uint16 = 0x8021
	ClusterMgmtLqiRsp           uint16 = 0x8031
	ClusterMgmtRtgRsp           uint16 = 0x8032
	ClusterMgmtNWKUpdateNotify  uint16 = 0x8038
)

// dispatcher is the subset of *znp.ZNP the rewriter needs.
type dispatcher interface {
	Request(ctx context.Context, req commands.Command, expect znp.BoundPattern) (commands.Command, error)
	RequestCallbackRsp(ctx context.Context, req commands.Command, reqExpect, callbackExpect znp.BoundPattern) (commands.Command, error)
}

// Emit is the seam a Rewriter injects synthesized ZDO responses through,
// as if they had arrived as an AF.IncomingMsg on endpoint 0.
type Emit func(commands.IncomingMsg)

// Rewriter implements the ZDO cluster rewrite described in §4.8.
type Rewriter struct {
	znp  dispatcher
	emit Emit
	log  zerolog.Logger
}

// New builds a Rewriter that issues MT requests through z and injects
// synthesized responses through emit.
func New(z dispatcher, emit Emit) *Rewriter {
	return &Rewriter{znp: z, emit: emit, log: logging.For("zdo")}
}

func (r *Rewriter) emitResponse(clusterID, srcAddr uint16, payload []byte) {
	r.emit(commands.IncomingMsg{
		ClusterID:   clusterID,
		SrcAddr:     srcAddr,
		SrcEndpoint: 0,
		DstEndpoint: 0,
		TSN:         payload[0],
		Data:        payload,
	})
}

// --- descriptor / table requests: SRSP only acknowledges, the real data
// arrives on a companion AREQ callback -----------------------------------

// NodeDescReq rewrites a Node_Desc_req onto ZDO.NodeDescReq and, once
// NodeDescInd arrives, injects a Node_Desc_rsp carrying dev's descriptor.
func (r *Rewriter) NodeDescReq(ctx context.Context, tsn uint8, dst, nwkAddrOfInterest uint16) error {
	req := commands.NodeDescReq{Dst: dst, NWKAddrOfInterest: nwkAddrOfInterest}
	rsp, err := r.znp.RequestCallbackRsp(ctx,
		req,
		znp.MatchStatusRsp(req.Header().SRSPHeader()),
		znp.Match[commands.NodeDescInd](commands.NodeDescIndPattern{NWKAddr: types.Some(nwkAddrOfInterest)}),
	)
	if err != nil {
		return fmt.Errorf("zdo: node desc req: %w", err)
	}
	ind := rsp.(commands.NodeDescInd)

	w := types.NewWriter(5 + len(ind.Descriptor))
	w.Uint8(tsn)
	w.Uint8(uint8(ind.Status))
	w.Uint16(ind.NWKAddr)
	w.FixedBytes(ind.Descriptor)
	r.emitResponse(ClusterNodeDescRsp, ind.SrcAddr, w.Bytes())
	return nil
}

// ActiveEPReq rewrites an Active_EP_req onto ZDO.ActiveEPReq and injects
// an Active_EP_rsp once ActiveEPInd arrives.
func (r *Rewriter) ActiveEPReq(ctx context.Context, tsn uint8, dst, nwkAddrOfInterest uint16) error {
	req := commands.ActiveEPReq{Dst: dst, NWKAddrOfInterest: nwkAddrOfInterest}
	rsp, err := r.znp.RequestCallbackRsp(ctx,
		req,
		znp.MatchStatusRsp(req.Header().SRSPHeader()),
		znp.Match[commands.ActiveEPInd](commands.ActiveEPIndPattern{}),
	)
	if err != nil {
		return fmt.Errorf("zdo: active ep req: %w", err)
	}
	ind := rsp.(commands.ActiveEPInd)

	w := types.NewWriter(6 + len(ind.Endpoints))
	w.Uint8(tsn)
	w.Uint8(uint8(ind.Status))
	w.Uint16(ind.NWKAddr)
	w.Uint8(uint8(len(ind.Endpoints)))
	w.FixedBytes(ind.Endpoints)
	r.emitResponse(ClusterActiveEPRsp, ind.SrcAddr, w.Bytes())
	return nil
}

// SimpleDescReq rewrites a Simple_Desc_req onto ZDO.SimpleDescReq and
// injects a Simple_Desc_rsp once SimpleDescInd arrives.
func (r *Rewriter) SimpleDescReq(ctx context.Context, tsn uint8, dst, nwkAddrOfInterest uint16, endpoint uint8) error {
	req := commands.SimpleDescReq{Dst: dst, NWKAddrOfInterest: nwkAddrOfInterest, Endpoint: endpoint}
	rsp, err := r.znp.RequestCallbackRsp(ctx,
		req,
		znp.MatchStatusRsp(req.Header().SRSPHeader()),
		znp.Match[commands.SimpleDescInd](commands.SimpleDescIndPattern{}),
	)
	if err != nil {
		return fmt.Errorf("zdo: simple desc req: %w", err)
	}
	ind := rsp.(commands.SimpleDescInd)

	w := types.NewWriter(6 + len(ind.Descriptor))
	w.Uint8(tsn)
	w.Uint8(uint8(ind.Status))
	w.Uint16(ind.NWKAddr)
	w.Uint8(uint8(len(ind.Descriptor)))
	w.FixedBytes(ind.Descriptor)
	r.emitResponse(ClusterSimpleDescRsp, ind.SrcAddr, w.Bytes())
	return nil
}

// MgmtLqiReq rewrites a Mgmt_Lqi_req onto ZDO.MgmtLqiReq and injects a
// Mgmt_Lqi_rsp carrying the neighbor-table page once MgmtLqiInd arrives.
func (r *Rewriter) MgmtLqiReq(ctx context.Context, tsn uint8, dst uint16, startIndex uint8) error {
	req := commands.MgmtLqiReq{Dst: dst, StartIndex: startIndex}
	rsp, err := r.znp.RequestCallbackRsp(ctx,
		req,
		znp.MatchStatusRsp(req.Header().SRSPHeader()),
		znp.Match[commands.MgmtLqiInd](commands.MgmtLqiIndPattern{}),
	)
	if err != nil {
		return fmt.Errorf("zdo: mgmt lqi req: %w", err)
	}
	ind := rsp.(commands.MgmtLqiInd)
	r.emitResponse(ClusterMgmtLqiRsp, ind.SrcAddr, statusAndDataPayload(tsn, ind.Status, ind.Data))
	return nil
}

// MgmtRtgReq rewrites a Mgmt_Rtg_req onto ZDO.MgmtRtgReq and injects a
// Mgmt_Rtg_rsp carrying the routing-table page once MgmtRtgInd arrives.
func (r *Rewriter) MgmtRtgReq(ctx context.Context, tsn uint8, dst uint16, startIndex uint8) error {
	req := commands.MgmtRtgReq{Dst: dst, StartIndex: startIndex}
	rsp, err := r.znp.RequestCallbackRsp(ctx,
		req,
		znp.MatchStatusRsp(req.Header().SRSPHeader()),
		znp.Match[commands.MgmtRtgInd](commands.MgmtRtgIndPattern{}),
	)
	if err != nil {
		return fmt.Errorf("zdo: mgmt rtg req: %w", err)
	}
	ind := rsp.(commands.MgmtRtgInd)
	r.emitResponse(ClusterMgmtRtgRsp, ind.SrcAddr, statusAndDataPayload(tsn, ind.Status, ind.Data))
	return nil
}

// MgmtNWKUpdateReq rewrites a Mgmt_NWK_Update_req onto ZDO.MgmtNWKUpdateReq
// and injects a Mgmt_NWK_Update_notify once MgmtNWKUpdateInd arrives.
func (r *Rewriter) MgmtNWKUpdateReq(ctx context.Context, tsn uint8, dst uint16, dstAddrMode commands.AddrMode, channels uint32, scanDuration, scanCount uint8, nwkManagerAddr uint16) error {
	req := commands.MgmtNWKUpdateReq{
		Dst: dst, DstAddrMode: dstAddrMode, Channels: channels,
		ScanDuration: scanDuration, ScanCount: scanCount, NwkManagerAddr: nwkManagerAddr,
	}
	rsp, err := r.znp.RequestCallbackRsp(ctx,
		req,
		znp.MatchStatusRsp(req.Header().SRSPHeader()),
		znp.Any[commands.MgmtNWKUpdateInd](),
	)
	if err != nil {
		return fmt.Errorf("zdo: mgmt nwk update req: %w", err)
	}
	ind := rsp.(commands.MgmtNWKUpdateInd)

	w := types.NewWriter(11 + len(ind.EnergyValues))
	w.Uint8(tsn)
	w.Uint8(uint8(ind.Status))
	w.Uint32(ind.ScannedChannels)
	w.Uint16(ind.TotalTransmissions)
	w.Uint16(ind.TransmissionFailures)
	w.Uint8(uint8(len(ind.EnergyValues)))
	w.FixedBytes(ind.EnergyValues)
	r.emitResponse(ClusterMgmtNWKUpdateNotify, ind.SrcAddr, w.Bytes())
	return nil
}

// EnergyScanResult is the per-channel noise-floor reading a Mgmt_NWK_Update
// energy scan returns (§4.9).
type EnergyScanResult struct {
	ScannedChannels uint32
	EnergyValues    []uint8
}

// EnergyScan issues an energy-detect scan across channels via the same
// ZDO.MgmtNWKUpdateReq/MgmtNWKUpdateInd pair MgmtNWKUpdateReq rewrites, but
// with ScanCount set: that mode asks the coprocessor to report per-channel
// energy readings instead of applying a channel change, so NwkManagerAddr
// is unused and the result is returned to the caller directly rather than
// synthesized as an incoming ZDO response.
func (r *Rewriter) EnergyScan(ctx context.Context, dst uint16, channels uint32, scanDuration, scanCount uint8) (EnergyScanResult, error) {
	if scanCount == 0 {
		return EnergyScanResult{}, fmt.Errorf("zdo: energy scan: scanCount must be nonzero")
	}

	req := commands.MgmtNWKUpdateReq{
		Dst: dst, DstAddrMode: commands.AddrModeNWK, Channels: channels,
		ScanDuration: scanDuration, ScanCount: scanCount,
	}
	rsp, err := r.znp.RequestCallbackRsp(ctx,
		req,
		znp.MatchStatusRsp(req.Header().SRSPHeader()),
		znp.Any[commands.MgmtNWKUpdateInd](),
	)
	if err != nil {
		return EnergyScanResult{}, fmt.Errorf("zdo: energy scan: %w", err)
	}

	ind := rsp.(commands.MgmtNWKUpdateInd)
	if ind.Status != commands.StatusSuccess {
		return EnergyScanResult{}, fmt.Errorf("zdo: energy scan: status %s", ind.Status)
	}
	return EnergyScanResult{ScannedChannels: ind.ScannedChannels, EnergyValues: ind.EnergyValues}, nil
}

// --- direct-acknowledgement requests: the SRSP's Status is the ZDO
// response, no companion AREQ carries anything further -------------------

// MgmtPermitJoiningReq rewrites a Mgmt_Permit_Joining_req onto
// ZDO.MgmtPermitJoinReq — the only path that keeps the network key
// available to joining devices — and injects a Mgmt_Permit_Joining_rsp
// from the SRSP's Status.
func (r *Rewriter) MgmtPermitJoiningReq(ctx context.Context, tsn uint8, addrMode commands.AddrMode, dst uint16, duration, tcSignificance uint8) error {
	req := commands.MgmtPermitJoinReq{AddrMode: addrMode, Dst: dst, Duration: duration, TCSignificance: tcSignificance}
	rsp, err := r.znp.Request(ctx, req, znp.MatchStatusRsp(req.Header().SRSPHeader()))
	if err != nil {
		return fmt.Errorf("zdo: mgmt permit joining req: %w", err)
	}
	status := rsp.(commands.StatusRsp).Status
	r.emitResponse(ClusterMgmtPermitJoiningRsp, dst, statusOnlyPayload(tsn, status))
	return nil
}

// MgmtLeaveReq rewrites a Mgmt_Leave_req onto ZDO.MgmtLeaveReq and injects
// a Mgmt_Leave_rsp from the SRSP's Status.
func (r *Rewriter) MgmtLeaveReq(ctx context.Context, tsn uint8, dst uint16, ieee [8]byte, options commands.LeaveOptions) error {
	req := commands.MgmtLeaveReq{Dst: dst, IEEE: ieee, Options: options}
	rsp, err := r.znp.Request(ctx, req, znp.MatchStatusRsp(req.Header().SRSPHeader()))
	if err != nil {
		return fmt.Errorf("zdo: mgmt leave req: %w", err)
	}
	status := rsp.(commands.StatusRsp).Status
	r.emitResponse(ClusterMgmtLeaveRsp, dst, statusOnlyPayload(tsn, status))
	return nil
}

// BindReq rewrites a Bind_req onto ZDO.BindReq and injects a Bind_rsp from
// the SRSP's Status.
func (r *Rewriter) BindReq(ctx context.Context, tsn uint8, dst uint16, srcAddr [8]byte, srcEndpoint uint8, clusterID uint16, dstAddrMode commands.AddrMode, dstAddr [8]byte, dstEndpoint uint8) error {
	req := commands.BindReq{
		Dst: dst, SrcAddr: srcAddr, SrcEndpoint: srcEndpoint, ClusterID: clusterID,
		DstAddrMode: dstAddrMode, DstAddr: dstAddr, DstEndpoint: dstEndpoint,
	}
	rsp, err := r.znp.Request(ctx, req, znp.MatchStatusRsp(req.Header().SRSPHeader()))
	if err != nil {
		return fmt.Errorf("zdo: bind req: %w", err)
	}
	status := rsp.(commands.StatusRsp).Status
	r.emitResponse(ClusterBindRsp, dst, statusOnlyPayload(tsn, status))
	return nil
}

func statusOnlyPayload(tsn uint8, status commands.Status) []byte {
	w := types.NewWriter(2)
	w.Uint8(tsn)
	w.Uint8(uint8(status))
	return w.Bytes()
}

func statusAndDataPayload(tsn uint8, status commands.Status, data []byte) []byte {
	w := types.NewWriter(2 + len(data))
	w.Uint8(tsn)
	w.Uint8(uint8(status))
	w.FixedBytes(data)
	return w.Bytes()
}
