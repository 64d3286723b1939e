package zigbee

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-zigbee/znp/commands"
	"github.com/go-zigbee/znp/types"
	"github.com/go-zigbee/znp/znp"
	"github.com/go-zigbee/znp/znperrors"
)

// Well-known Z-Stack MT delivery-status byte values the recovery ladder
// switches on (§4.7 "Data-request path"). These never appear in
// commands.Status's named constants because most AF/ZDO SRSPs only ever
// report SUCCESS/FAILURE; DataConfirm is the one callback that surfaces the
// NWK/MAC layer's richer status space.
const (
	statusNWKNoRoute            commands.Status = 0xCD
	statusMACTransactionExpired commands.Status = 0xF0
	statusMACNoACK              commands.Status = 0xE9
)

// DataRequest describes one outbound APS data request (§4.7 "Data-request
// path"). SrcEndpoint and TSN correlate the eventual AF.DataConfirm back to
// this call.
type DataRequest struct {
	DstAddrMode commands.AddrMode
	DstNWK      uint16
	DstIEEE     [8]byte
	DstEndpoint uint8
	SrcEndpoint uint8
	ClusterID   uint16
	TSN         uint8
	Options     commands.TransmitOptions
	Radius      uint8
	Data        []byte
}

func (r DataRequest) dstAddr() [8]byte {
	if r.DstAddrMode == commands.AddrModeIEEE {
		return r.DstIEEE
	}
	var addr [8]byte
	addr[0] = byte(r.DstNWK)
	addr[1] = byte(r.DstNWK >> 8)
	return addr
}

// routeDiscovery is one in-flight ZDO.ExtRouteDisc call; every data request
// that arrives for the same destination while it is running waits on done
// instead of issuing its own (§4.7: "coalesce concurrent route discoveries
// for the same destination").
type routeDiscovery struct {
	done chan struct{}
	err  error
}

// routeDiscoveryCoalescer deduplicates route discoveries by NWK destination
// address. It is deliberately a hand-rolled map+mutex rather than
// golang.org/x/sync/singleflight: singleflight keys on an opaque string and
// discards callers that arrive after the call completes but before Forget
// runs, which would silently skip a discovery a late caller actually needed.
type routeDiscoveryCoalescer struct {
	mu       sync.Mutex
	inFlight map[uint16]*routeDiscovery
}

// run executes fn for dst if no discovery is already in flight, otherwise
// waits for the existing one and returns its result.
func (rc *routeDiscoveryCoalescer) run(ctx context.Context, dst uint16, fn func() error) error {
	rc.mu.Lock()
	if d, ok := rc.inFlight[dst]; ok {
		rc.mu.Unlock()
		select {
		case <-d.done:
			return d.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d := &routeDiscovery{done: make(chan struct{})}
	rc.inFlight[dst] = d
	rc.mu.Unlock()

	d.err = fn()
	close(d.done)

	rc.mu.Lock()
	delete(rc.inFlight, dst)
	rc.mu.Unlock()

	return d.err
}

// SendData drives one data request through the AF path: acquire a
// concurrency slot, send, and on a recoverable delivery failure walk the
// four-step recovery ladder of §4.7 before giving up.
func (c *Controller) SendData(ctx context.Context, req DataRequest) error {
	c.semMu.Lock()
	sem := c.sem
	c.semMu.Unlock()
	if sem == nil {
		return fmt.Errorf("zigbee: send data: not connected")
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("zigbee: send data: acquiring concurrency slot: %w", err)
	}
	defer sem.Release(1)

	status, err := c.deliver(ctx, req)
	if err == nil && status == commands.StatusSuccess {
		c.metrics.RecordDataRequest("success")
		return nil
	}

	if recErr := c.recoverDelivery(ctx, req, status, err); recErr != nil {
		c.metrics.RecordDataRequest("failure")
		return recErr
	}
	c.metrics.RecordDataRequest("recovered")
	return nil
}

// deliver issues one AF.DataRequestExt and waits for its correlating
// AF.DataConfirm. The confirm wait is shielded from ctx cancellation until
// DataConfirmTimeout elapses (§5: "a caller's cancellation stops a request
// from being retried, but never aborts a data request already in flight") —
// RequestCallbackRsp is given a context derived from context.Background(),
// not ctx, so a cancelled caller still gets an accurate DataConfirm.Status
// instead of an artificial cancellation error.
func (c *Controller) deliver(ctx context.Context, req DataRequest) (commands.Status, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	mtReq := commands.DataRequestExtReq{
		DstAddrMode: req.DstAddrMode,
		DstAddr:     req.dstAddr(),
		DstEndpoint: req.DstEndpoint,
		SrcEndpoint: req.SrcEndpoint,
		ClusterID:   req.ClusterID,
		TSN:         req.TSN,
		Options:     req.Options,
		Radius:      req.Radius,
		Data:        req.Data,
	}

	confirmPattern := znp.Match[commands.DataConfirm](commands.DataConfirmPattern{
		Endpoint: types.Some(req.SrcEndpoint),
		TSN:      types.Some(req.TSN),
	})

	shieldCtx, cancel := context.WithTimeout(context.Background(), c.cfg.DataConfirmTimeout)
	defer cancel()

	rsp, err := c.znp.RequestCallbackRsp(shieldCtx, mtReq, znp.MatchStatusRsp(mtReq.Header().SRSPHeader()), confirmPattern)
	if err != nil {
		if errors.Is(err, znperrors.ErrTimeout) {
			return 0, fmt.Errorf("zigbee: send data: no confirm within %s: %w", c.cfg.DataConfirmTimeout, err)
		}
		return 0, fmt.Errorf("zigbee: send data: %w", err)
	}
	return rsp.(commands.DataConfirm).Status, nil
}

// recoverDelivery walks the four-step recovery ladder of §4.7 in order,
// retrying deliver after each repair attempt that succeeds. It gives up and
// returns the most recent failure once a step can't help or isn't
// applicable to status.
func (c *Controller) recoverDelivery(ctx context.Context, req DataRequest, status commands.Status, deliverErr error) error {
	if deliverErr != nil && !errors.Is(deliverErr, znperrors.ErrTimeout) {
		return deliverErr
	}

	// Step 1: NWK_NO_ROUTE, or a confirm timeout (which looks the same from
	// the application's point of view), triggers coalesced route discovery.
	if deliverErr != nil || status == statusNWKNoRoute {
		if err := c.routeDisc.run(ctx, req.DstNWK, func() error {
			return c.discoverRoute(ctx, req.DstNWK)
		}); err != nil {
			return fmt.Errorf("zigbee: recovering delivery: route discovery: %w", err)
		}
		status, deliverErr = c.deliver(ctx, req)
		if deliverErr == nil && status == commands.StatusSuccess {
			return nil
		}
	}

	// Step 2: MAC_TRANSACTION_EXPIRED means the association-table entry has
	// gone stale; remove and re-add it to force the stack to treat the
	// device as freshly joined.
	if status == statusMACTransactionExpired {
		if err := c.repairAssociation(ctx, req.DstNWK, req.DstIEEE); err != nil {
			return fmt.Errorf("zigbee: recovering delivery: repairing association: %w", err)
		}
		status, deliverErr = c.deliver(ctx, req)
		if deliverErr == nil && status == commands.StatusSuccess {
			return nil
		}
	}

	// Step 3: a persistent MAC_NO_ACK against a NWK address is retried once
	// addressed by IEEE instead, in case the NWK address changed under us.
	if status == statusMACNoACK && req.DstAddrMode == commands.AddrModeNWK && req.DstIEEE != ([8]byte{}) {
		ieeeReq := req
		ieeeReq.DstAddrMode = commands.AddrModeIEEE
		status, deliverErr = c.deliver(ctx, ieeeReq)
		if deliverErr == nil && status == commands.StatusSuccess {
			return nil
		}
	}

	// Step 4: fall back to a source-routed send (see sendSourceRouted),
	// then to a final plain unicast if that still doesn't land.
	if err := c.sendSourceRouted(ctx, req); err == nil {
		return nil
	}
	status, deliverErr = c.deliver(ctx, req)
	if deliverErr == nil && status == commands.StatusSuccess {
		return nil
	}

	if deliverErr != nil {
		return fmt.Errorf("zigbee: delivery failed: %w: %w", znperrors.ErrDelivery, deliverErr)
	}
	return fmt.Errorf("zigbee: delivery failed: status %s: %w", status, znperrors.ErrDelivery)
}

// discoverRoute issues ZDO.ExtRouteDisc for dst and waits for its SRSP
// (§4.7 step 1). The SRSP only acknowledges the discovery was started, not
// that a route was found; deliver's retry is what actually tells us.
func (c *Controller) discoverRoute(ctx context.Context, dst uint16) error {
	req := commands.ExtRouteDiscReq{
		Dst:     dst,
		Options: commands.RouteDiscoveryUnicast,
		Radius:  0,
	}
	rsp, err := c.znp.Request(ctx, req, znp.MatchStatusRsp(req.Header().SRSPHeader()))
	if err != nil {
		return err
	}
	if status := rsp.(commands.StatusRsp).Status; status != commands.StatusSuccess {
		return fmt.Errorf("route discovery refused: status %s", status)
	}
	return nil
}

// repairAssociation drops and re-adds ieee's association-table entry
// (§4.7 step 2). Firmware that lacks UTIL.AssocRemove/AssocAdd (pre-3.0)
// answers CommandNotRecognized; that's treated as "nothing to repair", not
// as an error, since the ladder still has steps 3 and 4 left to try.
func (c *Controller) repairAssociation(ctx context.Context, nwk uint16, ieee [8]byte) error {
	removeReq := commands.AssocRemoveReq{IEEE: ieee}
	_, err := c.znp.Request(ctx, removeReq, znp.MatchStatusRsp(removeReq.Header().SRSPHeader()))
	if errors.Is(err, znperrors.ErrCommandNotRecognized) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("assoc remove: %w", err)
	}

	addReq := commands.AssocAddReq{
		NWK:          nwk,
		IEEE:         ieee,
		NodeRelation: commands.NodeRelationNone,
	}
	_, err = c.znp.Request(ctx, addReq, znp.MatchStatusRsp(addReq.Header().SRSPHeader()))
	if err != nil {
		return fmt.Errorf("assoc add: %w", err)
	}
	return nil
}

// sendSourceRouted is the recovery ladder's source-routing step (§4.7 step 4). MT
// exposes no command that reads back a route's cached hop list, so this
// relies on whatever route the firmware's own route discovery already
// cached: it resends through AF.DataRequestSrcRtg with an empty relay list,
// which tells the firmware to consult its own route record rather than
// repeat the direct-unicast path DataRequestExt took. recoverDelivery
// follows a failure here with one last plain unicast.
func (c *Controller) sendSourceRouted(ctx context.Context, req DataRequest) error {
	if req.DstAddrMode == commands.AddrModeBroadcast || req.DstAddrMode == commands.AddrModeGroup {
		return fmt.Errorf("source routing is not applicable to addressing mode %v", req.DstAddrMode)
	}

	mtReq := commands.DataRequestSrcRtgReq{
		DstAddr:     req.DstNWK,
		DstEndpoint: req.DstEndpoint,
		SrcEndpoint: req.SrcEndpoint,
		ClusterID:   req.ClusterID,
		TSN:         req.TSN,
		Options:     req.Options,
		Radius:      req.Radius,
		Data:        req.Data,
	}

	confirmPattern := znp.Match[commands.DataConfirm](commands.DataConfirmPattern{
		Endpoint: types.Some(req.SrcEndpoint),
		TSN:      types.Some(req.TSN),
	})

	shieldCtx, cancel := context.WithTimeout(context.Background(), c.cfg.DataConfirmTimeout)
	defer cancel()

	rsp, err := c.znp.RequestCallbackRsp(shieldCtx, mtReq, znp.MatchStatusRsp(mtReq.Header().SRSPHeader()), confirmPattern)
	if err != nil {
		return fmt.Errorf("source-routed send: %w", err)
	}
	if status := rsp.(commands.DataConfirm).Status; status != commands.StatusSuccess {
		return fmt.Errorf("source-routed send: status %s", status)
	}
	return nil
}
