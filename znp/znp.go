// Package znp implements the dispatcher that sits between the serial
// transport and the rest of the driver: it correlates SREQ→SRSP under a
// lock, fans decoded frames out to one-shot waiters and persistent
// callbacks, and enforces timeouts (§4.4). Grounded directly on
// zigpy_znp's api.py (ZNP, OneShotResponseListener, CallbackResponseListener).
package znp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-zigbee/znp/commands"
	"github.com/go-zigbee/znp/config"
	"github.com/go-zigbee/znp/frame"
	"github.com/go-zigbee/znp/logging"
	"github.com/go-zigbee/znp/metrics"
	"github.com/go-zigbee/znp/types"
	"github.com/go-zigbee/znp/uart"
	"github.com/go-zigbee/znp/znperrors"
)

// Port is the subset of *uart.Port the dispatcher depends on, so it can be
// driven by a fake in tests without opening a real serial device.
type Port interface {
	Frames() <-chan frame.General
	Closed() <-chan struct{}
	Write(frame.Transport) error
	Close() error
}

var _ Port = (*uart.Port)(nil)

// ZNP is the dispatcher: the Go analogue of zigpy_znp's ZNP class (§4.4).
type ZNP struct {
	port    Port
	metrics *metrics.Dispatcher
	log     zerolog.Logger

	sreqTimeout time.Duration
	arspTimeout time.Duration

	mu        sync.Mutex
	listeners map[types.CommandHeader][]*listener

	sreqMu sync.Mutex

	capMu        sync.RWMutex
	capabilities commands.Capabilities

	closed    chan struct{}
	closeOnce sync.Once
}

// New wraps an already-open Port with dispatch logic and starts the
// read-fan-out goroutine.
func New(port Port, cfg config.Config, m *metrics.Dispatcher) *ZNP {
	z := &ZNP{
		port:        port,
		metrics:     m,
		log:         logging.For("znp"),
		sreqTimeout: cfg.SREQTimeout,
		arspTimeout: cfg.ARSPTimeout,
		listeners:   make(map[types.CommandHeader][]*listener),
		closed:      make(chan struct{}),
	}
	go z.readLoop()
	return z
}

// Capabilities returns the subsystem capability set learned from the most
// recent SYS.Ping exchange, or 0 before the first one completes (§4.7 step 1).
func (z *ZNP) Capabilities() commands.Capabilities {
	z.capMu.RLock()
	defer z.capMu.RUnlock()
	return z.capabilities
}

func (z *ZNP) setCapabilities(c commands.Capabilities) {
	z.capMu.Lock()
	z.capabilities = c
	z.capMu.Unlock()
}

// Closed returns a channel closed once the dispatcher has torn down,
// either because Close was called or the underlying port was lost.
func (z *ZNP) Closed() <-chan struct{} {
	return z.closed
}

func (z *ZNP) readLoop() {
	for {
		select {
		case f, ok := <-z.port.Frames():
			if !ok {
				z.Close()
				return
			}
			z.onFrame(f)
		case <-z.port.Closed():
			z.Close()
			return
		}
	}
}

// onFrame decodes one inbound General frame and dispatches it to every
// listener registered for its header (§4.4 step 1-2).
func (z *ZNP) onFrame(f frame.General) {
	cmd, known, err := commands.Decode(f)
	if err != nil {
		z.log.Warn().Err(err).Stringer("header", f.Header).Msg("failed to decode frame")
		return
	}
	if !known {
		z.metrics.RecordUnhandledFrame()
		z.log.Warn().Stringer("header", f.Header).Msg("received frame with unknown header")
		return
	}

	if ping, ok := cmd.(commands.PingRsp); ok {
		z.setCapabilities(ping.Capabilities)
	}

	z.dispatch(cmd)
}

// dispatch fans cmd out to every listener registered for its header. Of any
// one-shot listeners that match, only the first in registration order (the
// oldest still-pending waiter) actually consumes the frame; later one-shot
// listeners for the same pattern are left pending for a future frame.
// Callback listeners are never skipped this way, since they are not
// consumed by a match.
func (z *ZNP) dispatch(cmd commands.Command) {
	z.mu.Lock()
	ls := append([]*listener(nil), z.listeners[cmd.Header()]...)
	z.mu.Unlock()

	matched := false
	oneShotConsumed := false
	var toRemove []*listener
	for _, l := range ls {
		if l.kind == kindOneShot && oneShotConsumed {
			continue
		}
		if l.resolve(cmd) {
			matched = true
			if l.kind == kindOneShot {
				oneShotConsumed = true
			}
		}
		if l.kind == kindOneShot && l.resolved.Load() {
			toRemove = append(toRemove, l)
		}
	}
	for _, l := range toRemove {
		z.removeListener(l)
	}

	if !matched {
		z.log.Debug().Stringer("header", cmd.Header()).Msg("received unhandled command")
	}
}

func (z *ZNP) addListener(l *listener) {
	z.mu.Lock()
	defer z.mu.Unlock()
	for _, h := range l.matchingHeaders() {
		z.listeners[h] = append(z.listeners[h], l)
	}
	z.setListenerTableSize()
}

func (z *ZNP) removeListener(l *listener) {
	z.mu.Lock()
	defer z.mu.Unlock()
	for _, h := range l.matchingHeaders() {
		bucket := z.listeners[h]
		for i, other := range bucket {
			if other == l {
				bucket = append(bucket[:i], bucket[i+1:]...)
				break
			}
		}
		if len(bucket) == 0 {
			delete(z.listeners, h)
		} else {
			z.listeners[h] = bucket
		}
	}
	z.setListenerTableSize()
}

func (z *ZNP) setListenerTableSize() {
	n := 0
	for _, bucket := range z.listeners {
		n += len(bucket)
	}
	z.metrics.SetListenerTableSize(n)
}

// ResponseWaiter is returned by WaitForResponses; it wraps the one-shot
// listener's result channel with context-aware cancellation.
type ResponseWaiter struct {
	znp *ZNP
	l   *listener
}

// Wait blocks until a matching frame arrives, ctx is done, or the dispatcher
// is closed (reported as znperrors.ErrDisconnected). Either way the
// listener is removed from the table exactly once.
func (w *ResponseWaiter) Wait(ctx context.Context) (commands.Command, error) {
	select {
	case cmd := <-w.l.result:
		return cmd, nil
	case <-w.znp.closed:
		w.l.cancel()
		w.znp.removeListener(w.l)
		select {
		case cmd := <-w.l.result:
			return cmd, nil
		default:
		}
		return nil, znperrors.ErrDisconnected
	case <-ctx.Done():
		w.l.cancel()
		w.znp.removeListener(w.l)
		// The resolve() call may have raced us between ctx firing and the
		// lock above; prefer a real result if one is already queued.
		select {
		case cmd := <-w.l.result:
			return cmd, nil
		default:
		}
		return nil, ctx.Err()
	}
}

// WaitForResponses creates a one-shot listener matching any one of the
// given patterns (§4.4: "wait_for_responses").
func (z *ZNP) WaitForResponses(patterns ...BoundPattern) *ResponseWaiter {
	l := &listener{
		kind:     kindOneShot,
		patterns: dedupePatterns(patterns),
		result:   make(chan commands.Command, 1),
	}
	z.addListener(l)
	return &ResponseWaiter{znp: z, l: l}
}

// CallbackForResponses creates a persistent listener that invokes fn for
// every matching frame until Close (§4.4: "callback_for_responses").
// Deregister removes the listener early.
func (z *ZNP) CallbackForResponses(fn func(commands.Command), patterns ...BoundPattern) (deregister func()) {
	l := &listener{
		kind:     kindCallback,
		patterns: dedupePatterns(patterns),
		callback: fn,
		log:      z.log,
	}
	z.addListener(l)
	return func() { z.removeListener(l) }
}

// send writes req's frame to the port without waiting for a response, used
// both for AREQ fire-and-forget commands and as the final step of Request.
func (z *ZNP) send(req commands.Command) error {
	return z.port.Write(frame.Transport{General: frame.General{Header: req.Header(), Payload: req.Encode()}})
}

// Send issues an AREQ or other request with no response, e.g. SYS.ResetReq.
func (z *ZNP) Send(req commands.Command) error {
	select {
	case <-z.closed:
		return znperrors.ErrDisconnected
	default:
	}
	return z.send(req)
}

// Request sends an SREQ and returns its SRSP, enforcing SREQ mutual
// exclusion and the SREQ timeout, and watching for
// RPCError.CommandNotRecognized in place of the expected SRSP (§4.4).
// expect is the pattern the returned SRSP must match; a mismatch raises
// znperrors.ErrInvalidCommandResponse.
func (z *ZNP) Request(ctx context.Context, req commands.Command, expect BoundPattern) (commands.Command, error) {
	select {
	case <-z.closed:
		return nil, znperrors.ErrDisconnected
	default:
	}

	notRecognized := Match[commands.CommandNotRecognized](
		commands.CommandNotRecognizedPattern{RequestHeader: types.Some(req.Header())},
	)

	z.sreqMu.Lock()
	defer z.sreqMu.Unlock()
	z.metrics.SetInFlightSREQs(1)
	defer z.metrics.SetInFlightSREQs(0)

	// Any SRSP carrying expect's header answers this SREQ, matching or not.
	anyRsp := BoundPattern{
		Header: expect.Header,
		key:    struct{ anyOf types.CommandHeader }{expect.Header},
		match:  func(commands.Command) bool { return true },
	}
	waiter := z.WaitForResponses(expect, anyRsp, notRecognized)

	if err := z.send(req); err != nil {
		waiter.l.cancel()
		z.removeListener(waiter.l)
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, z.sreqTimeout)
	defer cancel()

	rsp, err := waiter.Wait(timeoutCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			z.metrics.RecordSREQTimeout()
			return nil, fmt.Errorf("znp: waiting for %s: %w", req.Header(), znperrors.ErrTimeout)
		}
		return nil, err
	}

	if cnr, ok := rsp.(commands.CommandNotRecognized); ok {
		return nil, fmt.Errorf("znp: %s refused by coprocessor (%s): %w", req.Header(), cnr.ErrorCode, znperrors.ErrCommandNotRecognized)
	}
	if !expect.matches(rsp) {
		return nil, fmt.Errorf("znp: unexpected response to %s: %w", req.Header(), znperrors.ErrInvalidCommandResponse)
	}

	return rsp, nil
}

// RequestCallbackRsp sends req and returns the AREQ matching callback,
// registering the callback listener before sending so an SRSP and its
// companion AREQ arriving in the same UART read are both caught (§4.4: the
// callback listener must be created before the SREQ is sent).
func (z *ZNP) RequestCallbackRsp(ctx context.Context, req commands.Command, reqExpect, callbackExpect BoundPattern) (commands.Command, error) {
	callbackWaiter := z.WaitForResponses(callbackExpect)

	if _, err := z.Request(ctx, req, reqExpect); err != nil {
		callbackWaiter.l.cancel()
		z.removeListener(callbackWaiter.l)
		return nil, err
	}

	callbackCtx, cancel := context.WithTimeout(ctx, z.arspTimeout)
	defer cancel()

	rsp, err := callbackWaiter.Wait(callbackCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			z.metrics.RecordCallbackTimeout()
			return nil, fmt.Errorf("znp: waiting for callback after %s: %w", req.Header(), znperrors.ErrTimeout)
		}
		return nil, err
	}
	return rsp, nil
}

// Close cancels every pending listener and closes the underlying port.
// Reopening requires a fresh ZNP (§4.4: "close()").
func (z *ZNP) Close() error {
	var err error
	z.closeOnce.Do(func() {
		close(z.closed)

		z.mu.Lock()
		for _, bucket := range z.listeners {
			for _, l := range bucket {
				l.cancel()
			}
		}
		z.listeners = make(map[types.CommandHeader][]*listener)
		z.mu.Unlock()

		err = z.port.Close()
	})
	return err
}
