// Package zigbee implements the controller application: the coprocessor
// startup sequence, network formation, the AF data-request path with its
// delivery-failure recovery ladder, and the watchdog/reconnect loop (§4.7).
// It is the object an embedding Zigbee coordinator stack drives; nothing
// upstream of it speaks MT directly.
package zigbee

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/go-zigbee/znp/commands"
	"github.com/go-zigbee/znp/config"
	"github.com/go-zigbee/znp/logging"
	"github.com/go-zigbee/znp/metrics"
	"github.com/go-zigbee/znp/nvram"
	"github.com/go-zigbee/znp/security"
	"github.com/go-zigbee/znp/uart"
	"github.com/go-zigbee/znp/zdo"
	"github.com/go-zigbee/znp/znp"
	"github.com/go-zigbee/znp/znperrors"
)

// PingInfo is the result of a bare SYS.Ping exchange, returned by Probe
// without running the rest of the startup sequence (§4.9: "mirrors
// zigpy_znp's probe() classmethod without implementing the scanning loop
// itself").
type PingInfo struct {
	Capabilities commands.Capabilities
}

// Controller is the top-level driver object: it owns the UART, the
// dispatcher, the NVRAM/security stores, and the ZDO rewriter, and
// sequences them through startup, steady-state data requests, and
// reconnect (§4.7).
type Controller struct {
	cfg     config.Config
	log     zerolog.Logger
	metrics *metrics.Controller

	port *uart.Port
	znp  *znp.ZNP
	nv   *nvram.Store
	sec  *security.Store
	zdo  *zdo.Rewriter

	gen security.FirmwareGeneration

	semMu sync.Mutex
	sem   *semaphore.Weighted

	netMu sync.RWMutex
	net   security.NetworkInfo

	handlerMu sync.Mutex
	handler   func(commands.IncomingMsg)

	routeDisc routeDiscoveryCoalescer

	opts NetworkOptions

	bg         *backgroundTasks
	disconnect chan struct{}
}

// New constructs a Controller from cfg and m. The returned Controller does
// nothing until Connect is called.
func New(cfg config.Config, m *metrics.Controller) *Controller {
	c := &Controller{
		cfg:     cfg,
		log:     logging.For("zigbee"),
		metrics: m,
	}
	c.routeDisc.inFlight = make(map[uint16]*routeDiscovery)
	return c
}

// SetIncomingHandler registers the callback invoked for every AF message
// addressed to a registered endpoint, including ZDO responses the
// zdo.Rewriter synthesizes and injects (§4.8).
func (c *Controller) SetIncomingHandler(fn func(commands.IncomingMsg)) {
	c.handlerMu.Lock()
	c.handler = fn
	c.handlerMu.Unlock()
}

func (c *Controller) dispatchIncoming(msg commands.IncomingMsg) {
	c.handlerMu.Lock()
	fn := c.handler
	c.handlerMu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// Probe opens the configured port just long enough to exchange one
// SYS.Ping, then closes it again, without running the rest of the startup
// sequence (§4.9).
func Probe(ctx context.Context, cfg config.Config) (*PingInfo, error) {
	port, err := uart.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("zigbee: probe: opening port: %w", err)
	}
	defer port.Close()

	z := znp.New(port, cfg, nil)
	defer z.Close()

	rsp, err := z.Request(ctx, commands.PingReq{}, znp.Any[commands.PingRsp]())
	if err != nil {
		return nil, fmt.Errorf("zigbee: probe: ping: %w", err)
	}
	ping := rsp.(commands.PingRsp)
	return &PingInfo{Capabilities: ping.Capabilities}, nil
}

// firmwareGeneration classifies the connected firmware from its
// capability set and, for capability-ambiguous firmware, a trial read of
// the extended TCLK table (§4.7 step 2).
func firmwareGeneration(ctx context.Context, caps commands.Capabilities, z *znp.ZNP) (security.FirmwareGeneration, error) {
	if !caps.Has(commands.CapabilityAPPConfig) {
		return security.GenerationZStack12, nil
	}

	probe := nvram.New(z)
	_, err := probe.ExtLength(ctx, nvram.SysIDZStack, nvram.ItemTCLKTable, 0)
	switch {
	case err == nil:
		// A length response, even length=0 for an empty table, proves the
		// extended (sys_id,item_id,sub_id) surface exists.
		return security.GenerationZStack330Plus, nil
	case errors.Is(err, znperrors.ErrCommandNotRecognized):
		return security.GenerationZStack30, nil
	default:
		return 0, fmt.Errorf("zigbee: detect firmware generation: %w", err)
	}
}

// Connect runs the full startup sequence of §4.7: open the UART, detect
// the firmware generation, reset, repair misaligned NVRAM, load or form
// the network, register endpoints, configure the radio, and start the
// background watchdog/reconnect tasks. opts is consulted only if the
// coprocessor is not already on a network.
func (c *Controller) Connect(ctx context.Context, opts NetworkOptions) error {
	c.opts = opts
	if err := c.connectOnce(ctx, opts); err != nil {
		return err
	}

	// Step 8: background tasks.
	c.bg = startBackgroundTasks(c)
	return nil
}

// connectOnce runs steps 1-7 of §4.7 against a fresh UART/dispatcher,
// replacing the Controller's connection state on success. Both Connect and
// the reconnect loop funnel through this, so a reconnect repeats exactly
// the same sequence the initial connect did rather than a shortened path.
func (c *Controller) connectOnce(ctx context.Context, opts NetworkOptions) error {
	// Step 1: connect UART, optionally skip bootloader, ping.
	port, err := uart.Open(c.cfg)
	if err != nil {
		return fmt.Errorf("zigbee: connect: opening port: %w", err)
	}

	m := metrics.NewDispatcher(nil)
	z := znp.New(port, c.cfg, m)

	pingRsp, err := z.Request(ctx, commands.PingReq{}, znp.Any[commands.PingRsp]())
	if err != nil {
		z.Close()
		return fmt.Errorf("zigbee: connect: ping: %w", err)
	}
	caps := pingRsp.(commands.PingRsp).Capabilities

	// Step 2: detect firmware generation.
	gen, err := firmwareGeneration(ctx, caps, z)
	if err != nil {
		z.Close()
		return err
	}

	c.port = port
	c.znp = z
	c.gen = gen
	c.nv = nvram.New(z)
	c.sec = security.New(c.nv, gen)
	c.zdo = zdo.New(z, c.dispatchIncoming)
	c.disconnect = make(chan struct{})

	deregister := z.CallbackForResponses(func(cmd commands.Command) {
		c.dispatchIncoming(cmd.(commands.IncomingMsg))
	}, znp.Match[commands.IncomingMsg](commands.IncomingMsgPattern{}))
	_ = deregister // kept alive for the controller's lifetime, torn down by Close via z.Close

	// Step 3: soft reset, await the reboot callback.
	resetWaiter := z.WaitForResponses(znp.Match[commands.ResetInd](commands.ResetIndPattern{}))
	if err := z.Send(commands.ResetReq{Type: commands.ResetTypeSoft}); err != nil {
		z.Close()
		return fmt.Errorf("zigbee: connect: reset: %w", err)
	}
	if _, err := resetWaiter.Wait(ctx); err != nil {
		z.Close()
		return fmt.Errorf("zigbee: connect: awaiting reset: %w", err)
	}

	// Step 4: repair misaligned NVRAM on 3.30+.
	if gen == security.GenerationZStack330Plus {
		if err := c.repairAlignment(ctx); err != nil {
			z.Close()
			return fmt.Errorf("zigbee: connect: repairing nvram alignment: %w", err)
		}
	}

	// Step 5: load network info, forming a new network if requested and
	// none exists yet.
	info, onNetwork, err := c.loadNetworkInfo(ctx)
	if err != nil {
		z.Close()
		return fmt.Errorf("zigbee: connect: loading network info: %w", err)
	}
	if !onNetwork {
		if !opts.AutoForm {
			z.Close()
			return fmt.Errorf("zigbee: connect: coprocessor is not on a network and auto-form is disabled")
		}
		if err := c.formNetwork(ctx, opts); err != nil {
			z.Close()
			return fmt.Errorf("zigbee: connect: forming network: %w", err)
		}
		info, onNetwork, err = c.loadNetworkInfo(ctx)
		if err != nil {
			z.Close()
			return fmt.Errorf("zigbee: connect: loading network info after formation: %w", err)
		}
		if !onNetwork {
			z.Close()
			return fmt.Errorf("zigbee: connect: still not on a network after formation")
		}
	}
	c.netMu.Lock()
	c.net = info
	c.netMu.Unlock()

	// Step 6: register AF endpoints, branching on the reported build-id.
	versionRsp, err := z.Request(ctx, commands.VersionReq{}, znp.Any[commands.VersionRsp]())
	if err != nil {
		z.Close()
		return fmt.Errorf("zigbee: connect: version: %w", err)
	}
	version := versionRsp.(commands.VersionRsp)
	if err := c.registerEndpoints(ctx, version); err != nil {
		z.Close()
		return fmt.Errorf("zigbee: connect: registering endpoints: %w", err)
	}

	// Step 7: TX power, LED mode, concurrency semaphore.
	if err := c.configureRadio(ctx, gen); err != nil {
		z.Close()
		return fmt.Errorf("zigbee: connect: configuring radio: %w", err)
	}

	c.log.Info().
		Uint16("pan_id", info.PANID).
		Uint8("channel", info.Channel).
		Str("generation", generationName(gen)).
		Msg("connected")
	return nil
}

func generationName(gen security.FirmwareGeneration) string {
	switch gen {
	case security.GenerationZStack12:
		return "z-stack-1.2"
	case security.GenerationZStack30:
		return "z-stack-3.0"
	case security.GenerationZStack330Plus:
		return "z-stack-3.30+"
	default:
		return "unknown"
	}
}

// NetworkInfo returns the network state learned at Connect time or
// refreshed since.
func (c *Controller) NetworkInfo() security.NetworkInfo {
	c.netMu.RLock()
	defer c.netMu.RUnlock()
	return c.net
}

// ZDO returns the ZDO cluster rewriter, letting the embedding application
// forward over-the-air ZDO requests it receives (on the coordinator's ZDO
// endpoint) into the corresponding MT command, and run coordinator-side ZDO
// operations such as EnergyScan that have no over-the-air request of their
// own to rewrite.
func (c *Controller) ZDO() *zdo.Rewriter {
	return c.zdo
}

// Close tears down the background tasks, the dispatcher, and the serial
// port.
func (c *Controller) Close() error {
	if c.bg != nil {
		c.bg.stop()
	}
	if c.disconnect != nil {
		select {
		case <-c.disconnect:
		default:
			close(c.disconnect)
		}
	}
	if c.znp != nil {
		return c.znp.Close()
	}
	return nil
}
