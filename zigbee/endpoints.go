package zigbee

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/go-zigbee/znp/commands"
	"github.com/go-zigbee/znp/config"
	"github.com/go-zigbee/znp/security"
	"github.com/go-zigbee/znp/znp"
)

const (
	profileZHA uint16 = 0x0104
	profileZLL uint16 = 0xC05E
)

// newLayoutBuildID is the SYS.Version build-id threshold past which
// firmware moves the ZLL endpoint to #1 (§4.7 step 6). zigpy_znp tracks
// this per coordinator image; there is no single documented cutover point
// in the retrieval pack, so this is a judgment call recorded in
// DESIGN.md rather than a value lifted from a source file.
const newLayoutBuildID uint32 = 20210000

// endpointTable lists the AF endpoints the controller registers during
// startup step 6: the fixed set the spec names (1, 2, 8, 11, 12, 47, 100),
// with endpoint 1 carrying the ZLL profile instead of ZHA on firmware past
// newLayoutBuildID.
func endpointTable(buildID uint32) []commands.RegisterReq {
	newLayout := buildID != 0 && buildID >= newLayoutBuildID

	ep1Profile := profileZHA
	if newLayout {
		ep1Profile = profileZLL
	}

	return []commands.RegisterReq{
		{Endpoint: 1, ProfileID: ep1Profile, DeviceID: 0x0005, DeviceVersion: 0, LatencyReq: 0},
		{Endpoint: 2, ProfileID: profileZLL, DeviceID: 0x0005, DeviceVersion: 0, LatencyReq: 0},
		{Endpoint: 8, ProfileID: profileZHA, DeviceID: 0x0005, DeviceVersion: 0, LatencyReq: 0},
		{Endpoint: 11, ProfileID: profileZHA, DeviceID: 0x0005, DeviceVersion: 0, LatencyReq: 0},
		{Endpoint: 12, ProfileID: profileZLL, DeviceID: 0x0005, DeviceVersion: 0, LatencyReq: 0},
		{Endpoint: 47, ProfileID: profileZHA, DeviceID: 0x0005, DeviceVersion: 0, LatencyReq: 0},
		{Endpoint: 100, ProfileID: profileZHA, DeviceID: 0x0005, DeviceVersion: 0, LatencyReq: 0},
	}
}

// registerEndpoints registers every endpoint in endpointTable, branching on
// version's build-id (§4.7 step 6).
func (c *Controller) registerEndpoints(ctx context.Context, version commands.VersionRsp) error {
	for _, ep := range endpointTable(version.BuildID) {
		rsp, err := c.znp.Request(ctx, ep, znp.MatchStatusRsp(ep.Header().SRSPHeader()))
		if err != nil {
			return fmt.Errorf("registering endpoint %d: %w", ep.Endpoint, err)
		}
		if status := rsp.(commands.StatusRsp).Status; status != commands.StatusSuccess {
			return fmt.Errorf("registering endpoint %d: status %s", ep.Endpoint, status)
		}
	}
	return nil
}

// configureRadio sets TX power and LED mode, and sizes the data-request
// concurrency semaphore (§4.7 step 7).
func (c *Controller) configureRadio(ctx context.Context, gen security.FirmwareGeneration) error {
	if _, err := c.znp.Request(ctx, commands.SetTxPowerReq{TXPower: c.cfg.TXPower}, znp.Any[commands.SetTxPowerRsp]()); err != nil {
		return fmt.Errorf("setting tx power: %w", err)
	}

	if err := c.applyLEDMode(ctx); err != nil {
		return fmt.Errorf("setting led mode: %w", err)
	}

	limit := int64(c.cfg.DataRequestLimit)
	if gen == security.GenerationZStack12 && limit > 2 {
		limit = 2
	}
	c.semMu.Lock()
	c.sem = semaphore.NewWeighted(limit)
	c.semMu.Unlock()

	return nil
}

func (c *Controller) applyLEDMode(ctx context.Context) error {
	switch c.cfg.LEDMode {
	case config.LEDModeAuto:
		return nil // leave firmware defaults in place
	case config.LEDModeOff, config.LEDModeOn:
		on := c.cfg.LEDMode == config.LEDModeOn
		// LED 0xFF addresses every board LED on firmware that supports
		// the "all LEDs" broadcast value.
		req := commands.LEDControlReq{LED: 0xFF, On: on}
		_, err := c.znp.Request(ctx, req, znp.MatchStatusRsp(req.Header().SRSPHeader()))
		return err
	default:
		return fmt.Errorf("unknown led mode %q", c.cfg.LEDMode)
	}
}
