package zigbee

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/go-zigbee/znp/commands"
	"github.com/go-zigbee/znp/nvram"
	"github.com/go-zigbee/znp/security"
	"github.com/go-zigbee/znp/types"
	"github.com/go-zigbee/znp/znp"
	"github.com/go-zigbee/znp/znperrors"
)

// NetworkOptions carries the network-formation parameters the embedding
// application supplies to Connect (§4.7 "Form-network"). These are not
// part of config.Config: they describe the network to join or create, not
// the serial link or dispatcher timeouts.
type NetworkOptions struct {
	// AutoForm permits Connect to form a new network when the coprocessor
	// isn't already on one. When false, Connect fails instead.
	AutoForm bool

	PANID         types.Maybe[uint16]
	ExtendedPANID types.Maybe[[8]byte]
	NetworkKey    types.Maybe[[16]byte]

	// ChannelMask restricts formation to a subset of {15,20,25}; zero
	// means "use all three".
	ChannelMask uint32
}

// defaultChannelMask is the coprocessor's recommended primary channel set
// (§4.7 "Form-network": "primary channels = configured channel mask
// intersected with {15,20,25}").
const defaultChannelMask uint32 = 1<<15 | 1<<20 | 1<<25

func effectiveChannelMask(configured uint32) uint32 {
	if configured == 0 {
		return defaultChannelMask
	}
	return configured & defaultChannelMask
}

const (
	logicalTypeCoordinator uint8 = 0x00
	hasConfiguredMagic     uint8 = 0x55
)

// nibAlignment picks the NIB's padding layout for gen (§9 Design Notes:
// "encode alignment as a codec parameter"). 3.30+ firmware's compiler
// aligns multi-byte fields to 2-byte boundaries; earlier generations pack
// the struct byte-for-byte.
func nibAlignment(gen security.FirmwareGeneration) security.Alignment {
	if gen == security.GenerationZStack330Plus {
		return security.AlignmentAligned
	}
	return security.AlignmentPacked
}

// loadNetworkInfo reads the NIB and active network key and reports whether
// the coprocessor is already on a network (§4.7 step 5).
func (c *Controller) loadNetworkInfo(ctx context.Context) (security.NetworkInfo, bool, error) {
	raw, err := c.nv.Read(ctx, nvram.IDNIB)
	if errors.Is(err, znperrors.ErrKeyNotFound) {
		return security.NetworkInfo{}, false, nil
	}
	if err != nil {
		return security.NetworkInfo{}, false, fmt.Errorf("reading nib: %w", err)
	}

	nib, err := security.DecodeNIB(raw, nibAlignment(c.gen))
	if err != nil {
		return security.NetworkInfo{}, false, fmt.Errorf("decoding nib: %w", err)
	}

	// A coprocessor with no configured network reports channel 0 and the
	// broadcast PAN ID; anything else means it has joined or formed one.
	if nib.NwkLogicalChannel == 0 || nib.NwkPanID == 0xFFFF {
		return security.NetworkInfo{}, false, nil
	}

	deviceRsp, err := c.znp.Request(ctx, commands.GetDeviceInfoReq{}, znp.Any[commands.GetDeviceInfoRsp]())
	if err != nil {
		return security.NetworkInfo{}, false, fmt.Errorf("reading device info: %w", err)
	}
	device := deviceRsp.(commands.GetDeviceInfoRsp)

	seq, key, err := c.readActiveNetworkKey(ctx)
	if err != nil {
		return security.NetworkInfo{}, false, fmt.Errorf("reading active network key: %w", err)
	}

	info := security.NetworkInfo{
		IEEE:          device.IEEE,
		NWK:           device.NWK,
		Channel:       nib.NwkLogicalChannel,
		ChannelMask:   nib.ChannelList,
		PANID:         nib.NwkPanID,
		ExtendedPANID: nib.ExtendedPANID,
		NWKUpdateID:   nib.NwkUpdateID,
		SecurityLevel: nib.SecurityLevel,
		NetworkKey:    key,
		NetworkKeySeq: seq,
	}

	counter, err := c.sec.ReadTCFrameCounter(ctx, nib.ExtendedPANID)
	if err != nil && !errors.Is(err, znperrors.ErrKeyNotFound) {
		return security.NetworkInfo{}, false, fmt.Errorf("reading tc frame counter: %w", err)
	}
	info.TCFrameCounter = counter

	return info, true, nil
}

// readActiveNetworkKey reads NWKKEY's sequence number and key material; the
// frame counter in this same item matters only to security.Store's
// Z-Stack-1.2 branch, so it's not decoded here.
func (c *Controller) readActiveNetworkKey(ctx context.Context) (seq uint8, key [16]byte, err error) {
	raw, err := c.nv.Read(ctx, nvram.IDNwkKey)
	if err != nil {
		return 0, key, err
	}
	if len(raw) < 17 {
		return 0, key, fmt.Errorf("nwkkey item too short (%d bytes): %w", len(raw), znperrors.ErrInvalidCommandResponse)
	}
	seq = raw[0]
	copy(key[:], raw[1:17])
	return seq, key, nil
}

// formNetwork writes a fresh network configuration to NVRAM and triggers
// BDB network formation (§4.7 "Form-network").
func (c *Controller) formNetwork(ctx context.Context, opts NetworkOptions) error {
	if c.gen == security.GenerationZStack12 {
		return fmt.Errorf("auto-form is not supported on z-stack 1.2 firmware (no bdb commissioning surface)")
	}

	extPANID, ok := opts.ExtendedPANID.Get()
	if !ok {
		if _, err := rand.Read(extPANID[:]); err != nil {
			return fmt.Errorf("generating extended pan id: %w", err)
		}
	}

	networkKey, ok := opts.NetworkKey.Get()
	if !ok {
		if _, err := rand.Read(networkKey[:]); err != nil {
			return fmt.Errorf("generating network key: %w", err)
		}
	}

	panID, ok := opts.PANID.Get()
	if !ok {
		panID = 0xFFFF // let the coprocessor choose one at formation time
	}

	channels := effectiveChannelMask(opts.ChannelMask)

	writes := []struct {
		id    nvram.ID
		value []byte
	}{
		{nvram.IDStartupOption, []byte{uint8(nvram.StartupOptionClearState | nvram.StartupOptionClearConfig)}},
		{nvram.IDLogicalType, []byte{logicalTypeCoordinator}},
		{nvram.IDZDODirectCB, []byte{1}},
		{nvram.IDPrecfgKey, networkKey[:]},
		{nvram.IDPrecfgKeysEn, []byte{1}},
		{nvram.IDPanID, []byte{byte(panID), byte(panID >> 8)}},
		{nvram.IDExtendedPANID, extPANID[:]},
		{nvram.IDChanList, []byte{byte(channels), byte(channels >> 8), byte(channels >> 16), byte(channels >> 24)}},
	}
	for _, w := range writes {
		if err := c.nv.Write(ctx, w.id, w.value, true); err != nil {
			return fmt.Errorf("writing nvid %#04x: %w", w.id, err)
		}
	}

	notifyWaiter := c.znp.WaitForResponses(znp.Match[commands.BDBCommissioningNotification](
		commands.BDBCommissioningNotificationPattern{Mode: types.Some(commands.BDBCommissioningModeNwkFormation)},
	))
	startReq := commands.BDBStartCommissioningReq{Mode: commands.BDBCommissioningModeNwkFormation}
	if _, err := c.znp.Request(ctx, startReq, znp.MatchStatusRsp(startReq.Header().SRSPHeader())); err != nil {
		return fmt.Errorf("starting bdb commissioning: %w", err)
	}
	notifyRsp, err := notifyWaiter.Wait(ctx)
	if err != nil {
		return fmt.Errorf("awaiting bdb commissioning notification: %w", err)
	}
	notification := notifyRsp.(commands.BDBCommissioningNotification)
	if notification.RemainingModes != commands.BDBCommissioningModeNone {
		return fmt.Errorf("bdb network formation did not complete: status %s, remaining modes %s",
			notification.Status, notification.RemainingModes)
	}

	hasConfiguredID := nvram.IDHasConfigured3
	if c.gen == security.GenerationZStack12 {
		hasConfiguredID = nvram.IDHasConfigured1
	}
	if err := c.nv.Write(ctx, hasConfiguredID, []byte{hasConfiguredMagic}, true); err != nil {
		return fmt.Errorf("writing has-configured marker: %w", err)
	}

	return c.resetAndAwait(ctx)
}

// resetAndAwait issues a soft reset and waits for the coprocessor to
// reboot, the shared tail of form-network and Restore.
func (c *Controller) resetAndAwait(ctx context.Context) error {
	waiter := c.znp.WaitForResponses(znp.Match[commands.ResetInd](commands.ResetIndPattern{}))
	if err := c.znp.Send(commands.ResetReq{Type: commands.ResetTypeSoft}); err != nil {
		return fmt.Errorf("sending reset: %w", err)
	}
	if _, err := waiter.Wait(ctx); err != nil {
		return fmt.Errorf("awaiting reset: %w", err)
	}
	return nil
}

// repairAlignment re-pads a misaligned NIB on 3.30+ firmware that was
// previously configured under the packed layout (§4.7 step 4); the TCLK
// table's rows are not checked or re-padded. A length mismatch on read is
// the only signal available; a clean read needs no repair.
func (c *Controller) repairAlignment(ctx context.Context) error {
	raw, err := c.nv.Read(ctx, nvram.IDNIB)
	if errors.Is(err, znperrors.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading nib: %w", err)
	}

	if _, err := security.DecodeNIB(raw, security.AlignmentAligned); err == nil {
		return nil // already aligned
	}

	nib, err := security.DecodeNIB(raw, security.AlignmentPacked)
	if err != nil {
		return fmt.Errorf("nib is neither packed nor aligned: %w", err)
	}

	aligned := nib.Encode(security.AlignmentAligned)
	if err := c.nv.Write(ctx, nvram.IDNIB, aligned, false); err != nil {
		return fmt.Errorf("rewriting nib: %w", err)
	}
	c.log.Warn().Msg("repaired misaligned nib")
	return nil
}
