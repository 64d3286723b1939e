package nvram

import (
	"context"
	"fmt"

	"github.com/go-zigbee/znp/commands"
	"github.com/go-zigbee/znp/znp"
)

// StartupOption is the bit flag set written to IDStartupOption to tell the
// coprocessor what to discard on its next boot (zigpy_znp's StartupOptions).
type StartupOption uint8

const (
	StartupOptionClearConfig StartupOption = 1 << 0
	StartupOptionClearState  StartupOption = 1 << 1
)

// ResetToFactoryDefaults writes STARTUP_OPTION=ClearState|ClearConfig and
// resets the coprocessor, so its next boot rebuilds NVRAM from firmware
// defaults (zigpy_znp/tools/nvram_reset.py), for an explicit,
// operator-driven reset (§4.9). zigbee.Controller's form-network and
// Restore paths do not call it; they reset through their own soft-reset
// helper.
func (s *Store) ResetToFactoryDefaults(ctx context.Context) error {
	opt := StartupOptionClearState | StartupOptionClearConfig
	if err := s.Write(ctx, IDStartupOption, []byte{uint8(opt)}, true); err != nil {
		return fmt.Errorf("nvram: reset to factory defaults: %w", err)
	}

	waiter := s.znp.WaitForResponses(znp.Match[commands.ResetInd](commands.ResetIndPattern{}))
	if err := s.znp.Send(commands.ResetReq{Type: commands.ResetTypeSoft}); err != nil {
		return fmt.Errorf("nvram: reset to factory defaults: %w", err)
	}
	if _, err := waiter.Wait(ctx); err != nil {
		return fmt.Errorf("nvram: reset to factory defaults: awaiting reset: %w", err)
	}
	return nil
}
