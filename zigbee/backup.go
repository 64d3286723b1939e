package zigbee

import (
	"context"
	"fmt"

	"github.com/go-zigbee/znp/security"
)

// Backup captures the current network state and per-device key material as
// a portable snapshot, suitable for restoring onto replacement hardware
// after a coordinator failure (§4.9).
func (c *Controller) Backup(ctx context.Context) (security.NetworkBackup, error) {
	if c.sec == nil {
		return security.NetworkBackup{}, fmt.Errorf("zigbee: backup: not connected")
	}
	backup, err := c.sec.Backup(ctx, c.NetworkInfo())
	if err != nil {
		return security.NetworkBackup{}, fmt.Errorf("zigbee: backup: %w", err)
	}
	return backup, nil
}

// Restore writes a previously captured backup's device table and link-key
// material back onto the coprocessor, then resets it so the running stack
// picks up the restored state (§4.9). counterIncrement advances each
// device's stored outgoing frame counter past whatever it reached before
// the backup was taken, so a restored device can never replay a frame
// counter it already used. backup.TCLinkKeySeed may be nil to let the security
// store choose the TC link-key seed that maximizes the number of hashed
// (rather than raw) per-device keys.
func (c *Controller) Restore(ctx context.Context, backup security.NetworkBackup, counterIncrement uint32) error {
	if c.sec == nil {
		return fmt.Errorf("zigbee: restore: not connected")
	}
	if err := c.sec.Restore(ctx, backup.Devices, counterIncrement, backup.TCLinkKeySeed); err != nil {
		return fmt.Errorf("zigbee: restore: %w", err)
	}
	return c.resetAndAwait(ctx)
}
