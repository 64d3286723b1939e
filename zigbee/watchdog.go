package zigbee

import (
	"context"
	"time"

	"github.com/go-zigbee/znp/commands"
	"github.com/go-zigbee/znp/znp"
)

// watchdogMissLimit is how many consecutive missed pings the watchdog
// tolerates before declaring the link down (§4.7: "repeated timeout treated
// as disconnect").
const watchdogMissLimit = 3

// backgroundTasks owns the watchdog/reconnect goroutine pair started by
// Connect's step 8 and stopped by Close.
type backgroundTasks struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (bg *backgroundTasks) stop() {
	bg.cancel()
	<-bg.done
}

// startBackgroundTasks launches the supervise loop: alternately watch the
// live connection for a miss run and, once one is declared, reconnect with
// backoff (§4.7).
func startBackgroundTasks(c *Controller) *backgroundTasks {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.superviseLoop(ctx)
	}()
	return &backgroundTasks{cancel: cancel, done: done}
}

// superviseLoop alternates watchdogUntilDisconnect and reconnectWithBackoff
// until ctx is cancelled by Close.
func (c *Controller) superviseLoop(ctx context.Context) {
	for {
		if err := c.watchdogUntilDisconnect(ctx); err != nil {
			return // ctx cancelled; Close is tearing us down
		}
		if !c.cfg.AutoReconnect {
			c.log.Warn().Msg("connection lost, auto-reconnect disabled")
			return
		}
		if err := c.reconnectWithBackoff(ctx); err != nil {
			return // ctx cancelled while reconnecting
		}
	}
}

// watchdogUntilDisconnect pings SYS.Ping every WatchdogPeriod. It returns
// nil once the link is judged dead (watchdogMissLimit consecutive misses,
// or the dispatcher reporting itself closed) so the caller can reconnect,
// or ctx.Err() if ctx was cancelled first.
func (c *Controller) watchdogUntilDisconnect(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.WatchdogPeriod)
	defer ticker.Stop()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.znp.Closed():
			return nil
		case <-ticker.C:
			if c.pingOnce(ctx) {
				misses = 0
				continue
			}
			misses++
			c.metrics.RecordWatchdogMiss()
			c.log.Warn().Int("misses", misses).Msg("watchdog ping missed")
			if misses >= watchdogMissLimit {
				c.log.Error().Msg("watchdog declaring connection lost")
				return nil
			}
		}
	}
}

// pingOnce reports whether a single SYS.Ping completed within the SREQ
// timeout.
func (c *Controller) pingOnce(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, c.cfg.SREQTimeout)
	defer cancel()
	_, err := c.znp.Request(pingCtx, commands.PingReq{}, znp.Any[commands.PingRsp]())
	return err == nil
}

// reconnectWithBackoff closes the dead connection and retries connectOnce
// with exponential backoff between ReconnectBackoffMin and
// ReconnectBackoffMax (§9 Design Notes: a local backoff loop rather than
// jpillora/backoff, since the whole policy is "double, clamp, jitter-free").
// It returns nil once connectOnce succeeds, or ctx.Err() if ctx is
// cancelled first.
func (c *Controller) reconnectWithBackoff(ctx context.Context) error {
	if c.znp != nil {
		c.znp.Close()
	}

	delay := c.cfg.ReconnectBackoffMin
	for attempt := 1; ; attempt++ {
		c.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")

		err := c.connectOnce(ctx, c.opts)
		if err == nil {
			c.metrics.RecordReconnect()
			c.log.Info().Int("attempt", attempt).Msg("reconnected")
			return nil
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.cfg.ReconnectBackoffMax {
			delay = c.cfg.ReconnectBackoffMax
		}
	}
}
