package valve

import (
	"context"
	"math"
	"time"
)

// updateBoost handles the thermostat boost mode. It returns true while the
// tick must not continue to normal adjustment.
func (c *Controller) updateBoost(ctx context.Context, now time.Time) bool {
	isBoost := c.sensorMode() == "Boost"

	if !c.boostActive && isBoost {
		c.logger.Info("boost started", "valve", c.cfg.ID, "saved_position", c.position)
		c.boostActive = true
		c.boostSaved = c.position
		c.enqueue(ctx, boostPosition, true)
		return true
	}

	if c.boostActive && !isBoost {
		switch {
		case c.boostSaved < 0:
			c.logger.Info("boost ended, no position to restore", "valve", c.cfg.ID)
			c.clearBoost()
		case math.Ceil(c.position) == math.Ceil(c.boostSaved):
			c.logger.Info("boost ended", "valve", c.cfg.ID)
			c.clearBoost()
		case now.After(c.resetBoostAt.Add(BoostRestoreCooldown)):
			c.logger.Info("restoring position after boost", "valve", c.cfg.ID, "position", c.boostSaved)
			c.resetBoostAt = now
			c.enqueue(ctx, int(math.Ceil(c.boostSaved)), true)
		}
		return true
	}

	return isBoost
}

func (c *Controller) clearBoost() {
	c.boostActive = false
	c.boostSaved = unknownPosition
}

// updateWindow handles open windows. It returns true for the whole episode,
// including the tick that restores the valve.
func (c *Controller) updateWindow(ctx context.Context, now time.Time) bool {
	valveSlope := c.valveHist.Slope()

	if valveSlope < windowSlope || c.windowSensorOpen(now) {
		c.windowOpenUntil = now.Add(WindowOpenHold)
		c.sweetSpotBlockedUntil = now.Add(SweetSpotBlock)
		if !c.windowActive {
			c.logger.Info("window open detected", "valve", c.cfg.ID, "valve_slope", valveSlope)
			c.windowActive = true
			c.windowSaved = c.position
			c.enqueue(ctx, 0, true)
		}
		return true
	}

	if !c.windowActive {
		return false
	}

	if now.After(c.windowOpenUntil) {
		c.logger.Info("window closed, restoring position", "valve", c.cfg.ID, "position", c.windowSaved)
		if c.windowSaved >= 0 {
			c.enqueue(ctx, int(math.Ceil(c.windowSaved)), false)
		}
		c.thermoHist.Reset()
		c.windowActive = false
		c.windowSaved = unknownPosition
		c.windowOpenUntil = time.Time{}
		c.lastAdjustAt = now.Add(-c.interval)
	}
	return true
}

// windowSensorOpen reports whether any window sensor has read "on" for at
// least WindowSensorDelay.
func (c *Controller) windowSensorOpen(now time.Time) bool {
	if c.entities == nil {
		return false
	}
	for _, id := range c.cfg.WindowSensors {
		st, ok := c.entities.Get(id)
		if ok && st.State == "on" && now.Sub(st.LastChanged) >= WindowSensorDelay {
			return true
		}
	}
	return false
}
