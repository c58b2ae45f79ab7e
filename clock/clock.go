// Package clock keeps the simulated time of a monitoring run.
// It only advances when told to; pacing against the wall clock is the caller's business.
package clock

import (
	"fmt"
	"time"
)

type Clock struct {
	tick    time.Duration
	elapsed time.Duration
}

// New returns a Clock at time zero with a fixed tick length.
func New(tick time.Duration) (*Clock, error) {
	if tick < time.Second {
		return nil, fmt.Errorf("clock: tick must be at least one second, got %s", tick)
	}
	return &Clock{tick: tick}, nil
}

// Advance moves the clock forward by one tick.
func (c *Clock) Advance() {
	c.elapsed += c.tick
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}

func (c *Clock) Tick() time.Duration {
	return c.tick
}

// TickSeconds is the tick length as used by the filter equations.
func (c *Clock) TickSeconds() float64 {
	return c.tick.Seconds()
}

// WholeSeconds is the number of one-second sub-steps the pond model takes per tick.
func (c *Clock) WholeSeconds() int {
	return int(c.tick / time.Second)
}

// TickStart is the elapsed time at the beginning of the tick that ended at Elapsed.
func (c *Clock) TickStart() time.Duration {
	if c.elapsed < c.tick {
		return 0
	}
	return c.elapsed - c.tick
}
