// Package sim provides simulated hardware for host runs and tests.
package sim

import (
	"context"
	"time"
)

// Clock implements hal.Timer on virtual time. WaitPeriod returns
// immediately after advancing the clock by one period.
type Clock struct {
	// OnTick is called at the end of every WaitPeriod with the tick count.
	OnTick func(tick int)

	now    time.Duration
	period time.Duration
	ticks  int
	waits  []time.Duration
}

// NewClock creates a Clock.
func NewClock() *Clock {
	return &Clock{}
}

// SetupPeriod implements hal.Timer.
func (c *Clock) SetupPeriod(period time.Duration) {
	c.period = period
}

// WaitPeriod implements hal.Timer.
func (c *Clock) WaitPeriod(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now += c.period
	c.ticks++
	if fn := c.OnTick; fn != nil {
		fn(c.ticks)
	}
	return nil
}

// Wait implements hal.Timer.
func (c *Clock) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now += d
	c.waits = append(c.waits, d)
	return nil
}

// Now returns the virtual time elapsed.
func (c *Clock) Now() time.Duration {
	return c.now
}

// Ticks returns the number of completed periods.
func (c *Clock) Ticks() int {
	return c.ticks
}

// Waits returns the delays requested with Wait.
func (c *Clock) Waits() []time.Duration {
	return c.waits
}
