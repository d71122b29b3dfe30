// Package hal defines the hardware operations the control loop depends on.
package hal

import (
	"context"
	"time"
)

// Timer paces the control loop.
type Timer interface {
	// SetupPeriod configures the recurring tick.
	SetupPeriod(period time.Duration)
	// WaitPeriod blocks until the next tick boundary.
	WaitPeriod(ctx context.Context) error
	// Wait blocks for a fixed short delay.
	Wait(ctx context.Context, d time.Duration) error
}

// Bus is a synchronous serial bus (SPI) seen from the master.
type Bus interface {
	// Transfer exchanges one byte full-duplex.
	Transfer(b byte) byte
	// Overrun reports a receive overrun since the last ClearOverrun.
	Overrun() bool
	// ClearOverrun clears the receive overrun flag.
	ClearOverrun()
}

// Pin is a digital output, used for chip selects and indicators.
type Pin interface {
	Set(high bool)
	Get() bool
}

// Toggle inverts the level of p.
func Toggle(p Pin) {
	p.Set(!p.Get())
}
