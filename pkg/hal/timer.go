package hal

import (
	"context"
	"time"
)

// WallTimer implements Timer with the system clock.
type WallTimer struct {
	ticker *time.Ticker
}

// NewTimer creates a WallTimer.
func NewTimer() *WallTimer {
	return &WallTimer{}
}

// SetupPeriod implements Timer.
func (t *WallTimer) SetupPeriod(period time.Duration) {
	if t.ticker != nil {
		t.ticker.Stop()
	}
	t.ticker = time.NewTicker(period)
}

// WaitPeriod implements Timer.
// Ticks missed while the loop was busy are not queued: a late loop
// simply drifts.
func (t *WallTimer) WaitPeriod(ctx context.Context) error {
	if t.ticker == nil {
		panic("hal: WaitPeriod before SetupPeriod")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ticker.C:
		return nil
	}
}

// Wait implements Timer.
func (t *WallTimer) Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stop releases the ticker.
func (t *WallTimer) Stop() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
}
