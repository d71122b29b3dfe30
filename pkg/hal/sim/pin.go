package sim

import "sync"

// Pin is an in-memory hal.Pin.
type Pin struct {
	Name string
	// OnChange is called when the level changes.
	OnChange func(high bool)

	lock    sync.Mutex
	level   bool
	changes int
}

// NewPin creates a Pin with an initial level.
func NewPin(name string, high bool) *Pin {
	return &Pin{Name: name, level: high}
}

// Set implements hal.Pin.
func (p *Pin) Set(high bool) {
	p.lock.Lock()
	changed := p.level != high
	p.level = high
	if changed {
		p.changes++
	}
	fn := p.OnChange
	p.lock.Unlock()
	if changed && fn != nil {
		fn(high)
	}
}

// Get implements hal.Pin.
func (p *Pin) Get() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.level
}

// Changes returns how many times the level changed.
func (p *Pin) Changes() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.changes
}
