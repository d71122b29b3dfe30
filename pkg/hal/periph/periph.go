// Package periph implements hal on Linux boards through periph.io.
package periph

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Config names the SPI port and the GPIO lines used by the board.
type Config struct {
	SPIPort string `yaml:"spi_port"`
	SPIHz   int64  `yaml:"spi_hz"`

	CSMag string `yaml:"cs_mag"`
	CSAcc string `yaml:"cs_acc"`
	CSGyr string `yaml:"cs_gyr"`

	LEDOverrun   string `yaml:"led_overrun"`
	LEDHeartbeat string `yaml:"led_heartbeat"`
}

// Board is the opened hardware.
type Board struct {
	Bus          *Bus
	CSMag        *Pin
	CSAcc        *Pin
	CSGyr        *Pin
	LEDOverrun   *Pin
	LEDHeartbeat *Pin

	port spi.PortCloser
}

// Open initializes periph and opens everything named in conf.
func Open(conf Config) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	port, err := spireg.Open(conf.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("open SPI %q: %w", conf.SPIPort, err)
	}
	hz := conf.SPIHz
	if hz <= 0 {
		hz = 1000000
	}
	// chip selects are driven by GPIO so a transaction can span several Tx.
	c, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode3|spi.NoCS, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect SPI %q: %w", conf.SPIPort, err)
	}
	b := &Board{Bus: NewBus(c), port: port}
	pins := []struct {
		name string
		pin  **Pin
		high bool
	}{
		{conf.CSMag, &b.CSMag, true},
		{conf.CSAcc, &b.CSAcc, true},
		{conf.CSGyr, &b.CSGyr, true},
		{conf.LEDOverrun, &b.LEDOverrun, false},
		{conf.LEDHeartbeat, &b.LEDHeartbeat, false},
	}
	for _, p := range pins {
		if *p.pin, err = OpenPin(p.name, p.high); err != nil {
			port.Close()
			return nil, err
		}
	}
	glog.Infof("periph: SPI %s at %d Hz", conf.SPIPort, hz)
	return b, nil
}

// Close releases the SPI port.
func (b *Board) Close() error {
	return b.port.Close()
}

// Txer is the part of spi.Conn used by Bus.
type Txer interface {
	Tx(w, r []byte) error
}

// Bus implements hal.Bus over an SPI connection. A failed transfer is
// reported like a receive overrun.
type Bus struct {
	conn    Txer
	lock    sync.Mutex
	w, r    [1]byte
	overrun atomic.Bool
}

// NewBus wraps an SPI connection.
func NewBus(c Txer) *Bus {
	return &Bus{conn: c}
}

// Transfer implements hal.Bus.
func (b *Bus) Transfer(v byte) byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.w[0] = v
	if err := b.conn.Tx(b.w[:], b.r[:]); err != nil {
		glog.Warningf("periph: SPI transfer error: %v", err)
		b.overrun.Store(true)
		return 0
	}
	return b.r[0]
}

// Overrun implements hal.Bus.
func (b *Bus) Overrun() bool {
	return b.overrun.Load()
}

// ClearOverrun implements hal.Bus.
func (b *Bus) ClearOverrun() {
	b.overrun.Store(false)
}

// Pin implements hal.Pin with a GPIO output.
type Pin struct {
	io    gpio.PinOut
	level atomic.Bool
}

// OpenPin looks up a GPIO by name and drives it to the initial level.
func OpenPin(name string, high bool) (*Pin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("GPIO %q not found", name)
	}
	return NewPin(p, high)
}

// NewPin wraps a GPIO output and drives it to the initial level.
func NewPin(p gpio.PinOut, high bool) (*Pin, error) {
	pin := &Pin{io: p}
	pin.level.Store(high)
	if err := p.Out(level(high)); err != nil {
		return nil, fmt.Errorf("GPIO %s: %w", p, err)
	}
	return pin, nil
}

// Set implements hal.Pin.
func (p *Pin) Set(high bool) {
	if err := p.io.Out(level(high)); err != nil {
		glog.Warningf("periph: set %s: %v", p.io, err)
		return
	}
	p.level.Store(high)
}

// Get implements hal.Pin.
func (p *Pin) Get() bool {
	return p.level.Load()
}

func level(high bool) gpio.Level {
	if high {
		return gpio.High
	}
	return gpio.Low
}
