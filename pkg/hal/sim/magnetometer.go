package sim

import (
	"math"
	"sync"
)

// BMX055 magnetometer registers modeled by Magnetometer.
const (
	regDataX   = 0x42
	regDataZ   = 0x46
	regPower   = 0x4B
	regOpMode  = 0x4C
	regReadBit = 0x80
	numRegs    = 0x80

	opModeSleep = 0x06
)

// FieldSource yields the raw field seen by the sensor at each sample.
type FieldSource func(sample int) (x, y, z int)

// ConstantField always yields the same raw values.
func ConstantField(x, y, z int) FieldSource {
	return func(int) (int, int, int) { return x, y, z }
}

// RotatingField simulates the sensor turning around its Z axis by step
// degrees per sample.
func RotatingField(magnitude, z int, step float64) FieldSource {
	return func(sample int) (int, int, int) {
		rad := float64(sample) * step * math.Pi / 180
		return int(float64(magnitude) * math.Cos(rad)), int(float64(magnitude) * math.Sin(rad)), z
	}
}

// Magnetometer is a BMX055 magnetometer attached to a simulated SPI bus.
// It implements hal.Bus. Transfers while its chip select is high are
// ignored and read back 0xFF.
type Magnetometer struct {
	Source FieldSource

	lock      sync.Mutex
	regs      [numRegs]byte
	selected  bool
	addr      int
	reading   bool
	gotAddr   bool
	samples   int
	overrun   bool
	writes    [][2]byte
	transfers int
}

// NewMagnetometer creates a Magnetometer selected by cs (active low).
func NewMagnetometer(cs *Pin, src FieldSource) *Magnetometer {
	m := &Magnetometer{Source: src}
	m.regs[regOpMode] = opModeSleep
	cs.OnChange = m.chipSelect
	m.chipSelect(cs.Get())
	return m
}

func (m *Magnetometer) chipSelect(high bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.selected = !high
	m.gotAddr, m.reading = false, false
}

// Active reports whether the chip has been powered and put in normal mode.
func (m *Magnetometer) Active() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.active()
}

func (m *Magnetometer) active() bool {
	return m.regs[regPower]&1 != 0 && m.regs[regOpMode]&0x06 == 0
}

// Writes returns the register writes seen so far as (register, value).
func (m *Magnetometer) Writes() [][2]byte {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([][2]byte(nil), m.writes...)
}

// InjectOverrun raises the bus receive overrun flag.
func (m *Magnetometer) InjectOverrun() {
	m.lock.Lock()
	m.overrun = true
	m.lock.Unlock()
}

// Overrun implements hal.Bus.
func (m *Magnetometer) Overrun() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.overrun
}

// ClearOverrun implements hal.Bus.
func (m *Magnetometer) ClearOverrun() {
	m.lock.Lock()
	m.overrun = false
	m.lock.Unlock()
}

// Transfer implements hal.Bus.
func (m *Magnetometer) Transfer(b byte) byte {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.transfers++
	if !m.selected {
		return 0xff
	}
	if !m.gotAddr {
		m.gotAddr = true
		m.reading = b&regReadBit != 0
		m.addr = int(b &^ regReadBit)
		if m.reading && m.addr == regDataX {
			m.latchSample()
		}
		return 0
	}
	if !m.reading {
		m.writeReg(m.addr, b)
		m.addr = (m.addr + 1) % numRegs
		return 0
	}
	if m.addr >= regDataX && m.addr < regDataX+6 && !m.active() {
		m.addr = (m.addr + 1) % numRegs
		return 0
	}
	v := m.regs[m.addr]
	m.addr = (m.addr + 1) % numRegs
	return v
}

func (m *Magnetometer) writeReg(addr int, v byte) {
	m.writes = append(m.writes, [2]byte{byte(addr), v})
	switch addr {
	case regPower:
		m.regs[regPower] = v & 0x83
	case regOpMode:
		m.regs[regOpMode] = v
	default:
		if addr < regDataX || addr >= regDataX+8 {
			m.regs[addr] = v
		}
	}
}

// latchSample refreshes the data registers from Source when the X axis
// is addressed, so the three axes of one acquisition are consistent.
func (m *Magnetometer) latchSample() {
	if m.Source == nil {
		return
	}
	x, y, z := m.Source(m.samples)
	m.samples++
	m.regs[regDataX], m.regs[regDataX+1] = encodeAxis(x, 3)
	m.regs[regDataX+2], m.regs[regDataX+3] = encodeAxis(y, 3)
	m.regs[regDataZ], m.regs[regDataZ+1] = encodeAxis(z, 1)
}

// encodeAxis packs a signed value left-aligned in a 16-bit register pair,
// the low shift bits of LSB being status bits.
func encodeAxis(v, shift int) (lsb, msb byte) {
	raw := uint16(int16(v) << shift)
	return byte(raw), byte(raw >> 8)
}
