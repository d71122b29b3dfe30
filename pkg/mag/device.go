package mag

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/compass.go/pkg/hal"
)

// Axis selects a magnetometer axis.
type Axis int

// Axes in register order.
const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// BMX055 magnetometer registers.
const (
	regDataX  = 0x42 // X LSB, followed by X MSB, Y LSB/MSB, Z LSB/MSB
	regPower  = 0x4B
	regOpMode = 0x4C
	readFlag  = 0x80
)

const (
	powerSleep   = 0x01 // power bit set, sensor in sleep mode
	opModeNormal = 0x00
	// ModeSwitchDelay is how long the sensor needs after a mode change.
	ModeSwitchDelay = 3 * time.Millisecond
)

// Device is the magnetometer of a BMX055 on a shared SPI bus. The
// accelerometer and gyroscope of the same package sit on the bus too
// and are kept deselected. All chip selects are active low.
type Device struct {
	Bus   hal.Bus
	Timer hal.Timer
	CS    hal.Pin
	// Others are chip selects of the other devices on the bus.
	Others []hal.Pin
	// Overrun is latched high on a bus receive overrun. Never cleared.
	Overrun hal.Pin

	overruns int
}

// Activate deselects the other devices and brings the magnetometer from
// suspend to normal mode through sleep.
func (d *Device) Activate(ctx context.Context) error {
	for _, cs := range d.Others {
		cs.Set(true)
	}
	d.writeReg(regPower, powerSleep)
	if err := d.Timer.Wait(ctx, ModeSwitchDelay); err != nil {
		return err
	}
	d.writeReg(regOpMode, opModeNormal)
	if err := d.Timer.Wait(ctx, ModeSwitchDelay); err != nil {
		return err
	}
	glog.Info("magnetometer active")
	return nil
}

// Overruns returns how many bus overruns were seen.
func (d *Device) Overruns() int {
	return d.overruns
}

// Read samples all three axes.
func (d *Device) Read() Reading {
	return Reading{
		X: int64(d.ReadAxis(AxisX)),
		Y: int64(d.ReadAxis(AxisY)),
		Z: int64(d.ReadAxis(AxisZ)),
	}
}

// ReadAxis reads one axis. X and Y are 13-bit, Z is 15-bit, both signed
// and left-aligned in their register pair.
func (d *Device) ReadAxis(axis Axis) int {
	d.checkOverrun()
	d.CS.Set(false)
	defer d.CS.Set(true)
	d.Bus.Transfer(byte(regDataX+2*int(axis)) | readFlag)
	lsb := d.Bus.Transfer(0)
	msb := d.Bus.Transfer(0)
	if axis == AxisZ {
		return int(int16(uint16(lsb&0xfe)|uint16(msb)<<8) >> 1)
	}
	return int(int16(uint16(lsb&0xf8)|uint16(msb)<<8) >> 3)
}

// checkOverrun clears a pending overrun and latches the indicator. The
// read goes ahead anyway.
func (d *Device) checkOverrun() {
	if !d.Bus.Overrun() {
		return
	}
	d.Bus.ClearOverrun()
	d.overruns++
	if d.Overrun != nil {
		d.Overrun.Set(true)
	}
	glog.Warningf("SPI receive overrun (%d so far)", d.overruns)
}

func (d *Device) writeReg(reg, v byte) {
	d.CS.Set(false)
	d.Bus.Transfer(reg)
	d.Bus.Transfer(v)
	d.CS.Set(true)
}
