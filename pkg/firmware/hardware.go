package firmware

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/compass.go/pkg/hal"
	"github.com/robotalks/compass.go/pkg/hal/periph"
	"github.com/robotalks/compass.go/pkg/hal/sim"
	"github.com/robotalks/compass.go/pkg/mag"
)

// Simulated field: a horizontal component turning around a fixed
// vertical one.
const (
	simMagnitude = 1200
	simFieldZ    = -400
)

// Hardware is everything the Controller drives.
type Hardware struct {
	Timer     hal.Timer
	Device    *mag.Device
	Heartbeat hal.Pin

	closer func() error
}

// Close releases the hardware.
func (h *Hardware) Close() error {
	if h.closer != nil {
		return h.closer()
	}
	return nil
}

// OpenHardware opens the HAL named by the config, paced by a wall-clock
// timer.
func (c *Config) OpenHardware() (*Hardware, error) {
	timer := hal.NewTimer()
	switch c.HAL {
	case HALSim:
		hw := NewSimHardware(timer, sim.RotatingField(simMagnitude, simFieldZ, c.SimStep))
		hw.closer = func() error {
			timer.Stop()
			return nil
		}
		glog.Infof("simulated magnetometer, %.2f deg per sample", c.SimStep)
		return hw, nil
	case HALPeriph:
		board, err := periph.Open(c.Periph)
		if err != nil {
			return nil, err
		}
		return &Hardware{
			Timer: timer,
			Device: &mag.Device{
				Bus:     board.Bus,
				Timer:   timer,
				CS:      board.CSMag,
				Others:  []hal.Pin{board.CSAcc, board.CSGyr},
				Overrun: board.LEDOverrun,
			},
			Heartbeat: board.LEDHeartbeat,
			closer: func() error {
				timer.Stop()
				return board.Close()
			},
		}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownHAL, c.HAL)
	}
}

// NewSimHardware builds a simulated board: a magnetometer fed by src
// and idle accelerometer and gyroscope chip selects on one bus.
func NewSimHardware(timer hal.Timer, src sim.FieldSource) *Hardware {
	csMag := sim.NewPin("cs_mag", true)
	return &Hardware{
		Timer: timer,
		Device: &mag.Device{
			Bus:     sim.NewMagnetometer(csMag, src),
			Timer:   timer,
			CS:      csMag,
			Others:  []hal.Pin{sim.NewPin("cs_acc", false), sim.NewPin("cs_gyr", false)},
			Overrun: sim.NewPin("led_overrun", false),
		},
		Heartbeat: sim.NewPin("led_heartbeat", false),
	}
}
