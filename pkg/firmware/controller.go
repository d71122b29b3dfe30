// Package firmware wires the magnetometer heading loop: sensor
// acquisition, telemetry and the RATE command on top of the scheduler.
package firmware

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/compass.go/pkg/framework"
	"github.com/robotalks/compass.go/pkg/hal"
	"github.com/robotalks/compass.go/pkg/l0/comm"
	"github.com/robotalks/compass.go/pkg/mag"
	"github.com/robotalks/compass.go/pkg/ring"
)

// Fixed task rates in Hz. The heartbeat pin toggles twice a second.
const (
	HeartbeatHz = 2
	AcquireHz   = 25
	YawHz       = 5
)

// DefaultTicksPerSecond is the tick rate at fx.DefaultPeriod.
const DefaultTicksPerSecond = 100

// TicksPerSecond returns how many periods fit in a second, or 0 when
// period doesn't divide a second evenly.
func TicksPerSecond(period time.Duration) int {
	if period <= 0 || time.Second%period != 0 {
		return 0
	}
	return int(time.Second / period)
}

// PrefillInterval spaces the readings which fill the window at start.
const PrefillInterval = 40 * time.Millisecond

// Controller runs the heading loop. It is only touched from the loop
// goroutine, except for the two rings shared with the serial bridge.
type Controller struct {
	Device        *mag.Device
	Timer         hal.Timer
	Heartbeat     hal.Pin
	AlgorithmLoad time.Duration
	Sinks         []Sink

	// TicksPerSecond converts task rates into loop divisors.
	TicksPerSecond int
	// Kick is called after frames were queued for output.
	Kick           func()

	input  *ring.Ring[byte]
	output *ring.Ring[byte]
	in     ring.Consumer[byte]
	out    ring.Producer[byte]

	parser  comm.Parser
	window  mag.Window
	heading int
	rate    int
	scratch [scratchSize]byte
	dropped uint64
}

// NewController creates a Controller with its rings. The telemetry rate
// starts at DefaultRate.
func NewController(hw *Hardware, inputSize, outputSize int) *Controller {
	c := &Controller{
		Device:    hw.Device,
		Timer:     hw.Timer,
		Heartbeat: hw.Heartbeat,
		input:     ring.New[byte](inputSize),
		output:    ring.New[byte](outputSize),
		rate:      DefaultRate,

		TicksPerSecond: DefaultTicksPerSecond,
	}
	c.in, c.out = c.input.Consumer(), c.output.Producer()
	return c
}

// Input is the producer side of the input ring, for the serial bridge.
func (c *Controller) Input() ring.Producer[byte] {
	return c.input.Producer()
}

// Output is the consumer side of the output ring, for the serial bridge.
func (c *Controller) Output() ring.Consumer[byte] {
	return c.output.Consumer()
}

// Rate returns the current MAG telemetry rate in Hz.
func (c *Controller) Rate() int {
	return c.rate
}

// Heading returns the last computed heading in degrees.
func (c *Controller) Heading() int {
	return c.heading
}

// Average returns the current window average.
func (c *Controller) Average() mag.Reading {
	return c.window.Average()
}

// Dropped returns how many outbound frames didn't fit the output ring.
func (c *Controller) Dropped() uint64 {
	return c.dropped
}

// Start activates the magnetometer and fills the window so the first
// average is made of real readings.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.Device.Activate(ctx); err != nil {
		return fmt.Errorf("activate magnetometer: %w", err)
	}
	for i := 0; i < mag.WindowSize; i++ {
		c.window.Push(c.Device.Read())
		if err := c.Timer.Wait(ctx, PrefillInterval); err != nil {
			return err
		}
	}
	c.heading = mag.Heading(c.window.Average())
	glog.Infof("window filled: avg %+v, heading %d", c.window.Average(), c.heading)
	return nil
}

// AddToLoop implements LoopAdder.
func (c *Controller) AddToLoop(l *fx.Loop) {
	if c.AlgorithmLoad > 0 {
		l.AddTask("algorithm", fx.Every(1), fx.ControlFunc(c.runAlgorithm))
	}
	l.AddTask("heartbeat", fx.Every(c.TicksPerSecond/HeartbeatHz), fx.ControlFunc(c.toggleHeartbeat)).
		AddTask("acquire", fx.Every(c.TicksPerSecond/AcquireHz), fx.ControlFunc(c.acquire)).
		AddTask("mag", fx.RateFunc(c.magDivisor), fx.ControlFunc(c.sendMag)).
		AddTask("yaw", fx.Every(c.TicksPerSecond/YawHz), fx.ControlFunc(c.sendYaw)).
		AddTask("command", fx.Every(1), fx.ControlFunc(c.processInput))
}

// runAlgorithm stands for the attitude algorithm sharing the tick.
func (c *Controller) runAlgorithm(cc fx.ControlContext) error {
	if err := c.Timer.Wait(cc.Context(), c.AlgorithmLoad); err != nil && cc.Context().Err() == nil {
		return err
	}
	return nil
}

func (c *Controller) toggleHeartbeat(fx.ControlContext) error {
	if c.Heartbeat != nil {
		hal.Toggle(c.Heartbeat)
	}
	return nil
}

func (c *Controller) acquire(fx.ControlContext) error {
	c.heading = mag.Heading(c.window.Push(c.Device.Read()))
	return nil
}

func (c *Controller) magDivisor() int {
	if c.rate == 0 {
		return 0
	}
	return c.TicksPerSecond / c.rate
}
