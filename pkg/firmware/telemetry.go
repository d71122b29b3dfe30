package firmware

import (
	"github.com/golang/glog"

	fx "github.com/robotalks/compass.go/pkg/framework"
	"github.com/robotalks/compass.go/pkg/l0/comm"
)

// MaxTelemetryLen is the longest frame the controller emits:
// $MAG,-4096,-4096,-16384*
const MaxTelemetryLen = 24

const scratchSize = 32

// Sink receives a copy of every frame queued on the serial link.
// Publish must not block and must copy frame if it keeps it.
type Sink interface {
	Publish(frame []byte)
}

func (c *Controller) sendMag(fx.ControlContext) error {
	avg := c.window.Average()
	c.emit("MAG", avg.X, avg.Y, avg.Z)
	return nil
}

func (c *Controller) sendYaw(fx.ControlContext) error {
	c.emit("YAW", int64(c.heading))
	return nil
}

// emit renders a frame into the scratch buffer and queues it whole on
// the output ring. A frame which doesn't fit is dropped entirely.
func (c *Controller) emit(typ string, values ...int64) {
	frame := comm.AppendIntFrame(c.scratch[:0], typ, values...)
	if !c.out.TryPushAll(frame) {
		c.dropped++
		glog.V(2).Infof("output ring full, %s dropped", frame)
		return
	}
	glog.V(2).Infof("OUT %s", frame)
	if c.Kick != nil {
		c.Kick()
	}
	for _, s := range c.Sinks {
		s.Publish(frame)
	}
}
