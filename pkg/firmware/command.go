package firmware

import (
	"github.com/golang/glog"

	fx "github.com/robotalks/compass.go/pkg/framework"
	"github.com/robotalks/compass.go/pkg/l0/comm"
)

// DefaultRate is the MAG telemetry rate in Hz after reset.
const DefaultRate = 5

// ValidRates are the MAG telemetry rates accepted by RATE. 0 disables MAG
// telemetry.
var ValidRates = [...]int{0, 1, 2, 4, 5, 10}

// Error codes sent in ERR frames.
const (
	ErrCodeInvalidRate = 1
)

// ValidRate tells whether rate is one of ValidRates.
func ValidRate(rate int) bool {
	for _, r := range ValidRates {
		if r == rate {
			return true
		}
	}
	return false
}

// processInput drains every byte currently in the input ring through the
// parser and handles completed frames.
func (c *Controller) processInput(fx.ControlContext) error {
	for {
		b, ok := c.in.TryPop()
		if !ok {
			return nil
		}
		if c.parser.Parse(b) == comm.NewMessage {
			c.handleFrame(c.parser.Type(), c.parser.Payload())
		}
	}
}

func (c *Controller) handleFrame(typ, payload []byte) {
	switch string(typ) {
	case "RATE":
		c.handleRate(payload)
	default:
		glog.V(3).Infof("IN %s ignored", typ)
	}
}

// handleRate applies a RATE command. Payload digits are not validated.
func (c *Controller) handleRate(payload []byte) {
	rate := comm.ExtractInteger(payload)
	if !ValidRate(rate) {
		glog.V(1).Infof("RATE %d rejected", rate)
		c.emit("ERR", ErrCodeInvalidRate)
		return
	}
	if rate != c.rate {
		glog.V(1).Infof("MAG rate %d -> %d Hz", c.rate, rate)
	}
	c.rate = rate
}
