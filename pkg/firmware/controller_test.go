package firmware

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/compass.go/pkg/framework"
	"github.com/robotalks/compass.go/pkg/hal/sim"
	"github.com/robotalks/compass.go/pkg/l0/comm"
	"github.com/robotalks/compass.go/pkg/mag"
	"github.com/robotalks/compass.go/pkg/ring"
)

type controllerTestEnv struct {
	t      *testing.T
	clock  *sim.Clock
	hw     *Hardware
	ctl    *Controller
	loop   *fx.Loop
	out    ring.Consumer[byte]
	parser comm.Parser
	frames []string
}

func newControllerTestEnv(t *testing.T, src sim.FieldSource, tweak func(*Config)) *controllerTestEnv {
	clock := sim.NewClock()
	hw := NewSimHardware(clock, src)
	conf := NewConfig()
	if tweak != nil {
		tweak(conf)
	}
	ctl, err := conf.NewController(hw)
	require.NoError(t, err)
	require.NoError(t, ctl.Start(context.Background()))
	loop := fx.NewLoop(clock).Add(ctl)
	loop.Period = conf.Period
	return &controllerTestEnv{
		t:     t,
		clock: clock,
		hw:    hw,
		ctl:   ctl,
		loop:  loop,
		out:   ctl.Output(),
	}
}

func (e *controllerTestEnv) send(s string) *controllerTestEnv {
	require.True(e.t, e.ctl.Input().TryPushAll([]byte(s)))
	return e
}

// run ticks the loop, draining the output ring after every tick into
// frames tagged with the tick number.
func (e *controllerTestEnv) run(ticks int) *controllerTestEnv {
	for i := 0; i < ticks; i++ {
		e.loop.Tick(context.Background())
		e.drain()
	}
	return e
}

func (e *controllerTestEnv) drain() {
	for {
		b, ok := e.out.TryPop()
		if !ok {
			return
		}
		if e.parser.Parse(b) == comm.NewMessage {
			e.frames = append(e.frames, fmt.Sprintf("%d:%s", e.loop.Ticks(), e.parser.Frame()))
		}
	}
}

func (e *controllerTestEnv) ticksOf(typ string) (ticks []int) {
	for _, f := range e.frames {
		tick, frame, _ := strings.Cut(f, ":")
		if strings.HasPrefix(frame, "$"+typ) {
			n, err := strconv.Atoi(tick)
			require.NoError(e.t, err)
			ticks = append(ticks, n)
		}
	}
	return
}

func (e *controllerTestEnv) drainRaw() string {
	var sb strings.Builder
	for {
		b, ok := e.out.TryPop()
		if !ok {
			return sb.String()
		}
		sb.WriteByte(b)
	}
}

func TestControllerStart(t *testing.T) {
	env := newControllerTestEnv(t, func(sample int) (int, int, int) {
		return sample * 10, 0, -sample
	}, nil)
	// activation then five readings 40ms apart
	require.Equal(t, []time.Duration{
		3 * time.Millisecond, 3 * time.Millisecond,
		40 * time.Millisecond, 40 * time.Millisecond, 40 * time.Millisecond,
		40 * time.Millisecond, 40 * time.Millisecond,
	}, env.clock.Waits())
	require.Equal(t, mag.Reading{X: 20, Y: 0, Z: -2}, env.ctl.Average())
	require.Equal(t, 0, env.ctl.Heading())

	// first acquisition at tick 4 replaces the oldest reading
	env.run(3)
	require.Equal(t, mag.Reading{X: 20, Y: 0, Z: -2}, env.ctl.Average())
	env.run(1)
	require.Equal(t, mag.Reading{X: 30, Y: 0, Z: -3}, env.ctl.Average())
}

func TestControllerStartCanceled(t *testing.T) {
	hw := NewSimHardware(sim.NewClock(), sim.ConstantField(1, 2, 3))
	ctl, err := NewConfig().NewController(hw)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, ctl.Start(ctx), context.Canceled)
}

func TestControllerDefaultTelemetry(t *testing.T) {
	env := newControllerTestEnv(t, sim.ConstantField(100, 100, 50), nil).run(100)
	require.Equal(t, DefaultRate, env.ctl.Rate())
	require.Equal(t, []int{20, 40, 60, 80, 100}, env.ticksOf("MAG"))
	require.Equal(t, []int{20, 40, 60, 80, 100}, env.ticksOf("YAW"))
	require.Equal(t, []string{"20:$MAG,100,100,50*", "20:$YAW,45*"}, env.frames[:2])
	require.Equal(t, 45, env.ctl.Heading())
}

func TestControllerAlgorithmLoad(t *testing.T) {
	env := newControllerTestEnv(t, sim.ConstantField(1, 1, 1), nil)
	start := len(env.clock.Waits())
	env.run(3)
	require.Equal(t, []time.Duration{7 * time.Millisecond, 7 * time.Millisecond, 7 * time.Millisecond},
		env.clock.Waits()[start:])

	env = newControllerTestEnv(t, sim.ConstantField(1, 1, 1), func(conf *Config) {
		conf.AlgorithmLoad = 0
	})
	start = len(env.clock.Waits())
	env.run(3)
	require.Len(t, env.clock.Waits(), start)
}

func TestControllerHeartbeat(t *testing.T) {
	env := newControllerTestEnv(t, sim.ConstantField(1, 1, 1), nil)
	led := env.hw.Heartbeat.(*sim.Pin)
	env.run(49)
	require.Zero(t, led.Changes())
	env.run(1)
	require.True(t, led.Get())
	env.run(50)
	require.False(t, led.Get())
	require.Equal(t, 2, led.Changes())
}

func TestControllerRate(t *testing.T) {
	t.Run("rate 5 gives MAG every 20 ticks", func(t *testing.T) {
		env := newControllerTestEnv(t, sim.ConstantField(100, 0, 0), func(conf *Config) {
			conf.Rate = 1
		})
		require.Equal(t, 1, env.ctl.Rate())
		env.send("$RATE,5*").run(100)
		require.Equal(t, 5, env.ctl.Rate())
		require.Equal(t, []int{20, 40, 60, 80, 100}, env.ticksOf("MAG"))
		require.Empty(t, env.ticksOf("ERR"))
	})

	t.Run("rate 10", func(t *testing.T) {
		env := newControllerTestEnv(t, sim.ConstantField(100, 0, 0), nil)
		env.send("$RATE,10*").run(50)
		require.Equal(t, 10, env.ctl.Rate())
		require.Equal(t, []int{10, 20, 30, 40, 50}, env.ticksOf("MAG"))
		require.Equal(t, []int{20, 40}, env.ticksOf("YAW"))
	})

	t.Run("rate 0 suspends MAG", func(t *testing.T) {
		env := newControllerTestEnv(t, sim.ConstantField(100, 0, 0), nil)
		env.send("$RATE,0*").run(100)
		require.Empty(t, env.ticksOf("MAG"))
		require.Equal(t, []int{20, 40, 60, 80, 100}, env.ticksOf("YAW"))

		// counting resumes where it was suspended
		env.send("$RATE,1*").run(100)
		require.Equal(t, []int{200}, env.ticksOf("MAG"))
	})

	t.Run("signed", func(t *testing.T) {
		env := newControllerTestEnv(t, sim.ConstantField(100, 0, 0), nil)
		env.send("$RATE,+4*").run(1)
		require.Equal(t, 4, env.ctl.Rate())
	})
}

func TestControllerPeriod(t *testing.T) {
	env := newControllerTestEnv(t, sim.ConstantField(100, 0, 0), func(conf *Config) {
		conf.Period = 5 * time.Millisecond
		conf.AlgorithmLoad = 2 * time.Millisecond
	})
	require.Equal(t, 200, env.ctl.TicksPerSecond)
	led := env.hw.Heartbeat.(*sim.Pin)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.clock.OnTick = func(tick int) {
		env.drain()
		if tick == 400 {
			cancel()
		}
	}
	// two seconds of virtual time
	require.Equal(t, context.Canceled, env.loop.Run(ctx))
	require.Equal(t, uint64(400), env.loop.Ticks())

	require.Len(t, env.ticksOf("MAG"), 10)
	require.Equal(t, []int{40, 80}, env.ticksOf("MAG")[:2])
	require.Len(t, env.ticksOf("YAW"), 10)
	require.Equal(t, uint64(50), env.loop.Fired("acquire"))
	require.Equal(t, 4, led.Changes())

	env.send("$RATE,10*").run(200)
	require.Len(t, env.ticksOf("MAG"), 20)
}

func TestControllerRateReply(t *testing.T) {
	tests := []struct {
		in   string
		out  string
		rate int
	}{
		{"$RATE,3*", "$ERR,1*", DefaultRate},
		{"$RATE,-1*", "$ERR,1*", DefaultRate},
		{"$RATE,1a*", "$ERR,1*", DefaultRate},
		{"$RATE,2,9*", "", 2},
		{"$RATE*", "", 0},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			env := newControllerTestEnv(t, sim.ConstantField(100, 0, 0), nil)
			kicks := 0
			env.ctl.Kick = func() { kicks++ }
			env.send(test.in)
			env.loop.Tick(context.Background())
			require.Equal(t, test.out, env.drainRaw())
			require.Equal(t, len(test.out)/len("$ERR,1*"), kicks)
			require.Equal(t, test.rate, env.ctl.Rate())
		})
	}
}

func TestControllerIgnoresUnknownFrames(t *testing.T) {
	env := newControllerTestEnv(t, sim.ConstantField(100, 0, 0), nil)
	env.send("$FOO,1*").run(1)
	env.send("$rate,1*").run(1)
	require.Empty(t, env.frames)
	require.Equal(t, DefaultRate, env.ctl.Rate())
}

func TestControllerFrameAcrossTicks(t *testing.T) {
	env := newControllerTestEnv(t, sim.ConstantField(100, 0, 0), nil)
	env.send("xx$RA").run(1)
	require.Equal(t, DefaultRate, env.ctl.Rate())
	env.send("TE,2*").run(1)
	require.Equal(t, 2, env.ctl.Rate())
}

func TestControllerOutputFull(t *testing.T) {
	env := newControllerTestEnv(t, sim.ConstantField(100, 100, 50), func(conf *Config) {
		conf.OutputSize = MaxTelemetryLen + 1
	})
	for i := 0; i < 40; i++ {
		env.loop.Tick(context.Background())
	}
	// the frames of tick 40 are dropped whole, never truncated
	require.Equal(t, "$MAG,100,100,50*$YAW,45*", env.drainRaw())
	require.Equal(t, uint64(2), env.ctl.Dropped())
}

type recordingSink struct {
	frames []string
}

func (s *recordingSink) Publish(frame []byte) {
	s.frames = append(s.frames, string(frame))
}

func TestControllerSinks(t *testing.T) {
	env := newControllerTestEnv(t, sim.ConstantField(0, 100, 0), nil)
	sink := &recordingSink{}
	env.ctl.Sinks = []Sink{sink}
	env.send("$RATE,7*").run(20)
	assert.Equal(t, []string{"$ERR,1*", "$MAG,0,100,0*", "$YAW,90*"}, sink.frames)
}

func TestControllerOverrun(t *testing.T) {
	env := newControllerTestEnv(t, sim.ConstantField(1, 1, 1), nil)
	led := env.hw.Device.Overrun.(*sim.Pin)
	require.False(t, led.Get())
	env.hw.Device.Bus.(*sim.Magnetometer).InjectOverrun()
	env.run(4)
	require.True(t, led.Get())
	require.Equal(t, 1, env.hw.Device.Overruns())
	env.run(100)
	require.True(t, led.Get())
}
