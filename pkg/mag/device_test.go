package mag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/compass.go/pkg/hal"
	"github.com/robotalks/compass.go/pkg/hal/sim"
)

type deviceTestEnv struct {
	clock *sim.Clock
	cs    *sim.Pin
	acc   *sim.Pin
	gyr   *sim.Pin
	led   *sim.Pin
	chip  *sim.Magnetometer
	dev   *Device
}

func newDeviceTestEnv(src sim.FieldSource) *deviceTestEnv {
	env := &deviceTestEnv{
		clock: sim.NewClock(),
		cs:    sim.NewPin("cs-mag", true),
		acc:   sim.NewPin("cs-acc", false),
		gyr:   sim.NewPin("cs-gyr", false),
		led:   sim.NewPin("led-overrun", false),
	}
	env.chip = sim.NewMagnetometer(env.cs, src)
	env.dev = &Device{
		Bus:     env.chip,
		Timer:   env.clock,
		CS:      env.cs,
		Others:  []hal.Pin{env.acc, env.gyr},
		Overrun: env.led,
	}
	return env
}

func TestActivate(t *testing.T) {
	env := newDeviceTestEnv(nil)
	require.NoError(t, env.dev.Activate(context.Background()))
	require.True(t, env.acc.Get())
	require.True(t, env.gyr.Get())
	require.True(t, env.cs.Get())
	require.True(t, env.chip.Active())
	require.Equal(t, [][2]byte{{0x4b, 0x01}, {0x4c, 0x00}}, env.chip.Writes())
	require.Equal(t, []time.Duration{ModeSwitchDelay, ModeSwitchDelay}, env.clock.Waits())
}

func TestActivateCanceled(t *testing.T) {
	env := newDeviceTestEnv(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, context.Canceled, env.dev.Activate(ctx))
	require.False(t, env.chip.Active())
}

func TestReadAxisSignExtension(t *testing.T) {
	testCases := []struct {
		x, y, z int
	}{
		{0, 0, 0},
		{1, -1, 1},
		{4095, -4096, 16383},
		{-4096, 4095, -16384},
		{-1234, 567, -89},
	}
	for _, tc := range testCases {
		env := newDeviceTestEnv(sim.ConstantField(tc.x, tc.y, tc.z))
		require.NoError(t, env.dev.Activate(context.Background()))
		require.Equal(t, Reading{int64(tc.x), int64(tc.y), int64(tc.z)}, env.dev.Read())
	}
}

func TestReadBeforeActivate(t *testing.T) {
	env := newDeviceTestEnv(sim.ConstantField(10, 20, 30))
	require.Equal(t, Reading{}, env.dev.Read())
}

func TestOverrunLatch(t *testing.T) {
	env := newDeviceTestEnv(sim.ConstantField(10, 20, 30))
	require.NoError(t, env.dev.Activate(context.Background()))

	env.chip.InjectOverrun()
	require.Equal(t, 10, env.dev.ReadAxis(AxisX))
	require.True(t, env.led.Get())
	require.False(t, env.chip.Overrun())
	require.Equal(t, 1, env.dev.Overruns())

	// the indicator stays latched
	require.Equal(t, Reading{10, 20, 30}, env.dev.Read())
	require.True(t, env.led.Get())
	require.Equal(t, 1, env.dev.Overruns())
}
