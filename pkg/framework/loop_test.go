package framework

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/compass.go/pkg/hal/sim"
)

type taskRecorder struct {
	log []string
}

func (r *taskRecorder) task(err error) Controller {
	return ControlFunc(func(cc ControlContext) error {
		r.log = append(r.log, fmt.Sprintf("%d:%s", cc.Tick(), cc.TaskName()))
		return err
	})
}

func TestLoopTaskOrderAndRates(t *testing.T) {
	var rec taskRecorder
	l := NewLoop(sim.NewClock()).
		AddTask("c", Every(3), rec.task(nil)).
		AddTask("a", Every(1), rec.task(nil)).
		AddTask("b", Every(2), rec.task(nil))
	for i := 0; i < 6; i++ {
		l.Tick(context.Background())
	}
	require.Equal(t, []string{
		"1:a",
		"2:a", "2:b",
		"3:c", "3:a",
		"4:a", "4:b",
		"5:a",
		"6:c", "6:a", "6:b",
	}, rec.log)
	require.Equal(t, uint64(6), l.Ticks())
	require.Equal(t, uint64(2), l.Fired("c"))
	require.Equal(t, uint64(6), l.Fired("a"))
	require.Zero(t, l.Fired("none"))
}

func TestLoopRateFunc(t *testing.T) {
	var rec taskRecorder
	div := 0
	l := NewLoop(sim.NewClock()).AddTask("dyn", RateFunc(func() int { return div }), rec.task(nil))
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		l.Tick(ctx)
	}
	require.Empty(t, rec.log)

	div = 4
	for i := 0; i < 8; i++ {
		l.Tick(ctx)
	}
	require.Equal(t, []string{"14:dyn", "18:dyn"}, rec.log)

	// a smaller divisor takes effect on the counter already accumulated
	l.Tick(ctx)
	l.Tick(ctx)
	div = 2
	l.Tick(ctx)
	require.Equal(t, []string{"14:dyn", "18:dyn", "21:dyn"}, rec.log)
}

func TestLoopTaskErrorDoesNotStop(t *testing.T) {
	var rec taskRecorder
	l := NewLoop(sim.NewClock()).
		AddTask("bad", Every(1), rec.task(errors.New("boom"))).
		AddTask("good", Every(1), rec.task(nil))
	l.Tick(context.Background())
	require.Equal(t, []string{"1:bad", "1:good"}, rec.log)
}

func TestLoopRun(t *testing.T) {
	clock := sim.NewClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock.OnTick = func(tick int) {
		if tick == 100 {
			cancel()
		}
	}
	var rec taskRecorder
	l := NewLoop(clock).AddTask("slow", Every(50), rec.task(nil))
	l.Period = 20 * time.Millisecond
	require.Equal(t, context.Canceled, l.Run(ctx))
	require.Equal(t, uint64(100), l.Ticks())
	require.Equal(t, 2*time.Second, clock.Now())
	require.Equal(t, []string{"50:slow", "100:slow"}, rec.log)
}

type adderFunc func(*Loop)

func (f adderFunc) AddToLoop(l *Loop) { f(l) }

func TestLoopAdd(t *testing.T) {
	var rec taskRecorder
	l := NewLoop(sim.NewClock()).Add(adderFunc(func(l *Loop) {
		l.AddTask("added", Every(1), rec.task(nil))
	}))
	l.Tick(context.Background())
	require.Equal(t, []string{"1:added"}, rec.log)
}
