package framework

import (
	"context"
	"log"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/compass.go/pkg/hal"
)

// DefaultPeriod is the tick period when Loop.Period is not set (100 Hz).
const DefaultPeriod = 10 * time.Millisecond

// Loop is a cooperative multi-rate scheduler. Each tick it advances one
// counter per task and runs, in the order they were added, the tasks
// whose counter reached their divisor. It then blocks on the Timer until
// the next tick boundary. Work overrunning a period makes the loop
// drift; nothing tries to catch up.
type Loop struct {
	Period time.Duration
	Timer  hal.Timer

	tasks []*task
	tick  uint64
}

type task struct {
	name    string
	rate    Rate
	ctl     Controller
	counter int
	fired   uint64
}

type tickCtx struct {
	ctx  context.Context
	tick uint64
	task *task
}

func (c *tickCtx) Context() context.Context { return c.ctx }
func (c *tickCtx) Tick() uint64             { return c.tick }
func (c *tickCtx) TaskName() string         { return c.task.name }

// NewLoop creates a Loop paced by timer.
func NewLoop(timer hal.Timer) *Loop {
	return &Loop{Period: DefaultPeriod, Timer: timer}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddTask appends a task. Tasks due in the same tick run in the order
// they were added.
func (l *Loop) AddTask(name string, rate Rate, ctl Controller) *Loop {
	l.tasks = append(l.tasks, &task{name: name, rate: rate, ctl: ctl})
	return l
}

// Ticks returns the number of ticks run so far.
func (l *Loop) Ticks() uint64 {
	return l.tick
}

// Fired returns how many times the named task ran.
func (l *Loop) Fired(name string) uint64 {
	for _, t := range l.tasks {
		if t.name == name {
			return t.fired
		}
	}
	return 0
}

// Tick runs one scheduling step without waiting.
func (l *Loop) Tick(ctx context.Context) {
	l.tick++
	tc := &tickCtx{ctx: ctx, tick: l.tick}
	for _, t := range l.tasks {
		div := t.rate.Divisor()
		if div <= 0 {
			continue
		}
		if t.counter++; t.counter < div {
			continue
		}
		t.counter = 0
		t.fired++
		tc.task = t
		if err := t.ctl.Control(tc); err != nil {
			glog.Errorf("task %s error: %v", t.name, err)
		}
	}
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	period := l.Period
	if period == 0 {
		period = DefaultPeriod
	}
	l.Timer.SetupPeriod(period)
	glog.Infof("loop started: %d task(s), period %v", len(l.tasks), period)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.Tick(ctx)
		if err := l.Timer.WaitPeriod(ctx); err != nil {
			return err
		}
	}
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail() {
	if err := l.Run(context.TODO()); err != nil {
		log.Fatalln(err)
	}
}
