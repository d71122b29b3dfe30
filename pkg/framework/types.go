package framework

import (
	"context"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Controller defines the logic of one scheduled task.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc defines the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(ctx ControlContext) error {
	return f(ctx)
}

// ControlContext provides the context of the current tick to a task.
type ControlContext interface {
	// Context retrieves context.Context.
	Context() context.Context
	// Tick is the number of the current tick, starting at 1.
	Tick() uint64
	// TaskName is the name the task was added with.
	TaskName() string
}

// LoopAdder provides specific logic to add tasks to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

// Rate tells how often a task fires.
type Rate interface {
	// Divisor returns the number of ticks between two firings.
	// Zero suspends the task.
	Divisor() int
}

// Every fires a task once every n ticks.
type Every int

// Divisor implements Rate.
func (n Every) Divisor() int { return int(n) }

// RateFunc is the func form of Rate, for divisors changing at runtime.
type RateFunc func() int

// Divisor implements Rate.
func (f RateFunc) Divisor() int { return f() }
