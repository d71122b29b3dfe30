// Package mag acquires and filters magnetometer readings.
package mag

import "math"

// Reading is one triaxial sample. Components are wide enough to sum a
// full window of raw values.
type Reading struct {
	X, Y, Z int64
}

// WindowSize is the number of samples averaged.
const WindowSize = 5

// Window is a circular history of the last WindowSize readings.
type Window struct {
	readings [WindowSize]Reading
	w        int
	avg      Reading
}

// Push overwrites the oldest reading with r and returns the new average.
func (w *Window) Push(r Reading) Reading {
	w.readings[w.w] = r
	w.w = (w.w + 1) % WindowSize
	return w.recompute()
}

// Average returns the average computed by the last Push.
func (w *Window) Average() Reading {
	return w.avg
}

// recompute sums the whole window rather than keeping a running sum.
// Division truncates toward zero.
func (w *Window) recompute() Reading {
	var sum Reading
	for _, r := range w.readings {
		sum.X += r.X
		sum.Y += r.Y
		sum.Z += r.Z
	}
	w.avg = Reading{X: sum.X / WindowSize, Y: sum.Y / WindowSize, Z: sum.Z / WindowSize}
	return w.avg
}

// Heading returns the yaw in whole degrees, truncated toward zero,
// derived from the X and Y components.
func Heading(r Reading) int {
	return int(math.Atan2(float64(r.Y), float64(r.X)) / math.Pi * 180)
}
