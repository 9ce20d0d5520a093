package game

import "time"

// Clock turns wall-clock frame times into clamped deltas and accumulated
// simulation time. Every gameplay timer compares against SimTime.
type Clock struct {
	MaxDelta float64
	SimTime  float64
	Frames   uint64
	last     time.Time
}

// NewClock creates a clock clamping dt to maxDelta seconds.
func NewClock(maxDelta float64) Clock {
	return Clock{MaxDelta: maxDelta}
}

// Tick advances to wall-clock time now. The first call yields dt = 0.
func (c *Clock) Tick(now time.Time) float64 {
	var dt float64
	if !c.last.IsZero() {
		dt = now.Sub(c.last).Seconds()
	}
	c.last = now
	return c.Advance(dt)
}

// Advance applies an explicit delta, clamped to [0, MaxDelta].
func (c *Clock) Advance(dt float64) float64 {
	if dt < 0 {
		dt = 0
	}
	if c.MaxDelta > 0 && dt > c.MaxDelta {
		dt = c.MaxDelta
	}
	c.SimTime += dt
	c.Frames++
	return dt
}
