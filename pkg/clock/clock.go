package clock

import "time"

// Clock supplies the current time. Services take a Clock instead of calling
// time.Now so due-date logic can be tested at a fixed instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// System returns a Clock backed by time.Now.
func System() Clock {
	return systemClock{}
}

// Fixed is a Clock frozen at a single instant.
type Fixed struct {
	Instant time.Time
}

func (f Fixed) Now() time.Time {
	return f.Instant
}

// At returns a Clock frozen at t.
func At(t time.Time) Fixed {
	return Fixed{Instant: t}
}
