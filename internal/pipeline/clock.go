package pipeline

import "github.com/jonboulle/clockwork"

// clock stamps run times. Tests freeze it via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for runs. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
