package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock backs Now. Tests freeze it with SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used to stamp runs. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Clock returns the current time source.
func Clock() clockwork.Clock { return clock }

// Now returns the current UTC time from the package clock.
func Now() time.Time { return clock.Now().UTC() }
