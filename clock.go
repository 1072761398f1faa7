package go_playsight

import "time"

// Clock is the time source for all trackers. Tests substitute a manual
// implementation to drive transitions deterministically.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
