package domain

import "time"

// Clock supplies the current time to the scheduling engine.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }
