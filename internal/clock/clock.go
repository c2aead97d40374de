package clock

import "time"

// Clock is injected wherever the current instant matters, so the
// time-window rules stay testable.
type Clock interface {
	Now() time.Time
}

type Real struct{}

func (Real) Now() time.Time {
	return time.Now().UTC()
}
