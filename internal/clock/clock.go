package clock

import "time"

// Clock abstracts time for services that derive state from "now"
// (lot expiry, posting dates, fiscal period checks).
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
