package timeconv

import "time"

// Clock returns the current instant in UTC. Services take one so "now" can be pinned in tests.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t.UTC() }
}
