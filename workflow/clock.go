package workflow

import "time"

// Clock abstracts time retrieval so vesting math is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock pins "now"; used by tests and backfills.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }
