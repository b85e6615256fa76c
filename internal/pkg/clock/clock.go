package clock

import "time"

// Clock abstracts the current time so expiry logic can be tested against a
// frozen timeline.
type Clock interface {
	// NowMS returns the current time as milliseconds since epoch.
	NowMS() int64
}

// System is the real wall clock.
type System struct{}

func (System) NowMS() int64 {
	return time.Now().UnixMilli()
}

// Fixed is a test clock that reports a settable instant.
type Fixed struct {
	MS int64
}

func (f *Fixed) NowMS() int64 { return f.MS }

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) { f.MS += d.Milliseconds() }
