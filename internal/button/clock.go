package button

import "time"

// SystemClock counts milliseconds since it was created using the monotonic
// clock, truncated to 32 bits.
type SystemClock struct {
	start time.Time
}

// NewSystemClock starts a clock at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) NowMillis() uint32 {
	return uint32(time.Since(c.start) / time.Millisecond)
}
