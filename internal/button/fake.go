package button

// FakeClock is a test Clock whose time only moves when told to.
type FakeClock struct {
	Now uint32
}

// NowMillis returns the current fake time.
func (f *FakeClock) NowMillis() uint32 {
	return f.Now
}

// Advance moves the clock forward by ms, wrapping at 32 bits.
func (f *FakeClock) Advance(ms uint32) {
	f.Now += ms
}

// FakePin is a test Pin with a settable raw level. The helpers assume
// ActiveLow wiring.
type FakePin struct {
	High bool
	// Reads counts calls to Level.
	Reads int
}

// NewFakePin returns a pin reading high, i.e. a released pull-up button.
func NewFakePin() *FakePin {
	return &FakePin{High: true}
}

// Level returns the scripted raw level.
func (f *FakePin) Level() bool {
	f.Reads++
	return f.High
}

// Press pulls the pin low.
func (f *FakePin) Press() { f.High = false }

// Release lets the pull-up take the pin high.
func (f *FakePin) Release() { f.High = true }
