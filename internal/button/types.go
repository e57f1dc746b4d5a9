// Package button contains the debounce and edge-detection logic for single
// push buttons.
// This package has NO external dependencies (no GPIO, MQTT, OS, or logging).
// Time and pin level are always injected via Clock and Pin.
package button

import "time"

// DefaultDebounceMillis is the debounce window used when Options.Debounce is 0.
const DefaultDebounceMillis = 50

// Clock is a monotonic millisecond time source. It wraps at 32 bits; all
// duration math in this package uses modular subtraction.
type Clock interface {
	NowMillis() uint32
}

// Pin reads the raw, un-inverted electrical level of a button input.
type Pin interface {
	Level() bool
}

// Polarity maps a raw pin level to the logical active state.
type Polarity int

const (
	// ActiveLow is pull-up wiring: pressed pulls the pin low.
	ActiveLow Polarity = iota
	ActiveHigh
)

func (p Polarity) String() string {
	if p == ActiveHigh {
		return "active-high"
	}
	return "active-low"
}

// PressFunc is called on every confirmed press with the new toggle state.
type PressFunc func(toggle bool)

// Options configures a Channel.
type Options struct {
	// Debounce window in milliseconds. Zero selects DefaultDebounceMillis.
	Debounce uint32
	Polarity Polarity
	OnPress  PressFunc
	// OnTransition observes every confirmed transition, including catch-up
	// releases and the first long-press detection of a press.
	OnTransition func(Event)
	// Sleep is used by WaitLongPress between polls. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// EventType names a reported transition.
type EventType string

const (
	EventPress     EventType = "PRESS"
	EventRelease   EventType = "RELEASE"
	EventLongPress EventType = "LONG_PRESS"
)

// Event is a confirmed transition of one channel.
type Event struct {
	Button   string
	Line     int
	Type     EventType
	Toggle   bool
	Duration uint32 // ms; previous period for PRESS/RELEASE, held time for LONG_PRESS
	At       uint32 // clock millis
	CatchUp  bool   // release detected after the press callback returned
}

// State is a point-in-time copy of a channel's debounced state.
type State struct {
	Active        bool
	Toggle        bool
	JustChanged   bool
	LastChange    uint32
	Release       uint32
	PressDuration uint32
}

// Stats counts how notifications were classified since construction.
type Stats struct {
	Bounces     int
	Spikes      int
	Transitions int
	CatchUps    int
	Presses     int
	Releases    int
	LongPresses int
}

// LongPress is the outcome of a long-press check.
type LongPress int

const (
	LongPressPossible LongPress = iota
	LongPressAborted
	LongPressDetected
)

func (l LongPress) String() string {
	switch l {
	case LongPressAborted:
		return "ABORTED"
	case LongPressDetected:
		return "DETECTED"
	default:
		return "STILL_POSSIBLE"
	}
}
