package button

import (
	"context"
	"time"
)

// Channel is the debounced state of one button bound to one hardware line.
//
// A Channel is not safe for concurrent use. Edge notifications and polls
// must be delivered from a single goroutine; readers on other goroutines
// should copy a Snapshot from that goroutine instead of reading fields.
type Channel struct {
	// Immutable.
	name         string
	line         int
	pin          Pin
	clock        Clock
	debounce     uint32
	polarity     Polarity
	onPress      PressFunc
	onTransition func(Event)
	sleep        func(time.Duration)

	// Mutable. Written only by OnRawChange and the poll methods.
	isActive      bool
	toggle        bool
	justChanged   bool
	lastChange    uint32
	release       uint32
	pressDuration uint32
	// anchored is false until the first confirmed transition; the first edge
	// after construction skips the debounce guard.
	anchored     bool
	longReported bool
	stats        Stats
}

// New creates a Channel for the button called name on the given line.
// The channel starts inactive with the toggle latch off.
func New(name string, line int, pin Pin, clock Clock, opts Options) *Channel {
	c := &Channel{
		name:         name,
		line:         line,
		pin:          pin,
		clock:        clock,
		debounce:     opts.Debounce,
		polarity:     opts.Polarity,
		onPress:      opts.OnPress,
		onTransition: opts.OnTransition,
		sleep:        opts.Sleep,
	}
	if c.debounce == 0 {
		c.debounce = DefaultDebounceMillis
	}
	if c.sleep == nil {
		c.sleep = time.Sleep
	}
	return c
}

// readActive reads the pin and normalizes polarity.
func (c *Channel) readActive() bool {
	return c.pin.Level() != (c.polarity == ActiveLow)
}

// OnRawChange handles a notification that the hardware saw some level change
// on the bound line. It never blocks apart from the press callback.
// It returns true if a transition was confirmed.
func (c *Channel) OnRawChange() bool {
	active := c.readActive()
	now := c.clock.NowMillis()
	delta := now - c.lastChange

	// Ringing from the transition we already confirmed.
	if c.anchored && delta <= c.debounce {
		c.stats.Bounces++
		return false
	}
	// Interrupt without a durable level change. The anchor is left alone so
	// the next real edge is still measured from the last transition.
	if active == c.isActive {
		c.stats.Spikes++
		return false
	}

	c.commit(now, delta, active, false)
	if !active || c.onPress == nil {
		return true
	}

	c.onPress(c.toggle)

	// The button may have been released while the callback ran.
	if c.readActive() != c.isActive {
		now = c.clock.NowMillis()
		c.commit(now, now-c.lastChange, !c.isActive, true)
	}
	return true
}

func (c *Channel) commit(now, delta uint32, active, catchUp bool) {
	c.anchored = true
	c.lastChange = now
	c.pressDuration = delta
	c.isActive = active
	c.justChanged = true
	c.longReported = false
	c.stats.Transitions++
	if catchUp {
		c.stats.CatchUps++
	}

	typ := EventRelease
	if active {
		c.toggle = !c.toggle
		c.stats.Presses++
		typ = EventPress
	} else {
		c.release = now
		c.stats.Releases++
	}
	c.emit(typ, delta, now, catchUp)
}

func (c *Channel) emit(typ EventType, duration, at uint32, catchUp bool) {
	if c.onTransition == nil {
		return
	}
	c.onTransition(Event{
		Button:   c.name,
		Line:     c.line,
		Type:     typ,
		Toggle:   c.toggle,
		Duration: duration,
		At:       at,
		CatchUp:  catchUp,
	})
}

// PollForMissedEdge runs edge detection if the pin disagrees with the
// debounced state, covering edges the notification path lost or coalesced.
// It returns true if a transition was confirmed.
func (c *Channel) PollForMissedEdge() bool {
	if c.readActive() == c.isActive {
		return false
	}
	return c.OnRawChange()
}

// PollPressDuration updates the press duration while the button is held,
// since no notification arrives until release. It returns the duration.
func (c *Channel) PollPressDuration() uint32 {
	if c.readActive() {
		c.pressDuration = c.clock.NowMillis() - c.lastChange
	}
	return c.pressDuration
}

// CheckLongPress classifies the current press against threshold (ms).
// On detection the press duration is set to the exact held time.
func (c *Channel) CheckLongPress(threshold uint32) LongPress {
	if !c.readActive() {
		return LongPressAborted
	}
	now := c.clock.NowMillis()
	held := now - c.lastChange
	if held <= threshold {
		return LongPressPossible
	}
	c.pressDuration = held
	if !c.longReported {
		c.longReported = true
		c.stats.LongPresses++
		c.emit(EventLongPress, held, now, false)
	}
	return LongPressDetected
}

// WaitLongPress polls CheckLongPress every millisecond until the press is
// either detected as long or aborted. Cooperative callers should use
// CheckLongPress from their own loop instead.
func (c *Channel) WaitLongPress(ctx context.Context, threshold uint32) (bool, error) {
	for {
		switch c.CheckLongPress(threshold) {
		case LongPressDetected:
			return true, nil
		case LongPressAborted:
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}
		c.sleep(time.Millisecond)
	}
}

// AcknowledgeChange clears the change flag and reports whether it was set.
// Only the consumer clears the flag; a second edge before acknowledgement
// is not queued.
func (c *Channel) AcknowledgeChange() bool {
	changed := c.justChanged
	c.justChanged = false
	return changed
}

// Snapshot copies all state fields in one step.
func (c *Channel) Snapshot() State {
	return State{
		Active:        c.isActive,
		Toggle:        c.toggle,
		JustChanged:   c.justChanged,
		LastChange:    c.lastChange,
		Release:       c.release,
		PressDuration: c.pressDuration,
	}
}

func (c *Channel) Name() string { return c.name }
func (c *Channel) Line() int { return c.line }
func (c *Channel) Active() bool { return c.isActive }
func (c *Channel) Toggle() bool { return c.toggle }
func (c *Channel) JustChanged() bool { return c.justChanged }
func (c *Channel) LastChange() uint32 { return c.lastChange }
func (c *Channel) ReleaseTime() uint32 { return c.release }
func (c *Channel) PressDuration() uint32 { return c.pressDuration }
func (c *Channel) DebounceMillis() uint32 { return c.debounce }
func (c *Channel) Polarity() Polarity { return c.polarity }
func (c *Channel) Stats() Stats { return c.stats }
