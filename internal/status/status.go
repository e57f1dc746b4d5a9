// Package status provides a thread-safe status tracker for the easybutton
// daemon. It is written by the run loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/easybutton/internal/button"
)

// Config contains daemon configuration for display.
type Config struct {
	Driver      string
	PollMs      int64
	DebounceMs  int64
	LongPressMs int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// ButtonStatus is the last known state of one button.
type ButtonStatus struct {
	Name  string
	Line  int
	State button.State
	Stats button.Stats
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Buttons       []ButtonStatus
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Totals sums the statistics of all buttons.
func (s Snapshot) Totals() button.Stats {
	var t button.Stats
	for _, b := range s.Buttons {
		t.Bounces += b.Stats.Bounces
		t.Spikes += b.Stats.Spikes
		t.Transitions += b.Stats.Transitions
		t.CatchUps += b.Stats.CatchUps
		t.Presses += b.Stats.Presses
		t.Releases += b.Stats.Releases
		t.LongPresses += b.Stats.LongPresses
	}
	return t
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu            sync.RWMutex
	snap          Snapshot
	lastHeartbeat time.Time
	now           func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		lastHeartbeat: startTime,
		now:           time.Now,
	}
}

// Update records the state of one button. Buttons keep the order in which
// they were first seen.
func (t *Tracker) Update(bs ButtonStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.snap.Buttons {
		if t.snap.Buttons[i].Name == bs.Name {
			t.snap.Buttons[i] = bs
			return
		}
	}
	t.snap.Buttons = append(t.snap.Buttons, bs)
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetLongPressMs records a reloaded long-press threshold.
func (t *Tracker) SetLongPressMs(ms int64) {
	t.mu.Lock()
	t.snap.Config.LongPressMs = ms
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Buttons = append([]ButtonStatus(nil), t.snap.Buttons...)
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}

// CheckHeartbeat reports whether interval has elapsed since the last
// heartbeat (or startup) and, if so, restarts the interval at now.
// An interval <= 0 disables heartbeats.
func (t *Tracker) CheckHeartbeat(now time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Sub(t.lastHeartbeat) < interval {
		return false
	}
	t.lastHeartbeat = now
	return true
}
