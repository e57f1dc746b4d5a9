package internal

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/easybutton/internal/button"
	"github.com/sweeney/easybutton/internal/gpio"
	"github.com/sweeney/easybutton/internal/mqtt"
	"github.com/sweeney/easybutton/internal/status"
)

var wallStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// rig wires fake GPIO inputs through the registry to a fake publisher the
// same way the daemon does, without the run loop.
type rig struct {
	bank     *gpio.FakeBank
	clock    *button.FakeClock
	registry *button.Registry
	pub      *mqtt.FakePublisher
	queue    []button.Event
}

func newRig(t *testing.T, onPress func(r *rig) button.PressFunc, names map[int]string) *rig {
	t.Helper()
	var lines []int
	for line := range names {
		lines = append(lines, line)
	}
	r := &rig{
		bank:     gpio.NewFakeBank(lines...),
		clock:    &button.FakeClock{Now: 1},
		registry: button.NewRegistry(),
		pub:      mqtt.NewFakePublisher(),
	}
	for line, name := range names {
		opts := button.Options{OnTransition: func(e button.Event) { r.queue = append(r.queue, e) }}
		if onPress != nil {
			opts.OnPress = onPress(r)
		}
		ch := button.New(name, line, r.bank.Input(line), r.clock, opts)
		if err := r.registry.Bind(ch); err != nil {
			t.Fatalf("bind %s: %v", name, err)
		}
	}
	return r
}

// edge sets the raw level of line at clock time at and delivers the edge.
func (r *rig) edge(t *testing.T, line int, high bool, at uint32) {
	t.Helper()
	r.clock.Now = at
	r.bank.Inputs[line].Set(high)
	r.bank.Emit(line)
	r.deliver(t)
}

func (r *rig) deliver(t *testing.T) {
	t.Helper()
	for {
		select {
		case line := <-r.bank.Edges():
			r.registry.Notify(line)
		default:
			r.flush(t)
			return
		}
	}
}

func (r *rig) flush(t *testing.T) {
	t.Helper()
	for _, e := range r.queue {
		ts := wallStart.Add(time.Duration(e.At) * time.Millisecond)
		if err := r.pub.Publish(e, ts); err != nil {
			t.Logf("publish: %v", err)
		}
	}
	r.queue = nil
}

func TestIntegrationPressReleaseWithBounce(t *testing.T) {
	r := newRig(t, nil, map[int]string{26: "red"})

	// 10: press, 30: bounce, 70: release.
	r.edge(t, 26, false, 10)
	r.edge(t, 26, true, 30)
	r.edge(t, 26, true, 70)

	if len(r.pub.Events) != 2 {
		t.Fatalf("expected 2 events, got %v", r.pub.EventTypes())
	}
	if r.pub.Events[0].Type != button.EventPress || r.pub.Events[1].Type != button.EventRelease {
		t.Errorf("unexpected sequence: %v", r.pub.EventTypes())
	}
	if r.pub.Events[1].Duration != 60 {
		t.Errorf("release duration: got %d, want 60", r.pub.Events[1].Duration)
	}

	ch := r.registry.Lookup(26)
	if ch.Stats().Bounces != 1 {
		t.Errorf("bounces: got %d, want 1", ch.Stats().Bounces)
	}
	if ch.ReleaseTime() != 70 {
		t.Errorf("release time: got %d, want 70", ch.ReleaseTime())
	}
}

func TestIntegrationPayloadFormat(t *testing.T) {
	r := newRig(t, nil, map[int]string{26: "red"})
	r.edge(t, 26, false, 250)

	var p mqtt.Payload
	if err := json.Unmarshal(r.pub.Payloads[0], &p); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if p.Button.Name != "red" || p.Button.Line != 26 || p.Button.Event != "PRESS" {
		t.Errorf("unexpected payload: %+v", p.Button)
	}
	if !p.Button.Toggle {
		t.Error("expected toggle on after first press")
	}
	if p.Button.Timestamp != "2026-01-01T12:00:00.25Z" {
		t.Errorf("timestamp: got %q", p.Button.Timestamp)
	}
}

func TestIntegrationIndependentButtons(t *testing.T) {
	r := newRig(t, nil, map[int]string{26: "red", 16: "green"})

	// Both pressed in the same instant: one edge per line.
	r.clock.Now = 100
	r.bank.Inputs[26].Set(false)
	r.bank.Inputs[16].Set(false)
	r.bank.Emit(26)
	r.bank.Emit(16)
	r.deliver(t)

	// Green rings while red releases cleanly.
	r.edge(t, 16, true, 110)
	r.edge(t, 26, true, 200)

	var red, green int
	for _, e := range r.pub.Events {
		switch e.Button {
		case "red":
			red++
		case "green":
			green++
		}
	}
	if red != 2 || green != 1 {
		t.Errorf("events per button: red=%d green=%d, want 2 and 1", red, green)
	}
}

func TestIntegrationCatchUpRelease(t *testing.T) {
	// The press callback runs long enough for the button to be released.
	onPress := func(r *rig) button.PressFunc {
		return func(bool) {
			r.clock.Now = 150
			r.bank.Inputs[26].Set(true)
		}
	}
	r := newRig(t, onPress, map[int]string{26: "red"})

	r.edge(t, 26, false, 100)

	// The release edge arrives after the callback already caught it.
	r.bank.Emit(26)
	r.deliver(t)

	if len(r.pub.Events) != 2 {
		t.Fatalf("expected PRESS and catch-up RELEASE, got %v", r.pub.EventTypes())
	}
	rel := r.pub.Events[1]
	if rel.Type != button.EventRelease || !rel.CatchUp || rel.Duration != 50 {
		t.Errorf("unexpected catch-up release: %+v", rel)
	}
	var p mqtt.Payload
	if err := json.Unmarshal(r.pub.Payloads[1], &p); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !p.Button.CatchUp {
		t.Error("expected catch_up in payload")
	}
	ch := r.registry.Lookup(26)
	if ch.Active() {
		t.Error("expected released state")
	}
	if ch.Stats().Bounces != 1 {
		t.Errorf("late release edge: got %d bounces, want 1", ch.Stats().Bounces)
	}
}

func TestIntegrationPollRecoversDroppedEdges(t *testing.T) {
	r := newRig(t, nil, map[int]string{26: "red"})

	// Press without any edge notification.
	r.clock.Now = 500
	r.bank.Inputs[26].Set(false)

	if names := r.registry.Poll(); len(names) != 1 || names[0] != "red" {
		t.Fatalf("poll: got %v, want [red]", names)
	}
	r.flush(t)

	if len(r.registry.Poll()) != 0 {
		t.Error("second poll should find nothing")
	}
	if len(r.pub.Events) != 1 || r.pub.Events[0].Type != button.EventPress {
		t.Errorf("expected PRESS from poll, got %v", r.pub.EventTypes())
	}
}

func TestIntegrationPublishFailureDoesNotCrash(t *testing.T) {
	r := newRig(t, nil, map[int]string{26: "red"})
	r.pub.PublishError = errors.New("broker down")

	r.edge(t, 26, false, 100)
	r.edge(t, 26, true, 300)

	if len(r.pub.Events) != 0 {
		t.Errorf("expected no recorded events, got %d", len(r.pub.Events))
	}
	if r.registry.Lookup(26).Stats().Transitions != 2 {
		t.Error("transitions must still be applied")
	}
}

func TestIntegrationStatusSnapshot(t *testing.T) {
	r := newRig(t, nil, map[int]string{26: "red"})
	tracker := status.NewTracker(wallStart, status.Config{Driver: gpio.DriverCdev, DebounceMs: 50})

	r.edge(t, 26, false, 100)
	for _, ch := range r.registry.Channels() {
		tracker.Update(status.ButtonStatus{Name: ch.Name(), Line: ch.Line(), State: ch.Snapshot(), Stats: ch.Stats()})
	}

	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "SHUTDOWN",
		Reason:     "SIGTERM",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"),
	}
	if err := r.pub.PublishSystem(event); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(r.pub.SystemPayloads[0], &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGTERM" {
		t.Errorf("unexpected envelope: %+v", sj.Status)
	}
	if len(sj.Status.Buttons) != 1 || sj.Status.Buttons[0].State != "PRESSED" {
		t.Errorf("unexpected buttons: %+v", sj.Status.Buttons)
	}
	if sj.Status.Totals.Presses != 1 {
		t.Errorf("totals presses: got %d, want 1", sj.Status.Totals.Presses)
	}
}
