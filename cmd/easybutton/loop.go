package main

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/easybutton/internal/button"
	"github.com/sweeney/easybutton/internal/config"
	"github.com/sweeney/easybutton/internal/gpio"
	"github.com/sweeney/easybutton/internal/mqtt"
	"github.com/sweeney/easybutton/internal/status"
)

// eventQueue collects transitions reported by the channels while the loop
// is delivering an edge or a poll, so they can be published afterwards.
type eventQueue struct {
	events []button.Event
}

func (q *eventQueue) add(e button.Event) {
	q.events = append(q.events, e)
}

func (q *eventQueue) drain() []button.Event {
	out := q.events
	q.events = nil
	return out
}

// loop owns every Channel. All edge notifications, polls and long-press
// checks happen on the goroutine running run.
type loop struct {
	registry   *button.Registry
	queue      *eventQueue
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	level      zap.AtomicLevel
	logger     *zap.SugaredLogger
	now        func() time.Time
	heartbeat  time.Duration
	longPress  uint32
}

// run processes events until a signal arrives.
func (l *loop) run(edges <-chan int, tick <-chan time.Time, reloads <-chan config.Runtime, sig <-chan os.Signal) error {
	l.refreshAll()
	for {
		select {
		case s := <-sig:
			l.shutdown(s)
			return nil

		case line := <-edges:
			l.handleEdge(line)

		case <-tick:
			l.handleTick()

		case rt := <-reloads:
			l.applyRuntime(rt)
		}
	}
}

func (l *loop) handleEdge(line int) {
	if !l.registry.Notify(line) {
		l.logger.Debugw("edge on unbound line", "line", line)
		return
	}
	l.flush()
	// Rejected edges still change the counters.
	l.refresh(l.registry.Lookup(line))
}

func (l *loop) handleTick() {
	for _, name := range l.registry.Poll() {
		l.logger.Debugw("caught missed edge", "button", name)
	}
	for _, ch := range l.registry.Channels() {
		if !ch.Active() {
			continue
		}
		ch.PollPressDuration()
		ch.CheckLongPress(l.longPress)
	}
	l.flush()
	l.refreshAll()

	t := l.now()
	if l.tracker.CheckHeartbeat(t, l.heartbeat) {
		l.setMQTTStatus()
		snap := l.tracker.Snapshot()
		totals := snap.Totals()
		l.logger.Infow("heartbeat",
			"uptime", snap.Uptime().Truncate(time.Second),
			"presses", totals.Presses,
			"longPresses", totals.LongPresses,
			"bounces", totals.Bounces,
			"spikes", totals.Spikes)
		hb := mqtt.SystemEvent{
			Timestamp:  t,
			Event:      "HEARTBEAT",
			RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
		}
		if err := l.publisher.PublishSystem(hb); err != nil {
			l.logger.Warnw("heartbeat publish failed", "error", err)
		}
	}
}

// flush publishes queued transitions and consumes the change flags.
func (l *loop) flush() {
	for _, e := range l.queue.drain() {
		if e.CatchUp {
			l.logger.Debugw("release caught after press callback", "button", e.Button)
		}
		l.logger.Infow("button event",
			"button", e.Button,
			"line", e.Line,
			"event", e.Type,
			"toggle", e.Toggle,
			"durationMs", e.Duration)
		if err := l.publisher.Publish(e, l.now()); err != nil {
			l.logger.Warnw("publish failed", "button", e.Button, "event", e.Type, "error", err)
		}
	}
	for _, ch := range l.registry.Channels() {
		if ch.AcknowledgeChange() {
			l.refresh(ch)
		}
	}
}

func (l *loop) applyRuntime(rt config.Runtime) {
	l.longPress = uint32(rt.LongPressMs)
	l.level.SetLevel(rt.LogLevel)
	l.tracker.SetLongPressMs(int64(rt.LongPressMs))
	l.logger.Infow("applied reloaded config", "longPressMs", rt.LongPressMs, "logLevel", rt.LogLevel)
}

func (l *loop) shutdown(s os.Signal) {
	l.logger.Infow("shutting down", "signal", s)
	reason := "UNKNOWN"
	if s == syscall.SIGINT {
		reason = "SIGINT"
	} else if s == syscall.SIGTERM {
		reason = "SIGTERM"
	}
	l.refreshAll()
	l.setMQTTStatus()
	snap := l.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  l.now(),
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		l.logger.Warnw("failed to publish shutdown event", "error", err)
	} else {
		l.logger.Info("published shutdown event")
	}
}

func (l *loop) refresh(ch *button.Channel) {
	l.tracker.Update(status.ButtonStatus{
		Name:  ch.Name(),
		Line:  ch.Line(),
		State: ch.Snapshot(),
		Stats: ch.Stats(),
	})
}

func (l *loop) refreshAll() {
	for _, ch := range l.registry.Channels() {
		l.refresh(ch)
	}
	l.setMQTTStatus()
}

func (l *loop) setMQTTStatus() {
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

// buildRegistry creates one Channel per configured button, reading from
// bank and reporting transitions to queue. A nil led disables feedback.
func buildRegistry(cfg config.Config, bank gpio.Bank, clock button.Clock, led gpio.Output, queue *eventQueue, logger *zap.SugaredLogger) (*button.Registry, error) {
	registry := button.NewRegistry()
	for _, b := range cfg.Buttons {
		in := bank.Input(b.Line)
		if in == nil {
			return nil, fmt.Errorf("button %q: line %d was not opened", b.Name, b.Line)
		}
		ch := button.New(b.Name, b.Line, in, clock, button.Options{
			Debounce:     uint32(cfg.DebounceMs),
			Polarity:     b.Polarity(),
			OnPress:      pressFeedback(b.Name, led, logger),
			OnTransition: queue.add,
		})
		if err := registry.Bind(ch); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// pressFeedback mirrors the toggle state onto led. Runs inside edge
// handling, so it only writes the output.
func pressFeedback(name string, led gpio.Output, logger *zap.SugaredLogger) button.PressFunc {
	if led == nil {
		return nil
	}
	return func(toggle bool) {
		if err := led.Set(toggle); err != nil {
			logger.Warnw("led write failed", "button", name, "line", led.Line(), "error", err)
		}
	}
}
