package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/easybutton/internal/button"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Buttons       []ButtonJSON `json:"buttons"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Totals        StatsJSON    `json:"totals"`
	Config        ConfigJSON   `json:"config"`
}

// ButtonJSON is the JSON representation of one button.
type ButtonJSON struct {
	Name            string    `json:"name"`
	Line            int       `json:"line"`
	State           string    `json:"state"`
	Toggle          bool      `json:"toggle"`
	PressDurationMs uint32    `json:"press_duration_ms"`
	Stats           StatsJSON `json:"stats"`
}

// StatsJSON is the JSON representation of button statistics.
type StatsJSON struct {
	Presses     int `json:"presses"`
	Releases    int `json:"releases"`
	LongPresses int `json:"long_presses"`
	Bounces     int `json:"bounces"`
	Spikes      int `json:"spikes"`
	CatchUps    int `json:"catch_ups"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Driver      string `json:"driver"`
	PollMs      int64  `json:"poll_ms"`
	DebounceMs  int64  `json:"debounce_ms"`
	LongPressMs int64  `json:"long_press_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

// StateString is the display form of a debounced state.
func StateString(active bool) string {
	if active {
		return "PRESSED"
	}
	return "RELEASED"
}

func buildInner(snap Snapshot) StatusInner {
	buttons := make([]ButtonJSON, 0, len(snap.Buttons))
	for _, b := range snap.Buttons {
		buttons = append(buttons, ButtonJSON{
			Name:            b.Name,
			Line:            b.Line,
			State:           StateString(b.State.Active),
			Toggle:          b.State.Toggle,
			PressDurationMs: b.State.PressDuration,
			Stats:           statsJSON(b.Stats),
		})
	}
	return StatusInner{
		Buttons:       buttons,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Totals:        statsJSON(snap.Totals()),
		Config: ConfigJSON{
			Driver:      snap.Config.Driver,
			PollMs:      snap.Config.PollMs,
			DebounceMs:  snap.Config.DebounceMs,
			LongPressMs: snap.Config.LongPressMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
}

func statsJSON(s button.Stats) StatsJSON {
	return StatsJSON{
		Presses:     s.Presses,
		Releases:    s.Releases,
		LongPresses: s.LongPresses,
		Bounces:     s.Bounces,
		Spikes:      s.Spikes,
		CatchUps:    s.CatchUps,
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
