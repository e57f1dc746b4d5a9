// Package mqtt provides MQTT publishing of button events with abstraction
// for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/easybutton/internal/button"
)

// DefaultTopicPrefix is the topic prefix used when none is configured.
const DefaultTopicPrefix = "home/easybutton"

// EventsTopic is the topic for button events under prefix.
func EventsTopic(prefix string) string {
	return prefix + "/events"
}

// SystemTopic is the topic for daemon lifecycle events under prefix.
func SystemTopic(prefix string) string {
	return prefix + "/system"
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a button event observed at ts.
	// Returns error if publishing fails (should not crash the process).
	Publish(event button.Event, ts time.Time) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the MQTT message for a button event.
type Payload struct {
	Button ButtonPayload `json:"button"`
}

// ButtonPayload contains the button event details.
type ButtonPayload struct {
	Timestamp  string `json:"timestamp"`
	Name       string `json:"name"`
	Line       int    `json:"line"`
	Event      string `json:"event"`
	Toggle     bool   `json:"toggle"`
	DurationMs uint32 `json:"duration_ms"`
	CatchUp    bool   `json:"catch_up,omitempty"`
}

// FormatPayload creates the JSON payload for a button event.
func FormatPayload(event button.Event, ts time.Time) ([]byte, error) {
	return json.Marshal(Payload{
		Button: ButtonPayload{
			Timestamp:  ts.UTC().Format(time.RFC3339Nano),
			Name:       event.Button,
			Line:       event.Line,
			Event:      string(event.Type),
			Toggle:     event.Toggle,
			DurationMs: event.Duration,
			CatchUp:    event.CatchUp,
		},
	})
}

// SystemPayload is the MQTT message for simple system events (LWT,
// RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
