// Package mqtt publishes lamp, safety and lifecycle events to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/uv-lamp/internal/lamp"
	"github.com/sweeney/uv-lamp/internal/safety"
)

// TopicLamp is the MQTT topic for lamp state transitions.
const TopicLamp = "uvlamp/lamp/events"

// TopicSafety is the MQTT topic for interlock commits.
const TopicSafety = "uvlamp/safety/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "uvlamp/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishTransition sends a lamp state transition.
	// Returns error if publishing fails (should not crash the process).
	PublishTransition(t lamp.Transition) error

	// PublishSafety sends an interlock commit.
	PublishSafety(c safety.Commit) error

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
	Event      string        // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string        // e.g., "SIGTERM", "SIGINT" (shutdown only)
	Config     *SystemConfig // startup only
	RawPayload []byte        // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool          // Whether the message should be retained by the broker
}

// SystemConfig is the daemon configuration reported at startup.
type SystemConfig struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	LampType    string `json:"lamp_type"`
	Policy      string `json:"policy"`
	Cap         string `json:"cap"`
	BootID      string `json:"boot_id,omitempty"`
}

// LampPayload is the MQTT message payload for a lamp transition.
type LampPayload struct {
	Lamp LampPayloadInner `json:"lamp"`
}

// LampPayloadInner contains the transition details.
type LampPayloadInner struct {
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	To        string `json:"to"`
	Requested string `json:"requested"`
	Commanded string `json:"commanded"`
	Reason    string `json:"reason"`
}

// FormatTransitionPayload creates the JSON payload for a lamp transition.
func FormatTransitionPayload(t lamp.Transition) ([]byte, error) {
	payload := LampPayload{
		Lamp: LampPayloadInner{
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
			From:      t.From.String(),
			To:        t.To.String(),
			Requested: t.Requested.String(),
			Commanded: t.Commanded.String(),
			Reason:    t.Reason,
		},
	}
	return json.Marshal(payload)
}

// SafetyPayload is the MQTT message payload for an interlock commit.
type SafetyPayload struct {
	Safety SafetyPayloadInner `json:"safety"`
}

// SafetyPayloadInner contains the commit details. DistanceCm is omitted
// when the radar has no distance.
type SafetyPayloadInner struct {
	Timestamp  string `json:"timestamp"`
	DistanceCm *int   `json:"distance_cm,omitempty"`
	Candidate  string `json:"candidate"`
	Level      string `json:"level"`
	Accepted   bool   `json:"accepted"`
	Reason     string `json:"reason"`
}

// FormatSafetyPayload creates the JSON payload for an interlock commit.
func FormatSafetyPayload(c safety.Commit) ([]byte, error) {
	inner := SafetyPayloadInner{
		Timestamp: c.Timestamp.UTC().Format(time.RFC3339),
		Candidate: c.Candidate.String(),
		Level:     c.Level.String(),
		Accepted:  c.Accepted,
		Reason:    c.Reason,
	}
	if c.DistanceCm >= 0 {
		d := c.DistanceCm
		inner.DistanceCm = &d
	}
	return json.Marshal(SafetyPayload{Safety: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string        `json:"timestamp"`
	Event     string        `json:"event"`
	Reason    string        `json:"reason,omitempty"`
	Config    *SystemConfig `json:"config,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Config:    event.Config,
		},
	}
	return json.Marshal(payload)
}
