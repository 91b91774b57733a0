// Package status provides a thread-safe status tracker for the uv-lamp daemon.
// The control loop writes it once per tick; HTTP handlers and heartbeat
// publishing read snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/uv-lamp/internal/lamp"
	"github.com/sweeney/uv-lamp/internal/persist"
	"github.com/sweeney/uv-lamp/internal/radar"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
	SerialPort  string
	Policy      string
	Diffused    bool
	BootID      string
}

// LampStatus is the power controller's view of the lamp.
type LampStatus struct {
	State         lamp.State
	StateElapsed  time.Duration
	Requested     lamp.PowerLevel
	Commanded     lamp.PowerLevel
	Reported      lamp.PowerLevel
	ReportedValid bool
	ReportedHz    int
	Type          lamp.Type
	Rail12V       bool
	Rail24V       bool
	Volts12       float64
	PowerOK       bool
}

// RadarStatus is the distance estimator's view of the radar.
type RadarStatus struct {
	Enabled    bool
	DistanceCm int // radar.NoDistance when unknown
	LastReport time.Time    // zero before the first valid report
	Report     radar.Report // body of the report received at LastReport
	Stats      radar.Stats
}

// SafetyStatus is the interlock's current decision.
type SafetyStatus struct {
	Enabled   bool
	Cap       lamp.PowerLevel
	Candidate lamp.PowerLevel
	Committed lamp.PowerLevel
	Reason    string
	TiltDeg   int
}

// Counts are event totals since startup.
type Counts struct {
	Transitions   int
	SafetyCommits int
	FailedOff     int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Lamp          LampStatus
	Radar         RadarStatus
	Safety        SafetyStatus
	Record        persist.Record
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Lamp:      LampStatus{Reported: lamp.PowerUnknown},
			Radar:     RadarStatus{DistanceCm: radar.NoDistance},
			Safety:    SafetyStatus{Committed: lamp.PowerUnknown},
			Record:    persist.DefaultRecord(),
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces the lamp, radar and safety views.
// Called from runLoop on every tick.
func (t *Tracker) Update(l LampStatus, r RadarStatus, s SafetyStatus) {
	t.mu.Lock()
	t.snap.Lamp = l
	t.snap.Radar = r
	t.snap.Safety = s
	t.mu.Unlock()
}

// SetRecord sets the persisted settings.
func (t *Tracker) SetRecord(rec persist.Record) {
	t.mu.Lock()
	t.snap.Record = rec
	t.mu.Unlock()
}

// CountTransitions adds n lamp transitions, of which failed entered FailedOff.
func (t *Tracker) CountTransitions(n, failed int) {
	t.mu.Lock()
	t.snap.Counts.Transitions += n
	t.snap.Counts.FailedOff += failed
	t.mu.Unlock()
}

// CountSafetyCommit adds one interlock commit.
func (t *Tracker) CountSafetyCommit() {
	t.mu.Lock()
	t.snap.Counts.SafetyCommits++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
