package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Lamp          LampJSON     `json:"lamp"`
	Radar         RadarJSON    `json:"radar"`
	Safety        SafetyJSON   `json:"safety"`
	Settings      SettingsJSON `json:"settings"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// LampJSON is the JSON representation of the lamp view.
type LampJSON struct {
	State               string  `json:"state"`
	StateElapsedSeconds float64 `json:"state_elapsed_seconds"`
	Requested           string  `json:"requested"`
	Commanded           string  `json:"commanded"`
	Reported            string  `json:"reported"`
	ReportedHz          int     `json:"reported_hz"`
	Type                string  `json:"type"`
	Rail12V             bool    `json:"rail_12v"`
	Rail24V             bool    `json:"rail_24v"`
	Volts12             float64 `json:"volts_12v"`
	PowerOK             bool    `json:"power_ok"`
}

// RadarJSON is the JSON representation of the radar view.
type RadarJSON struct {
	Enabled    bool        `json:"enabled"`
	DistanceCm *int        `json:"distance_cm"`
	LastReport string      `json:"last_report,omitempty"`
	Report     *ReportJSON `json:"report,omitempty"`
	Frames     uint64      `json:"frames"`
	Dropped    uint64      `json:"dropped"`
	Errors     uint64      `json:"errors"`
	Reinits    int         `json:"reinits"`
}

// ReportJSON is the body of the last valid radar report.
type ReportJSON struct {
	Target           string `json:"target"`
	MovingCm         int    `json:"moving_cm"`
	MovingEnergy     int    `json:"moving_energy"`
	StationaryCm     int    `json:"stationary_cm"`
	StationaryEnergy int    `json:"stationary_energy"`
	DetectionCm      int    `json:"detection_cm"`
}

// SafetyJSON is the JSON representation of the interlock view.
type SafetyJSON struct {
	Enabled   bool   `json:"enabled"`
	Cap       string `json:"cap"`
	Candidate string `json:"candidate"`
	Committed string `json:"committed"`
	Reason    string `json:"reason"`
	TiltDeg   int    `json:"tilt_deg"`
}

// SettingsJSON is the JSON representation of the persisted record.
type SettingsJSON struct {
	PowerOn  bool   `json:"power_on"`
	RadarOn  bool   `json:"radar_on"`
	Level    string `json:"level"`
	LampType string `json:"lamp_type"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Transitions   int `json:"transitions"`
	SafetyCommits int `json:"safety_commits"`
	FailedOff     int `json:"failed_off"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	SerialPort  string `json:"serial_port"`
	Policy      string `json:"policy"`
	Diffused    bool   `json:"diffused"`
	BootID      string `json:"boot_id,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	reported := snap.Lamp.Reported.String()
	if !snap.Lamp.ReportedValid {
		reported = "UNKNOWN"
	}

	radarJSON := RadarJSON{
		Enabled: snap.Radar.Enabled,
		Frames:  snap.Radar.Stats.Frames,
		Dropped: snap.Radar.Stats.Dropped,
		Errors:  snap.Radar.Stats.Errors,
		Reinits: snap.Radar.Stats.Reinits,
	}
	if snap.Radar.DistanceCm >= 0 {
		d := snap.Radar.DistanceCm
		radarJSON.DistanceCm = &d
	}
	if !snap.Radar.LastReport.IsZero() {
		radarJSON.LastReport = snap.Radar.LastReport.UTC().Format(time.RFC3339)
		rep := snap.Radar.Report
		radarJSON.Report = &ReportJSON{
			Target:           rep.TargetState.String(),
			MovingCm:         int(rep.MovingDistanceCm),
			MovingEnergy:     int(rep.MovingEnergy),
			StationaryCm:     int(rep.StationaryDistanceCm),
			StationaryEnergy: int(rep.StationaryEnergy),
			DetectionCm:      int(rep.DetectionDistanceCm),
		}
	}

	return StatusInner{
		Lamp: LampJSON{
			State:               snap.Lamp.State.String(),
			StateElapsedSeconds: snap.Lamp.StateElapsed.Truncate(time.Millisecond).Seconds(),
			Requested:           snap.Lamp.Requested.String(),
			Commanded:           snap.Lamp.Commanded.String(),
			Reported:            reported,
			ReportedHz:          snap.Lamp.ReportedHz,
			Type:                snap.Lamp.Type.String(),
			Rail12V:             snap.Lamp.Rail12V,
			Rail24V:             snap.Lamp.Rail24V,
			Volts12:             snap.Lamp.Volts12,
			PowerOK:             snap.Lamp.PowerOK,
		},
		Radar: radarJSON,
		Safety: SafetyJSON{
			Enabled:   snap.Safety.Enabled,
			Cap:       snap.Safety.Cap.String(),
			Candidate: snap.Safety.Candidate.String(),
			Committed: snap.Safety.Committed.String(),
			Reason:    snap.Safety.Reason,
			TiltDeg:   snap.Safety.TiltDeg,
		},
		Settings: SettingsJSON{
			PowerOn:  snap.Record.PowerOn,
			RadarOn:  snap.Record.RadarOn,
			Level:    snap.Record.Level().String(),
			LampType: snap.Record.LampType.String(),
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Transitions:   snap.Counts.Transitions,
			SafetyCommits: snap.Counts.SafetyCommits,
			FailedOff:     snap.Counts.FailedOff,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			SerialPort:  snap.Config.SerialPort,
			Policy:      snap.Config.Policy,
			Diffused:    snap.Config.Diffused,
			BootID:      snap.Config.BootID,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatRadarJSON returns the radar view alone, including the last report body.
func FormatRadarJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(buildInner(snap).Radar, "", "  ")
	return data
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
