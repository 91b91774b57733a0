package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sweeney/uv-lamp/internal/lamp"
	"github.com/sweeney/uv-lamp/internal/persist"
	"github.com/sweeney/uv-lamp/internal/radar"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func runningLamp() LampStatus {
	return LampStatus{
		State:         lamp.StateRunning,
		StateElapsed:  90 * time.Second,
		Requested:     lamp.Power70,
		Commanded:     lamp.Power70,
		Reported:      lamp.Power70,
		ReportedValid: true,
		ReportedHz:    1000,
		Type:          lamp.TypeDimmable,
		Rail12V:       true,
		Volts12:       12.1,
		PowerOK:       true,
	}
}

func TestNewTracker(t *testing.T) {
	cfg := Config{PollMs: 10, Broker: "tcp://localhost:1883", HTTPPort: ":80", Policy: "threshold/110cm"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if diff := cmp.Diff(cfg, snap.Config); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if snap.Radar.DistanceCm != radar.NoDistance {
		t.Errorf("expected no distance initially, got %d", snap.Radar.DistanceCm)
	}
	if snap.Safety.Committed != lamp.PowerUnknown {
		t.Errorf("expected nothing committed initially, got %s", snap.Safety.Committed)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(start, Config{})

	r := RadarStatus{Enabled: true, DistanceCm: 150, LastReport: start, Stats: radar.Stats{Errors: 2, Reinits: 1}}
	s := SafetyStatus{Enabled: true, Cap: lamp.Power100, Candidate: lamp.Power70, Committed: lamp.Power70, Reason: "Req 70%"}
	tr.Update(runningLamp(), r, s)

	snap := tr.Snapshot()
	if diff := cmp.Diff(runningLamp(), snap.Lamp); diff != "" {
		t.Errorf("lamp mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(r, snap.Radar); diff != "" {
		t.Errorf("radar mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(s, snap.Safety); diff != "" {
		t.Errorf("safety mismatch (-want +got):\n%s", diff)
	}
}

func TestCounts(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.CountTransitions(3, 0)
	tr.CountTransitions(2, 1)
	tr.CountSafetyCommit()

	want := Counts{Transitions: 5, SafetyCommits: 1, FailedOff: 1}
	if diff := cmp.Diff(want, tr.Snapshot().Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestSetRecord(t *testing.T) {
	tr := NewTracker(start, Config{})
	if diff := cmp.Diff(persist.DefaultRecord(), tr.Snapshot().Record); diff != "" {
		t.Errorf("expected default record (-want +got):\n%s", diff)
	}

	rec := persist.Record{PowerOn: false, RadarOn: true, DimIndex: 1, LampType: lamp.TypeNonDimmable}
	tr.SetRecord(rec)
	if diff := cmp.Diff(rec, tr.Snapshot().Record); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(start, Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(15 * time.Minute)}
	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(start, Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.Update(runningLamp(), RadarStatus{}, SafetyStatus{})

	snap1 := tr.Snapshot()

	off := runningLamp()
	off.State = lamp.StateOff
	tr.Update(off, RadarStatus{}, SafetyStatus{})

	if snap1.Lamp.State != lamp.StateRunning {
		t.Error("snapshot should be a copy; lamp state was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	snap := Snapshot{
		Lamp:          runningLamp(),
		Radar:         RadarStatus{Enabled: true, DistanceCm: 142, LastReport: start.Add(time.Minute), Stats: radar.Stats{DecoderStats: radar.DecoderStats{Frames: 40}}},
		Safety:        SafetyStatus{Enabled: true, Cap: lamp.Power100, Candidate: lamp.Power100, Committed: lamp.Power70, Reason: "Debounce for req 100%", TiltDeg: 45},
		Record:        persist.Record{PowerOn: true, RadarOn: true, DimIndex: 2, LampType: lamp.TypeDimmable},
		Counts:        Counts{Transitions: 4, SafetyCommits: 2},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{PollMs: 10, HeartbeatMs: 900000, Broker: "tcp://localhost:1883", HTTPPort: ":80"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	want := LampJSON{
		State:               "RUNNING",
		StateElapsedSeconds: 90,
		Requested:           "70%",
		Commanded:           "70%",
		Reported:            "70%",
		ReportedHz:          1000,
		Type:                "DIMMABLE",
		Rail12V:             true,
		Volts12:             12.1,
		PowerOK:             true,
	}
	if diff := cmp.Diff(want, parsed.Status.Lamp); diff != "" {
		t.Errorf("lamp mismatch (-want +got):\n%s", diff)
	}
	if parsed.Status.Radar.DistanceCm == nil || *parsed.Status.Radar.DistanceCm != 142 {
		t.Errorf("Radar.DistanceCm: got %v, want 142", parsed.Status.Radar.DistanceCm)
	}
	if parsed.Status.Radar.LastReport != "2026-01-01T00:01:00Z" {
		t.Errorf("Radar.LastReport: got %q", parsed.Status.Radar.LastReport)
	}
	if parsed.Status.Radar.Frames != 40 {
		t.Errorf("Radar.Frames: got %d, want 40", parsed.Status.Radar.Frames)
	}
	if parsed.Status.Safety.Committed != "70%" || parsed.Status.Safety.TiltDeg != 45 {
		t.Errorf("unexpected safety: %+v", parsed.Status.Safety)
	}
	if parsed.Status.Settings.Level != "70%" {
		t.Errorf("Settings.Level: got %q, want 70%%", parsed.Status.Settings.Level)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if parsed.Status.Counts.Transitions != 4 {
		t.Errorf("Counts.Transitions: got %d, want 4", parsed.Status.Counts.Transitions)
	}
	// Event and Reason should be omitted
	if parsed.Status.Event != "" || parsed.Status.Reason != "" {
		t.Errorf("expected empty event/reason for web format, got %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
}

func TestFormatJSONUnknownValues(t *testing.T) {
	tr := NewTracker(start, Config{})
	data := FormatJSON(tr.Snapshot())

	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	radarJSON := raw["status"]["radar"].(map[string]any)
	if radarJSON["distance_cm"] != nil {
		t.Errorf("distance_cm should be null, got %v", radarJSON["distance_cm"])
	}
	if _, ok := radarJSON["last_report"]; ok {
		t.Error("last_report should be omitted before the first report")
	}
	if _, ok := radarJSON["report"]; ok {
		t.Error("report should be omitted before the first report")
	}
	lampJSON := raw["status"]["lamp"].(map[string]any)
	if lampJSON["reported"] != "UNKNOWN" {
		t.Errorf("reported: got %v, want UNKNOWN", lampJSON["reported"])
	}
}

func TestFormatRadarJSONCarriesReport(t *testing.T) {
	snap := Snapshot{
		Radar: RadarStatus{
			Enabled:    true,
			DistanceCm: 85,
			LastReport: start.Add(time.Second),
			Report: radar.Report{
				TargetState:          radar.TargetBoth,
				MovingDistanceCm:     85,
				MovingEnergy:         61,
				StationaryDistanceCm: 120,
				StationaryEnergy:     33,
				DetectionDistanceCm:  90,
			},
		},
	}

	var got RadarJSON
	if err := json.Unmarshal(FormatRadarJSON(snap), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	want := &ReportJSON{
		Target:           "moving+stationary",
		MovingCm:         85,
		MovingEnergy:     61,
		StationaryCm:     120,
		StationaryEnergy: 33,
		DetectionCm:      90,
	}
	if diff := cmp.Diff(want, got.Report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if got.DistanceCm == nil || *got.DistanceCm != 85 {
		t.Errorf("DistanceCm: got %v, want 85", got.DistanceCm)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{
		Lamp:      runningLamp(),
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Lamp.State != "RUNNING" {
		t.Errorf("Lamp.State: got %q, want RUNNING", parsed.Status.Lamp.State)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(30 * time.Minute)}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("got %q/%q, want SHUTDOWN/SIGTERM", parsed.Status.Event, parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(time.Second)}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(time.Minute),
		Network:   &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"},
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(start, Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(runningLamp(), RadarStatus{DistanceCm: i}, SafetyStatus{})
			tr.CountTransitions(1, 0)
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = FormatJSON(tr.Snapshot())
		}
	}()

	wg.Wait()
	if got := tr.Snapshot().Counts.Transitions; got != 1000 {
		t.Errorf("Transitions: got %d, want 1000", got)
	}
}
