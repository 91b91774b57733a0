// Package metrics exposes the daemon's lamp, radar and interlock state as
// Prometheus metrics.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/uv-lamp/internal/lamp"
	"github.com/sweeney/uv-lamp/internal/radar"
	"github.com/sweeney/uv-lamp/internal/safety"
	"github.com/sweeney/uv-lamp/internal/status"
)

// Collector bundles the daemon's Prometheus metrics. It is written by the
// control loop and read by the /metrics handler.
type Collector struct {
	gatherer prometheus.Gatherer

	LampState      prometheus.Gauge
	LampCommanded  prometheus.Gauge
	LampReportedHz prometheus.Gauge
	Rail12VVolts   prometheus.Gauge
	Transitions    *prometheus.CounterVec

	RadarDistance prometheus.Gauge
	RadarFrames   prometheus.Counter
	RadarDropped  prometheus.Counter
	RadarErrors   prometheus.Counter
	RadarReinits  prometheus.Counter

	SafetyCommits *prometheus.CounterVec
	SafetyCap     prometheus.Gauge

	MQTTDropped prometheus.Gauge

	last radar.Stats
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.LampState, "uvlamp_lamp_state", "Lamp controller state (0=OFF 1=STARTING 2=RUNNING 3=FULLPOWER_TEST 4..9=restrike 10=FAILED_OFF)."},
		{&c.LampCommanded, "uvlamp_lamp_commanded_percent", "Power level commanded to the ballast, in percent."},
		{&c.LampReportedHz, "uvlamp_lamp_reported_hz", "Pulse rate of the ballast status line."},
		{&c.Rail12VVolts, "uvlamp_rail_12v_volts", "Last 12V rail sample."},
		{&c.RadarDistance, "uvlamp_radar_distance_cm", "Estimated target distance, -1 when unknown."},
		{&c.SafetyCap, "uvlamp_safety_cap_percent", "Interlock power cap, in percent."},
		{&c.MQTTDropped, "uvlamp_mqtt_dropped_events", "Events dropped by the MQTT publish queue."},
	}
	for _, g := range gauges {
		*g.dst, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help}), g.name)
		if err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *prometheus.Counter
		name string
		help string
	}{
		{&c.RadarFrames, "uvlamp_radar_frames_total", "Complete radar frames received."},
		{&c.RadarDropped, "uvlamp_radar_frames_dropped_total", "Radar frames overwritten before the control loop consumed them."},
		{&c.RadarErrors, "uvlamp_radar_frame_errors_total", "Radar frames rejected by preamble or postamble validation."},
		{&c.RadarReinits, "uvlamp_radar_reinits_total", "Radar reconfiguration sequences run by the watchdog."},
	}
	for _, ct := range counters {
		*ct.dst, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{Name: ct.name, Help: ct.help}), ct.name)
		if err != nil {
			return nil, err
		}
	}

	c.Transitions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uvlamp_lamp_transitions_total",
		Help: "Lamp state transitions, labeled by destination state.",
	}, []string{"to"}), "uvlamp_lamp_transitions_total")
	if err != nil {
		return nil, err
	}
	c.SafetyCommits, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uvlamp_safety_commits_total",
		Help: "Levels committed by the interlock, labeled by level and lamp acceptance.",
	}, []string{"level", "accepted"}), "uvlamp_safety_commits_total")
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// CountTransition records one lamp transition.
func (c *Collector) CountTransition(t lamp.Transition) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(t.To.String()).Inc()
}

// CountCommit records one interlock commit.
func (c *Collector) CountCommit(cm safety.Commit) {
	if c == nil {
		return
	}
	accepted := "false"
	if cm.Accepted {
		accepted = "true"
	}
	c.SafetyCommits.WithLabelValues(cm.Level.String(), accepted).Inc()
}

// Observe sets the gauges from a status snapshot and advances the radar
// counters by the growth of the estimator's totals.
func (c *Collector) Observe(snap status.Snapshot) {
	if c == nil {
		return
	}
	c.LampState.Set(float64(snap.Lamp.State))
	c.LampCommanded.Set(float64(percent(snap.Lamp.Commanded)))
	c.LampReportedHz.Set(float64(snap.Lamp.ReportedHz))
	c.Rail12VVolts.Set(snap.Lamp.Volts12)
	c.RadarDistance.Set(float64(snap.Radar.DistanceCm))
	c.SafetyCap.Set(float64(percent(snap.Safety.Cap)))

	s := snap.Radar.Stats
	c.RadarFrames.Add(growth(c.last.Frames, s.Frames))
	c.RadarDropped.Add(growth(c.last.Dropped, s.Dropped))
	c.RadarErrors.Add(growth(c.last.Errors, s.Errors))
	c.RadarReinits.Add(growth(uint64(c.last.Reinits), uint64(s.Reinits)))
	c.last = s
}

// SetMQTTDropped reports the publish queue's drop total.
func (c *Collector) SetMQTTDropped(n uint64) {
	if c == nil {
		return
	}
	c.MQTTDropped.Set(float64(n))
}

func percent(l lamp.PowerLevel) int {
	if p := l.Percent(); p > 0 {
		return p
	}
	return 0
}

func growth(prev, cur uint64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur - prev)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
