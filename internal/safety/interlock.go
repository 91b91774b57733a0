// Package safety fuses the radar distance and fixture tilt into a
// debounced power cap and requests it from the lamp controller.
package safety

import (
	"fmt"
	"log"
	"time"

	"github.com/sweeney/uv-lamp/internal/lamp"
	"github.com/sweeney/uv-lamp/internal/radar"
	"github.com/sweeney/uv-lamp/internal/tilt"
	"github.com/sweeney/uv-lamp/internal/timeutil"
)

// Logf is the package diagnostic logger. Tests may replace it.
var Logf = log.Printf

// Default debounce dwell times. Shutdown is fast, re-strike is slow.
const (
	DefaultDebounceOff = 1 * time.Second
	DefaultDebounceOn  = 3 * time.Second
)

// Lamp is the part of the lamp controller the interlock drives.
type Lamp interface {
	RequestPower(level lamp.PowerLevel) bool
	RequestedLevel() lamp.PowerLevel
}

// DistanceSource supplies the best distance in cm or radar.NoDistance.
type DistanceSource interface {
	Distance() int
}

// Config holds the interlock settings.
type Config struct {
	Enabled     bool
	Cap         lamp.PowerLevel // ceiling on every request, and the level requested when the radar fails
	Policy      Policy
	Diffused    bool
	DebounceOff time.Duration
	DebounceOn  time.Duration
}

// DefaultConfig returns the shipped settings: enabled, capped at 100%,
// single 110cm threshold.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Cap:         lamp.Power100,
		Policy:      Threshold(DefaultThresholdCm),
		DebounceOff: DefaultDebounceOff,
		DebounceOn:  DefaultDebounceOn,
	}
}

// Decision is the interlock's debounce state and last outcome.
type Decision struct {
	Candidate lamp.PowerLevel // level the distance currently calls for
	Since     time.Time       // when Candidate last changed
	Committed lamp.PowerLevel // level last requested from the lamp; Unknown before the first
	Reason    string
}

// Commit records a level requested from the lamp.
type Commit struct {
	Timestamp  time.Time
	DistanceCm int
	Candidate  lamp.PowerLevel
	Level      lamp.PowerLevel
	Accepted   bool
	Reason     string
}

// Interlock is the safety decision layer. It is owned by the control loop.
type Interlock struct {
	cfg   Config
	lamp  Lamp
	dist  DistanceSource
	tilt  tilt.Sensor
	clock timeutil.Clock

	decision Decision
}

// New creates an interlock. The debounce candidate starts at Off with no
// dwell, so an initial Off decision commits immediately.
func New(l Lamp, dist DistanceSource, t tilt.Sensor, clock timeutil.Clock, cfg Config) *Interlock {
	if cfg.Policy == nil {
		cfg.Policy = Threshold(DefaultThresholdCm)
	}
	if !cfg.Cap.Valid() {
		cfg.Cap = lamp.Power100
	}
	if t == nil {
		t = tilt.Fixed(0)
	}
	return &Interlock{
		cfg:   cfg,
		lamp:  l,
		dist:  dist,
		tilt:  t,
		clock: clock,
		decision: Decision{
			Candidate: lamp.PowerOff,
			Committed: lamp.PowerUnknown,
		},
	}
}

// Evaluate runs one interlock step. It returns the commit and true when a
// level different from the previous commit was requested.
func (i *Interlock) Evaluate() (Commit, bool) {
	if !i.cfg.Enabled {
		i.decision.Reason = "Disabled"
		return Commit{}, false
	}

	now := i.clock.Now()
	distance := i.dist.Distance()

	if distance == radar.NoDistance {
		i.decision.Reason = "Radar failed"
		return i.request(now, distance, i.cfg.Cap, i.cfg.Cap)
	}

	candidate := i.cfg.Policy.LevelFor(distance, i.cfg.Diffused, IsHighTilt(i.tilt.PointingDownAngle()))

	// An unlit lamp can only be struck at full power.
	if i.lamp.RequestedLevel() == lamp.PowerOff && candidate.IsDimmed() {
		i.decision.Reason = fmt.Sprintf("Too close / %s", candidate)
		return Commit{}, false
	}

	if candidate != i.decision.Candidate {
		i.decision.Candidate = candidate
		i.decision.Since = now
	}

	dwell := i.cfg.DebounceOn
	if candidate == lamp.PowerOff {
		dwell = i.cfg.DebounceOff
	}
	if now.Sub(i.decision.Since) < dwell {
		i.decision.Reason = fmt.Sprintf("Debounce for req %s", candidate)
		return Commit{}, false
	}

	i.decision.Reason = fmt.Sprintf("Req %s", candidate)
	return i.request(now, distance, candidate, lamp.MinLevel(i.cfg.Cap, candidate))
}

func (i *Interlock) request(now time.Time, distance int, candidate, level lamp.PowerLevel) (Commit, bool) {
	accepted := i.lamp.RequestPower(level)
	if level == i.decision.Committed {
		return Commit{}, false
	}

	prev := i.decision.Committed
	i.decision.Committed = level
	if distance == radar.NoDistance {
		Logf("safety: radar failed, requesting cap %s (was %s)", level, prev)
	} else {
		Logf("safety: distance %dcm, requesting %s (was %s)", distance, level, prev)
	}
	if !accepted {
		Logf("safety: lamp rejected %s", level)
	}

	return Commit{
		Timestamp:  now,
		DistanceCm: distance,
		Candidate:  candidate,
		Level:      level,
		Accepted:   accepted,
		Reason:     i.decision.Reason,
	}, true
}

// Decision returns the current debounce state and reason.
func (i *Interlock) Decision() Decision { return i.decision }

// Reason returns the human-readable outcome of the last evaluation.
func (i *Interlock) Reason() string { return i.decision.Reason }

// SetEnabled turns the interlock on or off.
func (i *Interlock) SetEnabled(on bool) {
	if on != i.cfg.Enabled {
		Logf("safety: interlock enabled=%v", on)
	}
	i.cfg.Enabled = on
	if !on {
		i.decision.Committed = lamp.PowerUnknown
	}
}

// Enabled reports whether the interlock is active.
func (i *Interlock) Enabled() bool { return i.cfg.Enabled }

// SetCap sets the ceiling applied to every request. Unknown is ignored.
func (i *Interlock) SetCap(level lamp.PowerLevel) {
	if !level.Valid() {
		return
	}
	i.cfg.Cap = level
}

// Cap returns the configured ceiling.
func (i *Interlock) Cap() lamp.PowerLevel { return i.cfg.Cap }

// Policy returns the distance policy in use.
func (i *Interlock) Policy() Policy { return i.cfg.Policy }
