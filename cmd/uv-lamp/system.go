package main

import (
	"log"
	"time"

	"github.com/sweeney/uv-lamp/internal/lamp"
	"github.com/sweeney/uv-lamp/internal/persist"
	"github.com/sweeney/uv-lamp/internal/radar"
	"github.com/sweeney/uv-lamp/internal/safety"
	"github.com/sweeney/uv-lamp/internal/sense"
	"github.com/sweeney/uv-lamp/internal/status"
	"github.com/sweeney/uv-lamp/internal/tilt"
	"github.com/sweeney/uv-lamp/internal/timeutil"
	"github.com/sweeney/uv-lamp/internal/web"
)

// bootSettle is the wait between energizing 12V and the first lamp request.
const bootSettle = time.Second

// system owns the control structs driven by the main loop.
type system struct {
	clock  timeutil.Clock
	ctrl   *lamp.Controller
	sense  lamp.VoltageSensor
	radar  *radar.Estimator
	lock   *safety.Interlock
	tilt   tilt.Sensor
	record *persist.Manager

	tiltFailing    bool
	persistFailing bool
	down           bool
}

func newSystem(hw lamp.Hardware, vs lamp.VoltageSensor, pulses *lamp.PulseCounter, dec *radar.Decoder, port radar.Port, ts tilt.Sensor, record *persist.Manager, clock timeutil.Clock, cfg safety.Config) *system {
	ctrl := lamp.NewController(hw, vs, pulses, clock, lamp.DefaultTimings())
	est := radar.NewEstimator(dec, port, clock)
	cfg.Enabled = record.Record().RadarOn
	return &system{
		clock:  clock,
		ctrl:   ctrl,
		sense:  vs,
		radar:  est,
		lock:   safety.New(ctrl, est, ts, clock, cfg),
		tilt:   ts,
		record: record,
	}
}

// boot applies the persisted record and brings the rails up: 12V, a settle
// delay, the lamp type test when the type is unknown, 24V for non-dimmable
// lamps, and finally the persisted power-on level.
func (s *system) boot(typeTestIterations int) {
	rec := s.record.Record()
	s.ctrl.SetType(rec.LampType)

	if !s.ctrl.SetRail12V(true) {
		log.Printf("boot: 12V rail not energized (%.2fV)", s.sense.Sense12V())
	}
	s.clock.Sleep(bootSettle)

	if s.ctrl.Type() == lamp.TypeUnknown && s.ctrl.Rail12V() && lamp.PowerOK(s.sense.Sense12V()) {
		s.ctrl.RunTypeTest(s.record, typeTestIterations)
	}
	if s.ctrl.Type() == lamp.TypeNonDimmable {
		s.ctrl.SetRail24V(true)
	}

	level := s.userLevel()
	s.lock.SetCap(level)
	if level != lamp.PowerOff && !s.ctrl.RequestPower(level) {
		log.Printf("boot: lamp rejected %s", level)
	}
	log.Printf("boot: type=%s 12V=%v 24V=%v level=%s radar=%v",
		s.ctrl.Type(), s.ctrl.Rail12V(), s.ctrl.Rail24V(), level, s.lock.Enabled())
}

// userLevel is the level the persisted settings ask for. Non-dimmable lamps
// only run at full power.
func (s *system) userLevel() lamp.PowerLevel {
	rec := s.record.Record()
	if !rec.PowerOn {
		return lamp.PowerOff
	}
	if s.ctrl.Type() == lamp.TypeNonDimmable {
		return lamp.Power100
	}
	return rec.Level()
}

// apply changes one persisted user setting and pushes the resulting level
// to the interlock cap. While the interlock is disabled nothing else
// requests power, so the level goes straight to the lamp.
func (s *system) apply(cmd web.Command) {
	switch cmd.Setting {
	case web.SettingPower:
		s.record.SetPowerOn(cmd.On)
	case web.SettingRadar:
		s.record.SetRadarOn(cmd.On)
		s.lock.SetEnabled(cmd.On)
	case web.SettingLevel:
		if s.ctrl.Type() == lamp.TypeNonDimmable || !s.record.SetLevel(cmd.Level) {
			log.Printf("control: level %s rejected for %s lamp", cmd.Level, s.ctrl.Type())
			return
		}
	}

	level := s.userLevel()
	s.lock.SetCap(level)
	if !s.lock.Enabled() && !s.ctrl.RequestPower(level) {
		log.Printf("control: lamp rejected %s", level)
	}
	log.Printf("control: %s applied, level=%s radar=%v", cmd.Setting, level, s.lock.Enabled())
}

// stepResult is what one control tick produced.
type stepResult struct {
	transitions []lamp.Transition
	commit      *safety.Commit
}

// step runs one control tick: sensors, lamp state machine, radar estimator,
// then the interlock. The interlock is skipped while the 12V rail is outside
// the fail-safe window.
func (s *system) step() stepResult {
	s.updateTilt()

	var res stepResult
	res.transitions = s.ctrl.Update()
	s.radar.Update(s.ctrl.Rail12V())

	if lamp.PowerOK(s.sense.Sense12V()) {
		if c, ok := s.lock.Evaluate(); ok {
			res.commit = &c
		}
	}

	if err := s.record.WriteIfDirty(); err != nil {
		if !s.persistFailing {
			log.Printf("persist: %v", err)
		}
		s.persistFailing = true
	} else {
		s.persistFailing = false
	}
	return res
}

func (s *system) updateTilt() {
	u, ok := s.tilt.(interface{ Update() error })
	if !ok {
		return
	}
	if err := u.Update(); err != nil {
		if !s.tiltFailing {
			log.Printf("tilt: %v", err)
		}
		s.tiltFailing = true
		return
	}
	s.tiltFailing = false
}

// shutdown drops both rails, which extinguishes the lamp whatever its state.
// Only the first call has any effect.
func (s *system) shutdown() {
	if s.down {
		return
	}
	s.down = true
	s.ctrl.SetRail24V(false)
	s.ctrl.SetRail12V(false)
	if err := s.record.WriteIfDirty(); err != nil {
		log.Printf("persist: %v", err)
	}
}

// statusViews builds the tracker views of the current state.
func (s *system) statusViews() (status.LampStatus, status.RadarStatus, status.SafetyStatus) {
	reported, valid := s.ctrl.ReportedLevel()
	v := s.sense.Sense12V()
	l := status.LampStatus{
		State:         s.ctrl.State(),
		StateElapsed:  s.ctrl.StateElapsed(),
		Requested:     s.ctrl.RequestedLevel(),
		Commanded:     s.ctrl.CommandedLevel(),
		Reported:      reported,
		ReportedValid: valid,
		ReportedHz:    s.ctrl.ReportedFrequencyHz(),
		Type:          s.ctrl.Type(),
		Rail12V:       s.ctrl.Rail12V(),
		Rail24V:       s.ctrl.Rail24V(),
		Volts12:       v,
		PowerOK:       lamp.PowerOK(v),
	}

	r := status.RadarStatus{
		Enabled:    s.lock.Enabled(),
		DistanceCm: s.radar.Distance(),
		Stats:      s.radar.Stats(),
	}
	if rep, at, ok := s.radar.LastReport(); ok {
		r.LastReport = at
		r.Report = rep
	}

	d := s.lock.Decision()
	sf := status.SafetyStatus{
		Enabled:   s.lock.Enabled(),
		Cap:       s.lock.Cap(),
		Candidate: d.Candidate,
		Committed: d.Committed,
		Reason:    d.Reason,
		TiltDeg:   s.tilt.PointingDownAngle(),
	}
	return l, r, sf
}

// samplingSensor reads the 12V channel on every call so the controller's
// fail-safe sees a fresh sample even while boot blocks the loop. A failed
// 12V read reports 0V, which trips the fail-safe. The other rails are not
// read here.
type samplingSensor struct {
	adc     *sense.IIOSensor
	failing bool
}

func (s *samplingSensor) Sense12V() float64 {
	v, err := s.adc.Update12V()
	if err != nil {
		if !s.failing {
			log.Printf("sense: %v", err)
		}
		s.failing = true
		return 0
	}
	if s.failing {
		log.Printf("sense: recovered")
	}
	s.failing = false
	return v
}
