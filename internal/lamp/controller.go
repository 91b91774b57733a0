package lamp

import (
	"time"

	"github.com/sweeney/uv-lamp/internal/timeutil"
)

// SoftStartSteps is the PWM wrap of the 12V soft-start output.
const SoftStartSteps = 64

// Timings holds the controller's dwell timers.
type Timings struct {
	StrikeTimeout      time.Duration // Starting, RestrikeAttempt(n) and FullPowerTest give up after this
	RestrikeCooldown   time.Duration // off time before each restrike attempt
	FullPowerTestAfter time.Duration // dimmable lamps re-verify full power after this long Running
	NonDimmableGrace   time.Duration // Running settle time before a non-dimmable lamp must report 100%
	LatchInterval      time.Duration // pulse counter latch period
	RampUpStep         time.Duration // 12V soft-start step when energizing
	RampDownStep       time.Duration // 12V soft-start step when de-energizing
	FailSafeSettle     time.Duration // enable-to-rail-drop delay in the voltage fail-safe
}

// DefaultTimings returns the shipped timer values.
func DefaultTimings() Timings {
	return Timings{
		StrikeTimeout:      10 * time.Second,
		RestrikeCooldown:   5 * time.Second,
		FullPowerTestAfter: 2 * time.Hour,
		NonDimmableGrace:   time.Second,
		LatchInterval:      time.Second,
		RampUpStep:         8 * time.Millisecond,
		RampDownStep:       time.Millisecond,
		FailSafeSettle:     10 * time.Millisecond,
	}
}

// Controller is the lamp power state machine. It is owned by the control
// loop; only PulseCounter is shared with the edge handler.
type Controller struct {
	hw      Hardware
	sense   VoltageSensor
	pulses  *PulseCounter
	clock   timeutil.Clock
	timings Timings

	lampType Type
	rail12V  bool
	rail24V  bool

	state          State
	stateSince     time.Time
	requested      PowerLevel
	commanded      PowerLevel
	reported       PowerLevel
	reportedHz     int
	lastLatch      time.Time
	failSafeActive bool

	transitions []Transition
}

// NewController creates a controller in StateOff with all rails off.
func NewController(hw Hardware, sense VoltageSensor, pulses *PulseCounter, clock timeutil.Clock, timings Timings) *Controller {
	if pulses == nil {
		pulses = NewPulseCounter()
	}
	now := clock.Now()
	return &Controller{
		hw:         hw,
		sense:      sense,
		pulses:     pulses,
		clock:      clock,
		timings:    timings,
		state:      StateOff,
		stateSince: now,
		requested:  PowerOff,
		commanded:  PowerOff,
		reported:   PowerUnknown,
		lastLatch:  now,
	}
}

// SetType sets the lamp type, normally from the persisted factory record.
func (c *Controller) SetType(t Type) {
	c.lampType = t
}

// RequestPower records level as the requested output.
// It returns false, changing nothing, when the request cannot be honoured.
// Re-requesting the current level succeeds without side effects.
func (c *Controller) RequestPower(level PowerLevel) bool {
	if c.requested == level {
		return true
	}
	if !level.Valid() {
		Logf("lamp: reject request for %s", level)
		return false
	}
	if c.state == StateFailedOff && level != PowerOff {
		return false
	}

	if c.lampType == TypeNonDimmable {
		if !c.lampType.Allows(level) {
			Logf("lamp: reject dimmed level %s for non-dimmable lamp", level)
			return false
		}
		if level != PowerOff && !c.rail24V {
			Logf("lamp: reject %s for non-dimmable lamp without 24V", level)
			return false
		}
	}

	if level != PowerOff && !c.rail12V {
		Logf("lamp: reject %s without 12V", level)
		return false
	}

	if c.requested == PowerOff && level != PowerOff && c.state == StateOff {
		c.gotoState(StateStarting, "power requested")
	}

	c.requested = level
	return true
}

// Update runs one control-loop step: latches the pulse counter, infers the
// reported level, advances the state machine, drives the outputs, and finally
// applies the rail voltage fail-safe. It returns the transitions taken since
// the previous Update, including any caused by RequestPower.
func (c *Controller) Update() []Transition {
	now := c.clock.Now()

	if now.Sub(c.lastLatch) >= c.timings.LatchInterval {
		c.reportedHz = c.pulses.Latch()
		c.lastLatch = now
		c.reported = c.classify(c.reportedHz)
	}

	c.step(now.Sub(c.stateSince))
	c.commanded = c.commandFor(c.state)
	c.drive()
	c.failSafe()

	out := make([]Transition, len(c.transitions))
	copy(out, c.transitions)
	c.transitions = c.transitions[:0]
	return out
}

// classify infers the achieved level from the latched edge count.
func (c *Controller) classify(hz int) PowerLevel {
	if c.lampType == TypeNonDimmable {
		if c.statusEnergized() {
			return Power100
		}
		return PowerOff
	}

	// Dimmable and Unknown; Unknown is classified this way during the type test.
	if c.commanded == PowerOff {
		return PowerOff
	}
	if hz < 100 {
		// A steady line carries no frequency; its level tells 100% from off.
		if c.statusEnergized() {
			return Power100
		}
		return PowerOff
	}
	for _, l := range []PowerLevel{Power70, Power40, Power20} {
		s := levelSettings[l]
		if hz > s.minHz && hz < s.maxHz {
			return l
		}
	}
	return PowerUnknown
}

func (c *Controller) statusEnergized() bool {
	on, err := c.hw.StatusEnergized()
	if err != nil {
		Logf("lamp: read status: %v", err)
		return false
	}
	return on
}

// step applies the transition table. Off requests are deferred while the
// lamp is striking so the ballast is never short-cycled.
func (c *Controller) step(elapsed time.Duration) {
	t := c.timings

	switch c.state {
	case StateStarting:
		switch {
		case c.reported == Power100:
			c.gotoState(StateRunning, "strike confirmed")
		case elapsed > t.StrikeTimeout:
			c.gotoState(RestrikeCooldown(1), "strike timed out")
		}

	case StateRunning:
		switch {
		case c.requested == PowerOff:
			c.gotoState(StateOff, "off requested")
		case c.lampType == TypeDimmable && elapsed > t.FullPowerTestAfter:
			c.gotoState(StateFullPowerTest, "periodic full-power test")
		case c.lampType == TypeNonDimmable && elapsed > t.NonDimmableGrace && c.reported != Power100:
			c.gotoState(RestrikeCooldown(1), "lamp went out")
		}

	case StateFullPowerTest:
		switch {
		case c.reported == Power100:
			c.gotoState(StateRunning, "full power confirmed")
		case elapsed > t.StrikeTimeout:
			c.gotoState(RestrikeCooldown(1), "full-power test timed out")
		}

	case StateFailedOff:
		if c.requested == PowerOff {
			c.gotoState(StateOff, "off requested")
		}

	case StateOff:

	default:
		if n, ok := c.state.IsRestrikeCooldown(); ok {
			switch {
			case c.requested == PowerOff:
				c.gotoState(StateOff, "off requested")
			case elapsed > t.RestrikeCooldown:
				c.gotoState(RestrikeAttempt(n), "cooldown elapsed")
			}
			return
		}
		if n, ok := c.state.IsRestrikeAttempt(); ok {
			switch {
			case c.reported == Power100:
				c.gotoState(StateStarting, "restrike succeeded")
			case elapsed > t.StrikeTimeout && n < MaxRestrikeAttempts:
				c.gotoState(RestrikeCooldown(n+1), "restrike timed out")
			case elapsed > t.StrikeTimeout:
				c.gotoState(StateFailedOff, "restrike attempts exhausted")
			}
		}
	}
}

func (c *Controller) commandFor(s State) PowerLevel {
	switch {
	case s == StateRunning:
		return c.requested
	case s.Striking():
		return Power100
	}
	return PowerOff
}

func (c *Controller) drive() {
	if err := c.hw.SetDimDuty(c.commanded.Duty(), DimSteps); err != nil {
		Logf("lamp: set dim duty: %v", err)
	}
	if err := c.hw.SetLampEnable(c.commanded != PowerOff); err != nil {
		Logf("lamp: set enable: %v", err)
	}
}

// failSafe drops both rails and forces Off when the 12V rail is out of
// tolerance. It overrides every other transition.
func (c *Controller) failSafe() {
	v := c.sense.Sense12V()
	if PowerOK(v) {
		c.failSafeActive = false
		return
	}
	if !c.failSafeActive {
		Logf("lamp: 12V rail out of range (%.2fV), forcing off", v)
		c.failSafeActive = true
	}

	if err := c.hw.SetLampEnable(true); err != nil {
		Logf("lamp: fail-safe enable: %v", err)
	}
	c.clock.Sleep(c.timings.FailSafeSettle)
	c.SetRail24V(false)
	c.SetRail12V(false)
	c.commanded = PowerOff
	if c.state != StateOff {
		c.gotoState(StateOff, "rail voltage fail-safe")
	}
}

// SetRail12V soft-starts or soft-stops the 12V rail. Energizing is refused
// unless the measured rail is within the enable window.
func (c *Controller) SetRail12V(on bool) bool {
	v := c.sense.Sense12V()
	if on && (v < Rail12VEnableMin || v > Rail12VEnableMax) {
		Logf("lamp: reject 12V on at %.2fV", v)
		return false
	}

	switch {
	case on && !c.rail12V:
		for i := uint32(0); i <= SoftStartSteps+1; i++ {
			c.setRail12VDuty(i)
			c.clock.Sleep(c.timings.RampUpStep)
		}
	case !on && c.rail12V:
		for i := int(SoftStartSteps + 1); i >= 0; i-- {
			c.setRail12VDuty(uint32(i))
			c.clock.Sleep(c.timings.RampDownStep)
		}
	}

	c.rail12V = on
	return true
}

func (c *Controller) setRail12VDuty(level uint32) {
	if level > SoftStartSteps {
		level = SoftStartSteps
	}
	if err := c.hw.SetRail12VDuty(level, SoftStartSteps); err != nil {
		Logf("lamp: set 12V duty: %v", err)
	}
}

// SetRail24V switches the 24V rail. Energizing requires the 12V rail.
func (c *Controller) SetRail24V(on bool) bool {
	if on && !c.rail12V {
		Logf("lamp: reject 24V on without 12V")
		return false
	}
	if err := c.hw.SetRail24V(on); err != nil {
		Logf("lamp: set 24V: %v", err)
		if on {
			return false
		}
	}
	c.rail24V = on
	return true
}

func (c *Controller) gotoState(s State, reason string) {
	now := c.clock.Now()
	if s != c.state {
		Logf("lamp: %s -> %s (%s)", c.state, s, reason)
		c.transitions = append(c.transitions, Transition{
			Timestamp: now,
			From:      c.state,
			To:        s,
			Requested: c.requested,
			Commanded: c.commandFor(s),
			Reason:    reason,
		})
	}
	c.state = s
	c.stateSince = now
}

// State returns the current lamp state.
func (c *Controller) State() State { return c.state }

// StateElapsed returns the time spent in the current state.
func (c *Controller) StateElapsed() time.Duration { return c.clock.Now().Sub(c.stateSince) }

// RequestedLevel returns the last accepted request.
func (c *Controller) RequestedLevel() PowerLevel { return c.requested }

// CommandedLevel returns the level currently driven to the ballast.
func (c *Controller) CommandedLevel() PowerLevel { return c.commanded }

// ReportedLevel returns the level inferred from the status line, and false
// when it is Unknown.
func (c *Controller) ReportedLevel() (PowerLevel, bool) {
	return c.reported, c.reported.Valid()
}

// ReportedFrequencyHz returns the last latched status edge rate.
func (c *Controller) ReportedFrequencyHz() int { return c.reportedHz }

// Type returns the lamp type in use.
func (c *Controller) Type() Type { return c.lampType }

// Rail12V reports whether the 12V rail is energized.
func (c *Controller) Rail12V() bool { return c.rail12V }

// Rail24V reports whether the 24V rail is energized.
func (c *Controller) Rail24V() bool { return c.rail24V }

// IsOn reports whether the lamp is commanded to any energized level.
func (c *Controller) IsOn() bool { return c.commanded != PowerOff }
