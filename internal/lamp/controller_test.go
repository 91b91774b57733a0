package lamp

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/sweeney/uv-lamp/internal/gpio"
	"github.com/sweeney/uv-lamp/internal/sense"
	"github.com/sweeney/uv-lamp/internal/timeutil"
)

var errTest = errors.New("test error")

// rig wires a controller to fake hardware on a mock clock.
type rig struct {
	clock  *timeutil.MockClock
	io     *gpio.FakeIO
	sense  *sense.Fake
	pulses *PulseCounter
	c      *Controller

	// hz is the simulated status edge rate fed into the pulse counter.
	hz int

	transitions []Transition
}

func newRig(t *testing.T, timings Timings) *rig {
	t.Helper()
	muteLog(t)

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := &rig{
		clock:  timeutil.NewMockClock(start),
		io:     gpio.NewFakeIO(),
		sense:  sense.NewFake(),
		pulses: NewPulseCounter(),
	}
	r.c = NewController(r.io, r.sense, r.pulses, r.clock, timings)
	return r
}

func muteLog(t *testing.T) {
	t.Helper()
	old := Logf
	Logf = func(string, ...any) {}
	t.Cleanup(func() { Logf = old })
}

// run advances the clock in steps for d, feeding pulses and calling Update.
func (r *rig) run(d, step time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		r.clock.Advance(step)
		for i := 0; i < r.hz*int(step/time.Millisecond)/1000; i++ {
			r.pulses.Inc()
		}
		r.transitions = append(r.transitions, r.c.Update()...)
	}
}

// lit makes the status line follow the enable output.
func (r *rig) lit() {
	r.io.StatusFunc = func(f *gpio.FakeIO) bool { return f.LampEnabled }
}

// running brings a lamp of type typ to Running at level.
func (r *rig) running(t *testing.T, typ Type, level PowerLevel) {
	t.Helper()
	r.c.SetType(typ)
	if !r.c.SetRail12V(true) {
		t.Fatal("SetRail12V(true) rejected")
	}
	if typ == TypeNonDimmable && !r.c.SetRail24V(true) {
		t.Fatal("SetRail24V(true) rejected")
	}
	r.lit()
	if !r.c.RequestPower(level) {
		t.Fatalf("RequestPower(%s) rejected", level)
	}
	r.run(3*time.Second, 100*time.Millisecond)
	if r.c.State() != StateRunning {
		t.Fatalf("expected RUNNING, got %s", r.c.State())
	}
}

func TestNewControllerIsOff(t *testing.T) {
	r := newRig(t, DefaultTimings())
	if r.c.State() != StateOff {
		t.Errorf("expected OFF, got %s", r.c.State())
	}
	if r.c.RequestedLevel() != PowerOff || r.c.CommandedLevel() != PowerOff {
		t.Errorf("expected requested/commanded OFF, got %s/%s", r.c.RequestedLevel(), r.c.CommandedLevel())
	}
	if _, ok := r.c.ReportedLevel(); ok {
		t.Error("reported level should be unknown before the first latch")
	}
	if r.c.Rail12V() || r.c.Rail24V() {
		t.Error("rails should start off")
	}
}

func TestRequestPowerRejections(t *testing.T) {
	tests := []struct {
		name  string
		typ   Type
		rail  bool
		rail2 bool
		level PowerLevel
	}{
		{"no 12V", TypeDimmable, false, false, Power100},
		{"no 12V dimmed", TypeUnknown, false, false, Power40},
		{"unknown level", TypeDimmable, true, false, PowerUnknown},
		{"non-dimmable dimmed", TypeNonDimmable, true, true, Power70},
		{"non-dimmable without 24V", TypeNonDimmable, true, false, Power100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, DefaultTimings())
			r.c.SetType(tt.typ)
			if tt.rail {
				r.c.SetRail12V(true)
			}
			if tt.rail2 {
				r.c.SetRail24V(true)
			}
			since := r.c.stateSince

			if r.c.RequestPower(tt.level) {
				t.Fatalf("RequestPower(%s) should be rejected", tt.level)
			}
			if r.c.RequestedLevel() != PowerOff {
				t.Errorf("requested changed to %s", r.c.RequestedLevel())
			}
			if r.c.State() != StateOff || !r.c.stateSince.Equal(since) {
				t.Errorf("state changed to %s", r.c.State())
			}
		})
	}
}

func TestRequestPowerStartsLamp(t *testing.T) {
	r := newRig(t, DefaultTimings())
	r.c.SetType(TypeDimmable)
	r.c.SetRail12V(true)

	if !r.c.RequestPower(Power40) {
		t.Fatal("RequestPower(40%) rejected")
	}
	if r.c.State() != StateStarting {
		t.Errorf("expected STARTING, got %s", r.c.State())
	}
	if !r.c.stateSince.Equal(r.clock.Now()) {
		t.Error("transition time not stamped")
	}
}

func TestRequestPowerIdempotent(t *testing.T) {
	r := newRig(t, DefaultTimings())
	r.c.SetType(TypeDimmable)
	r.c.SetRail12V(true)
	r.c.RequestPower(Power100)

	since := r.c.stateSince
	r.clock.Advance(2 * time.Second)

	if !r.c.RequestPower(Power100) {
		t.Fatal("repeated request should succeed")
	}
	if r.c.State() != StateStarting {
		t.Errorf("expected STARTING, got %s", r.c.State())
	}
	if !r.c.stateSince.Equal(since) {
		t.Error("repeated request must not restamp the transition time")
	}
}

func TestStartingToRunningAtRequestedLevel(t *testing.T) {
	r := newRig(t, DefaultTimings())
	r.running(t, TypeDimmable, Power40)

	if r.c.CommandedLevel() != Power40 {
		t.Errorf("expected commanded 40%%, got %s", r.c.CommandedLevel())
	}
	if r.io.Dim != Power40.Duty() || r.io.DimTop != DimSteps {
		t.Errorf("expected dim duty %d/%d, got %d/%d", Power40.Duty(), DimSteps, r.io.Dim, r.io.DimTop)
	}
	if !r.io.LampEnabled {
		t.Error("expected lamp enabled")
	}

	want := []State{StateStarting, StateRunning}
	if len(r.transitions) != len(want) {
		t.Fatalf("unexpected transitions: %+v", r.transitions)
	}
	for i, tr := range r.transitions {
		if tr.To != want[i] {
			t.Errorf("transition %d: got %s, want %s", i, tr.To, want[i])
		}
	}
	if r.transitions[0].Reason != "power requested" {
		t.Errorf("unexpected reason %q", r.transitions[0].Reason)
	}
}

func TestStartingCommandsFullPower(t *testing.T) {
	r := newRig(t, DefaultTimings())
	r.c.SetType(TypeDimmable)
	r.c.SetRail12V(true)
	r.c.RequestPower(Power20)

	r.run(100*time.Millisecond, 100*time.Millisecond)
	if r.c.CommandedLevel() != Power100 {
		t.Errorf("strike must command 100%%, got %s", r.c.CommandedLevel())
	}
	if r.io.Dim != 0 {
		t.Errorf("expected undimmed duty, got %d", r.io.Dim)
	}
}

func TestReportedLevelFrequencyBands(t *testing.T) {
	tests := []struct {
		hz   int
		want PowerLevel
	}{
		{1000, Power70},
		{500, Power40},
		{200, Power20},
		{300, PowerUnknown},
		{1200, PowerUnknown},
	}

	for _, tt := range tests {
		r := newRig(t, DefaultTimings())
		r.running(t, TypeDimmable, Power70)

		r.hz = tt.hz
		r.run(2*time.Second, 100*time.Millisecond)

		got, ok := r.c.ReportedLevel()
		if got != tt.want {
			t.Errorf("%dHz: reported %s, want %s", tt.hz, got, tt.want)
		}
		if ok != tt.want.Valid() {
			t.Errorf("%dHz: ok=%v", tt.hz, ok)
		}
		if hz := r.c.ReportedFrequencyHz(); hz < tt.hz-20 || hz > tt.hz+20 {
			t.Errorf("latched %dHz, want ~%d", hz, tt.hz)
		}
	}
}

func TestReportedLevelLowRateUsesStatusLine(t *testing.T) {
	r := newRig(t, DefaultTimings())
	r.running(t, TypeDimmable, Power100)

	r.io.StatusFunc = nil
	r.io.Status = false
	r.run(2*time.Second, 100*time.Millisecond)

	if got, _ := r.c.ReportedLevel(); got != PowerOff {
		t.Errorf("expected OFF from idle status line, got %s", got)
	}
}

func TestRestrikeBackoffToFailedOff(t *testing.T) {
	r := newRig(t, DefaultTimings())
	r.c.SetType(TypeDimmable)
	r.c.SetRail12V(true)
	r.c.RequestPower(Power100)

	r.run(70*time.Second, 100*time.Millisecond)

	if r.c.State() != StateFailedOff {
		t.Fatalf("expected FAILED_OFF, got %s", r.c.State())
	}
	want := []State{
		StateStarting,
		RestrikeCooldown(1), RestrikeAttempt(1),
		RestrikeCooldown(2), RestrikeAttempt(2),
		RestrikeCooldown(3), RestrikeAttempt(3),
		StateFailedOff,
	}
	if len(r.transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %d: %+v", len(want), len(r.transitions), r.transitions)
	}
	for i, tr := range r.transitions {
		if tr.To != want[i] {
			t.Errorf("transition %d: got %s, want %s", i, tr.To, want[i])
		}
	}
	if r.c.CommandedLevel() != PowerOff || r.io.LampEnabled {
		t.Error("FAILED_OFF must command the lamp off")
	}

	// Stays failed until Off is requested.
	if r.c.RequestPower(Power70) {
		t.Error("energized request accepted in FAILED_OFF")
	}
	r.run(30*time.Second, 100*time.Millisecond)
	if r.c.State() != StateFailedOff {
		t.Fatalf("left FAILED_OFF without an off request: %s", r.c.State())
	}

	if !r.c.RequestPower(PowerOff) {
		t.Fatal("off request rejected in FAILED_OFF")
	}
	r.run(100*time.Millisecond, 100*time.Millisecond)
	if r.c.State() != StateOff {
		t.Errorf("expected OFF, got %s", r.c.State())
	}
}

func TestRestrikeCooldownTiming(t *testing.T) {
	r := newRig(t, DefaultTimings())
	r.c.SetType(TypeDimmable)
	r.c.SetRail12V(true)
	r.c.RequestPower(Power100)

	r.run(10*time.Second, 100*time.Millisecond)
	if r.c.State() != StateStarting {
		t.Fatalf("strike timeout is exclusive, expected STARTING at 10s, got %s", r.c.State())
	}
	r.run(100*time.Millisecond, 100*time.Millisecond)
	if r.c.State() != RestrikeCooldown(1) {
		t.Fatalf("expected RESTRIKE_COOLDOWN_1, got %s", r.c.State())
	}
	if r.c.CommandedLevel() != PowerOff {
		t.Errorf("cooldown must command off, got %s", r.c.CommandedLevel())
	}

	r.run(5*time.Second, 100*time.Millisecond)
	if r.c.State() != RestrikeCooldown(1) {
		t.Fatalf("expected RESTRIKE_COOLDOWN_1 at 5s, got %s", r.c.State())
	}
	r.run(100*time.Millisecond, 100*time.Millisecond)
	if r.c.State() != RestrikeAttempt(1) {
		t.Fatalf("expected RESTRIKE_ATTEMPT_1, got %s", r.c.State())
	}
	if r.c.CommandedLevel() != Power100 {
		t.Errorf("attempt must command 100%%, got %s", r.c.CommandedLevel())
	}
}

func TestRestrikeSucceedsBackToStarting(t *testing.T) {
	r := newRig(t, DefaultTimings())
	r.c.SetType(TypeDimmable)
	r.c.SetRail12V(true)
	r.c.RequestPower(Power70)

	r.run(16*time.Second, 100*time.Millisecond)
	if r.c.State() != RestrikeAttempt(1) {
		t.Fatalf("expected RESTRIKE_ATTEMPT_1, got %s", r.c.State())
	}

	r.lit()
	r.run(3*time.Second, 100*time.Millisecond)
	if r.c.State() != StateRunning {
		t.Fatalf("expected RUNNING after successful restrike, got %s", r.c.State())
	}

	var sawStarting bool
	for _, tr := range r.transitions {
		if tr.From == RestrikeAttempt(1) && tr.To == StateStarting {
			sawStarting = true
		}
	}
	if !sawStarting {
		t.Errorf("expected RESTRIKE_ATTEMPT_1 -> STARTING, got %+v", r.transitions)
	}
}

func TestOffRequestDeferredWhileStriking(t *testing.T) {
	r := newRig(t, DefaultTimings())
	r.c.SetType(TypeDimmable)
	r.c.SetRail12V(true)
	r.c.RequestPower(Power100)
	r.run(500*time.Millisecond, 100*time.Millisecond)

	r.c.RequestPower(PowerOff)
	r.run(2*time.Second, 100*time.Millisecond)
	if r.c.State() != StateStarting {
		t.Fatalf("off request must not abort a strike, got %s", r.c.State())
	}

	// Strike times out, then the pending off request is honoured from cooldown.
	r.run(10*time.Second, 100*time.Millisecond)
	if r.c.State() != StateOff {
		t.Fatalf("expected OFF, got %s", r.c.State())
	}
	last := r.transitions[len(r.transitions)-1]
	if last.From != RestrikeCooldown(1) {
		t.Errorf("expected OFF to be reached from cooldown, got %s", last.From)
	}
}

func TestRunningToOff(t *testing.T) {
	r := newRig(t, DefaultTimings())
	r.running(t, TypeDimmable, Power100)

	r.c.RequestPower(PowerOff)
	r.run(100*time.Millisecond, 100*time.Millisecond)
	if r.c.State() != StateOff {
		t.Fatalf("expected OFF, got %s", r.c.State())
	}
	if r.io.LampEnabled {
		t.Error("expected lamp disabled")
	}
}

func TestFullPowerTestCycle(t *testing.T) {
	timings := DefaultTimings()
	timings.FullPowerTestAfter = 30 * time.Second
	r := newRig(t, timings)
	r.running(t, TypeDimmable, Power40)
	r.hz = 500

	r.run(31*time.Second, 100*time.Millisecond)
	if r.c.State() != StateFullPowerTest {
		t.Fatalf("expected FULLPOWER_TEST, got %s", r.c.State())
	}
	if r.c.CommandedLevel() != Power100 {
		t.Errorf("full-power test must command 100%%, got %s", r.c.CommandedLevel())
	}

	// Off requested mid-test is ignored until the test resolves.
	r.c.RequestPower(PowerOff)
	r.hz = 0
	r.run(3*time.Second, 100*time.Millisecond)
	if r.c.State() != StateOff {
		t.Fatalf("expected OFF after test resolved, got %s", r.c.State())
	}
	for _, tr := range r.transitions {
		if tr.From == StateFullPowerTest && tr.To == StateOff {
			t.Errorf("direct FULLPOWER_TEST -> OFF transition")
		}
	}
}

func TestFullPowerTestTimeout(t *testing.T) {
	timings := DefaultTimings()
	timings.FullPowerTestAfter = 30 * time.Second
	r := newRig(t, timings)
	r.running(t, TypeDimmable, Power40)

	r.io.StatusFunc = nil
	r.io.Status = false
	r.hz = 500
	r.run(31*time.Second, 100*time.Millisecond)
	if r.c.State() != StateFullPowerTest {
		t.Fatalf("expected FULLPOWER_TEST, got %s", r.c.State())
	}
	r.hz = 0
	r.run(11*time.Second, 100*time.Millisecond)
	if r.c.State() != RestrikeCooldown(1) {
		t.Errorf("expected RESTRIKE_COOLDOWN_1, got %s", r.c.State())
	}
}

func TestNonDimmableLampOut(t *testing.T) {
	r := newRig(t, DefaultTimings())
	r.running(t, TypeNonDimmable, Power100)

	r.io.StatusFunc = nil
	r.io.Status = false
	r.run(3*time.Second, 100*time.Millisecond)

	if r.c.State() != RestrikeCooldown(1) {
		t.Errorf("expected RESTRIKE_COOLDOWN_1, got %s", r.c.State())
	}
}

func TestVoltageFailSafe(t *testing.T) {
	for _, v := range []float64{9.8, 14.2} {
		r := newRig(t, DefaultTimings())
		r.running(t, TypeNonDimmable, Power100)

		r.sense.R.V12 = v
		r.run(100*time.Millisecond, 100*time.Millisecond)

		if r.c.State() != StateOff {
			t.Errorf("%.1fV: expected OFF, got %s", v, r.c.State())
		}
		if r.c.Rail12V() || r.c.Rail24V() || r.io.Rail24V {
			t.Errorf("%.1fV: rails must be dropped", v)
		}
		if !r.io.LampEnabled {
			t.Errorf("%.1fV: enable output must be forced active", v)
		}
		last := r.transitions[len(r.transitions)-1]
		if last.From != StateRunning || last.To != StateOff || last.Reason != "rail voltage fail-safe" {
			t.Errorf("%.1fV: unexpected transition %+v", v, last)
		}

		// Requires an explicit off -> on cycle with a healthy rail.
		r.sense.R.V12 = 12
		if r.c.RequestPower(Power100) != true {
			t.Errorf("%.1fV: repeated request should be a no-op success", v)
		}
		r.run(time.Second, 100*time.Millisecond)
		if r.c.State() != StateOff {
			t.Errorf("%.1fV: lamp restarted without an off request: %s", v, r.c.State())
		}
	}
}

func TestFailSafeOverridesStriking(t *testing.T) {
	r := newRig(t, DefaultTimings())
	r.c.SetType(TypeDimmable)
	r.c.SetRail12V(true)
	r.c.RequestPower(Power100)
	r.run(time.Second, 100*time.Millisecond)

	r.sense.R.V12 = 0
	r.run(100*time.Millisecond, 100*time.Millisecond)
	if r.c.State() != StateOff {
		t.Fatalf("expected fail-safe OFF from STARTING, got %s", r.c.State())
	}
}

// TestNoDirectOffFromStriking drives the controller with random inputs on a
// healthy rail and checks that no striking state ever jumps straight to OFF.
func TestNoDirectOffFromStriking(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	levels := []PowerLevel{PowerOff, Power20, Power40, Power70, Power100}

	for run := 0; run < 20; run++ {
		r := newRig(t, DefaultTimings())
		r.c.SetType(Type(1 + rng.Intn(2)))
		r.c.SetRail12V(true)
		r.c.SetRail24V(true)

		for i := 0; i < 400; i++ {
			switch rng.Intn(4) {
			case 0:
				r.c.RequestPower(levels[rng.Intn(len(levels))])
			case 1:
				r.io.Status = rng.Intn(2) == 0
			case 2:
				r.hz = []int{0, 200, 500, 1000}[rng.Intn(4)]
			}
			r.run(time.Duration(1+rng.Intn(30))*100*time.Millisecond, 100*time.Millisecond)
		}

		for _, tr := range r.transitions {
			if tr.From.Striking() && tr.To == StateOff {
				t.Fatalf("run %d: direct %s -> OFF (%s)", run, tr.From, tr.Reason)
			}
		}
	}
}

func TestRail12VSoftStart(t *testing.T) {
	r := newRig(t, DefaultTimings())
	start := r.clock.Now()

	if !r.c.SetRail12V(true) {
		t.Fatal("SetRail12V(true) rejected at 12V")
	}
	if len(r.io.Rail12VHistory) != SoftStartSteps+2 {
		t.Fatalf("expected %d ramp steps, got %d", SoftStartSteps+2, len(r.io.Rail12VHistory))
	}
	for i, l := range r.io.Rail12VHistory[:SoftStartSteps+1] {
		if l != uint32(i) {
			t.Fatalf("step %d: got level %d", i, l)
		}
	}
	if !r.io.Rail12VOn() {
		t.Error("expected full duty after ramp")
	}
	if got := r.clock.Now().Sub(start); got != time.Duration(SoftStartSteps+2)*8*time.Millisecond {
		t.Errorf("ramp up took %v", got)
	}

	r.io.Rail12VHistory = nil
	start = r.clock.Now()
	r.c.SetRail12V(false)
	if len(r.io.Rail12VHistory) != SoftStartSteps+2 || r.io.Rail12V != 0 {
		t.Errorf("expected ramp down to 0 over %d steps, got %d ending at %d",
			SoftStartSteps+2, len(r.io.Rail12VHistory), r.io.Rail12V)
	}
	if got := r.clock.Now().Sub(start); got != time.Duration(SoftStartSteps+2)*time.Millisecond {
		t.Errorf("ramp down took %v", got)
	}
}

func TestRail12VRejectsOutOfWindow(t *testing.T) {
	for _, v := range []float64{11.4, 12.6} {
		r := newRig(t, DefaultTimings())
		r.sense.R.V12 = v
		if r.c.SetRail12V(true) {
			t.Errorf("%.1fV: 12V on should be rejected", v)
		}
		if r.c.Rail12V() || len(r.io.Rail12VHistory) != 0 {
			t.Errorf("%.1fV: rail must stay off", v)
		}
	}
}

func TestRail24VRequires12V(t *testing.T) {
	r := newRig(t, DefaultTimings())
	if r.c.SetRail24V(true) {
		t.Error("24V on without 12V should be rejected")
	}
	if r.io.Rail24V {
		t.Error("24V output must stay off")
	}

	r.c.SetRail12V(true)
	if !r.c.SetRail24V(true) {
		t.Error("24V on with 12V should succeed")
	}
	if !r.io.Rail24V || !r.c.Rail24V() {
		t.Error("expected 24V on")
	}
}

func TestStatusReadErrorIsSafe(t *testing.T) {
	r := newRig(t, DefaultTimings())
	r.running(t, TypeNonDimmable, Power100)

	r.io.StatusError = errTest
	r.run(3*time.Second, 100*time.Millisecond)
	if got, _ := r.c.ReportedLevel(); got != PowerOff {
		t.Errorf("status read failure must read as OFF, got %s", got)
	}
}
