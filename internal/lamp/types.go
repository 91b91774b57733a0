// Package lamp contains the lamp power state machine: power levels, lamp
// types, strike/restrike/backoff states and the reported-power inference
// decoded from the ballast status line.
package lamp

import "time"

// PowerLevel is a discrete lamp output setting.
// The numeric order of the real levels is the capping order.
type PowerLevel int

const (
	PowerOff PowerLevel = iota
	Power20
	Power40
	Power70
	Power100
	PowerUnknown
)

// DimSteps is the PWM wrap of the dimming output.
const DimSteps = 100

type levelSetting struct {
	duty  uint32 // dimming PWM level out of DimSteps, inverted by the ballast input
	minHz int    // exclusive lower bound of the reported frequency band
	maxHz int    // exclusive upper bound
}

var levelSettings = [...]levelSetting{
	PowerOff: {duty: 0},
	Power20:  {duty: 100, minHz: 150, maxHz: 250},
	Power40:  {duty: 83, minHz: 400, maxHz: 600},
	Power70:  {duty: 50, minHz: 900, maxHz: 1100},
	Power100: {duty: 0},
}

// Valid reports whether l is one of Off, 20%, 40%, 70%, 100%.
func (l PowerLevel) Valid() bool {
	return l >= PowerOff && l <= Power100
}

// IsDimmed reports whether l is an energized level below full power.
func (l PowerLevel) IsDimmed() bool {
	return l == Power20 || l == Power40 || l == Power70
}

// Duty returns the dimming PWM level for l. Unknown levels command no dimming.
func (l PowerLevel) Duty() uint32 {
	if !l.Valid() {
		return 0
	}
	return levelSettings[l].duty
}

// Percent returns the nominal output in percent, or -1 for Unknown.
func (l PowerLevel) Percent() int {
	switch l {
	case PowerOff:
		return 0
	case Power20:
		return 20
	case Power40:
		return 40
	case Power70:
		return 70
	case Power100:
		return 100
	}
	return -1
}

func (l PowerLevel) String() string {
	switch l {
	case PowerOff:
		return "OFF"
	case Power20:
		return "20%"
	case Power40:
		return "40%"
	case Power70:
		return "70%"
	case Power100:
		return "100%"
	case PowerUnknown:
		return "??%"
	}
	return "!?!"
}

// MinLevel returns the lower of a and b in the order Off<20%<40%<70%<100%.
// Unknown ranks above every real level, so it never wins against one.
func MinLevel(a, b PowerLevel) PowerLevel {
	if rank(a) <= rank(b) {
		return a
	}
	return b
}

func rank(l PowerLevel) int {
	if l.Valid() {
		return int(l)
	}
	return int(PowerUnknown)
}

// LevelForDimIndex maps the persisted dim index (0..3) to a power level.
// Out-of-range indices map to full power.
func LevelForDimIndex(idx uint8) PowerLevel {
	switch idx {
	case 0:
		return Power20
	case 1:
		return Power40
	case 2:
		return Power70
	}
	return Power100
}

// DimIndexForLevel is the inverse of LevelForDimIndex for energized levels.
func DimIndexForLevel(l PowerLevel) (uint8, bool) {
	switch l {
	case Power20:
		return 0, true
	case Power40:
		return 1, true
	case Power70:
		return 2, true
	case Power100:
		return 3, true
	}
	return 0, false
}

// Type identifies the ballast fitted to the fixture.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeDimmable
	TypeNonDimmable
)

func (t Type) String() string {
	switch t {
	case TypeUnknown:
		return "UNKNOWN"
	case TypeDimmable:
		return "DIMMABLE"
	case TypeNonDimmable:
		return "NON_DIMMABLE"
	}
	return "!?!"
}

// Allows reports whether the lamp type accepts level.
// Non-dimmable lamps only accept Off and 100%.
func (t Type) Allows(l PowerLevel) bool {
	if t == TypeNonDimmable {
		return l == PowerOff || l == Power100
	}
	return l.Valid()
}

// State is the controller's lamp state.
type State int

const (
	StateOff State = iota
	StateStarting
	StateRunning
	StateFullPowerTest
	StateRestrikeCooldown1
	StateRestrikeAttempt1
	StateRestrikeCooldown2
	StateRestrikeAttempt2
	StateRestrikeCooldown3
	StateRestrikeAttempt3
	StateFailedOff
)

// MaxRestrikeAttempts is the number of restrike attempts before FailedOff.
const MaxRestrikeAttempts = 3

// RestrikeCooldown returns the cooldown state for attempt n (1..3).
func RestrikeCooldown(n int) State {
	return StateRestrikeCooldown1 + State(2*(n-1))
}

// RestrikeAttempt returns the attempt state for attempt n (1..3).
func RestrikeAttempt(n int) State {
	return StateRestrikeAttempt1 + State(2*(n-1))
}

// IsRestrikeCooldown reports whether s is a cooldown state and which attempt it precedes.
func (s State) IsRestrikeCooldown() (int, bool) {
	for n := 1; n <= MaxRestrikeAttempts; n++ {
		if s == RestrikeCooldown(n) {
			return n, true
		}
	}
	return 0, false
}

// IsRestrikeAttempt reports whether s is an attempt state and its attempt number.
func (s State) IsRestrikeAttempt() (int, bool) {
	for n := 1; n <= MaxRestrikeAttempts; n++ {
		if s == RestrikeAttempt(n) {
			return n, true
		}
	}
	return 0, false
}

// Striking reports whether the ballast is being driven at full power to
// establish or confirm an arc. Off requests are deferred in these states.
func (s State) Striking() bool {
	if _, ok := s.IsRestrikeAttempt(); ok {
		return true
	}
	return s == StateStarting || s == StateFullPowerTest
}

func (s State) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateFullPowerTest:
		return "FULLPOWER_TEST"
	case StateRestrikeCooldown1:
		return "RESTRIKE_COOLDOWN_1"
	case StateRestrikeAttempt1:
		return "RESTRIKE_ATTEMPT_1"
	case StateRestrikeCooldown2:
		return "RESTRIKE_COOLDOWN_2"
	case StateRestrikeAttempt2:
		return "RESTRIKE_ATTEMPT_2"
	case StateRestrikeCooldown3:
		return "RESTRIKE_COOLDOWN_3"
	case StateRestrikeAttempt3:
		return "RESTRIKE_ATTEMPT_3"
	case StateFailedOff:
		return "FAILED_OFF"
	}
	return "!?!"
}

// Transition is a state change to be published.
type Transition struct {
	Timestamp time.Time
	From      State
	To        State
	Requested PowerLevel
	Commanded PowerLevel
	Reason    string
}
