package safety

import (
	"fmt"

	"github.com/sweeney/uv-lamp/internal/lamp"
)

// HighTiltDegrees is the pointing-down angle above which the high-tilt
// column of a break table applies.
const HighTiltDegrees = 32

// IsHighTilt reports whether angle selects the high-tilt column.
func IsHighTilt(angle int) bool {
	return angle > HighTiltDegrees
}

// Policy maps a measured distance to the highest permitted power level.
type Policy interface {
	LevelFor(distanceCm int, diffused, highTilt bool) lamp.PowerLevel
	Name() string
}

// Threshold switches the lamp off at or inside a single distance and allows
// full power beyond it.
type Threshold int

// DefaultThresholdCm is the shipped single-threshold distance.
const DefaultThresholdCm = 110

// LevelFor returns Off within the threshold and 100% beyond it.
func (t Threshold) LevelFor(distanceCm int, _, _ bool) lamp.PowerLevel {
	if distanceCm <= int(t) {
		return lamp.PowerOff
	}
	return lamp.Power100
}

// Name identifies the policy in status output.
func (t Threshold) Name() string { return fmt.Sprintf("threshold/%dcm", int(t)) }

// BreakRow holds, per optics configuration, the furthest distance in cm at
// which a level restriction is in effect.
type BreakRow struct {
	UndiffusedLowTilt  int
	UndiffusedHighTilt int
	DiffusedLowTilt    int
	DiffusedHighTilt   int
}

func (r BreakRow) distance(diffused, highTilt bool) int {
	switch {
	case diffused && highTilt:
		return r.DiffusedHighTilt
	case diffused:
		return r.DiffusedLowTilt
	case highTilt:
		return r.UndiffusedHighTilt
	}
	return r.UndiffusedLowTilt
}

// BreakTable restricts power in bands: row Off applies nearest, then 20%,
// 40% and 70%. Beyond the 70% row full power is allowed.
type BreakTable [lamp.Power100]BreakRow

// ICNIRPTable holds exposure-limit breakpoints for the fixture.
var ICNIRPTable = BreakTable{
	lamp.PowerOff: {110, 110, 54, 54},
	lamp.Power20:  {113, 113, 88, 88},
	lamp.Power40:  {115, 115, 111, 111},
	lamp.Power70:  {116, 116, 112, 112},
}

// LevelFor returns the lowest level whose break distance is not exceeded.
func (b BreakTable) LevelFor(distanceCm int, diffused, highTilt bool) lamp.PowerLevel {
	for l := lamp.PowerOff; l < lamp.Power100; l++ {
		if distanceCm <= b[l].distance(diffused, highTilt) {
			return l
		}
	}
	return lamp.Power100
}

// Name identifies the policy in status output.
func (b BreakTable) Name() string { return "break-table" }

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "threshold":
		return Threshold(DefaultThresholdCm), nil
	case "icnirp":
		return ICNIRPTable, nil
	}
	return nil, fmt.Errorf("unknown distance policy %q: expected threshold or icnirp", name)
}
