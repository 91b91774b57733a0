package lamp

import "log"

// Logf is the package diagnostic logger. Tests may replace it.
var Logf = log.Printf

// Hardware drives the lamp outputs and reads the ballast status line.
type Hardware interface {
	// SetLampEnable drives the ballast enable output.
	SetLampEnable(on bool) error

	// SetRail24V switches the 24V rail.
	SetRail24V(on bool) error

	// SetRail12VDuty sets the 12V soft-start PWM to level/top.
	SetRail12VDuty(level, top uint32) error

	// SetDimDuty sets the dimming PWM to level/top.
	SetDimDuty(level, top uint32) error

	// StatusEnergized reports whether the ballast status line shows the lamp lit.
	StatusEnergized() (bool, error)
}

// VoltageSensor reports the most recent 12V rail measurement in volts.
type VoltageSensor interface {
	Sense12V() float64
}

// Rail voltage limits.
const (
	Rail12VEnableMin = 11.5
	Rail12VEnableMax = 12.5
	Rail12VSafeMin   = 10.5
	Rail12VSafeMax   = 13.5
)

// PowerTooLow reports whether v is below the fail-safe window.
func PowerTooLow(v float64) bool { return v < Rail12VSafeMin }

// PowerTooHigh reports whether v is above the fail-safe window.
func PowerTooHigh(v float64) bool { return v > Rail12VSafeMax }

// PowerOK reports whether v is inside the fail-safe window.
func PowerOK(v float64) bool { return !PowerTooLow(v) && !PowerTooHigh(v) }
