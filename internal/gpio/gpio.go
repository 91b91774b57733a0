// Package gpio provides the lamp fixture's digital and PWM I/O with hardware
// abstraction. The real implementation uses the Linux GPIO character device
// and sysfs PWM. The fake implementation allows testing without hardware.
package gpio

// Pins describes where the lamp outputs and status input are wired.
type Pins struct {
	Chip        string // gpiochip device name
	EnableLamp  int    // ballast enable output
	Enable24V   int    // 24V rail enable output
	StatusLamp  int    // ballast status input, active low, pulsed when dimmed
	PWMChip     int    // sysfs pwmchip index
	PWMRail12V  int    // pwm channel soft-starting the 12V rail
	PWMDim      int    // pwm channel feeding the ballast dimming input
	PWMPeriodNs int    // period of both pwm channels
}

// DefaultPins returns the controller board wiring (BCM numbering).
func DefaultPins() Pins {
	return Pins{
		Chip:        "gpiochip0",
		EnableLamp:  22,
		Enable24V:   23,
		StatusLamp:  24,
		PWMChip:     0,
		PWMRail12V:  0,
		PWMDim:      1,
		PWMPeriodNs: 4096,
	}
}
