//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealIO drives the lamp from actual hardware using the Linux GPIO character
// device for digital lines and sysfs PWM for the soft-start and dimming outputs.
type RealIO struct {
	chip    *gpiocdev.Chip
	enable  *gpiocdev.Line
	en24V   *gpiocdev.Line
	status  *gpiocdev.Line
	rail12V *SysfsPWM
	dim     *SysfsPWM
}

// NewRealIO requests the lamp lines and exports the PWM channels.
// onPulse is called from the line event goroutine on every rising edge of the
// status line; it must not block.
func NewRealIO(pins Pins, onPulse func()) (*RealIO, error) {
	chip, err := gpiocdev.NewChip(pins.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	r := &RealIO{chip: chip}

	// Outputs start inactive so the ballast and 24V rail stay off through boot.
	r.enable, err = chip.RequestLine(pins.EnableLamp, gpiocdev.AsOutput(0))
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request enable pin %d: %w", pins.EnableLamp, err)
	}
	r.en24V, err = chip.RequestLine(pins.Enable24V, gpiocdev.AsOutput(0))
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request 24V pin %d: %w", pins.Enable24V, err)
	}

	r.status, err = chip.RequestLine(pins.StatusLamp,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
			if onPulse != nil {
				onPulse()
			}
		}))
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request status pin %d: %w", pins.StatusLamp, err)
	}

	r.rail12V, err = OpenSysfsPWM(pins.PWMChip, pins.PWMRail12V, pins.PWMPeriodNs)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("open 12V pwm: %w", err)
	}
	r.dim, err = OpenSysfsPWM(pins.PWMChip, pins.PWMDim, pins.PWMPeriodNs)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("open dim pwm: %w", err)
	}

	return r, nil
}

// SetLampEnable drives the ballast enable output.
func (r *RealIO) SetLampEnable(on bool) error {
	if err := r.enable.SetValue(boolToInt(on)); err != nil {
		return fmt.Errorf("set enable: %w", err)
	}
	return nil
}

// SetRail24V drives the 24V rail enable output.
func (r *RealIO) SetRail24V(on bool) error {
	if err := r.en24V.SetValue(boolToInt(on)); err != nil {
		return fmt.Errorf("set 24V: %w", err)
	}
	return nil
}

// SetRail12VDuty sets the 12V soft-start duty to level/top.
func (r *RealIO) SetRail12VDuty(level, top uint32) error {
	return r.rail12V.SetDuty(level, top)
}

// SetDimDuty sets the dimming duty to level/top.
func (r *RealIO) SetDimDuty(level, top uint32) error {
	return r.dim.SetDuty(level, top)
}

// StatusEnergized reports the lamp status line. The line is active low:
// raw 0 = lamp lit.
func (r *RealIO) StatusEnergized() (bool, error) {
	v, err := r.status.Value()
	if err != nil {
		return false, fmt.Errorf("read status pin: %w", err)
	}
	return v == 0, nil
}

// Close de-energizes the outputs and releases all resources.
func (r *RealIO) Close() error {
	var errs []error

	if r.enable != nil {
		if err := r.enable.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear enable: %w", err))
		}
		if err := r.enable.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close enable: %w", err))
		}
	}
	if r.en24V != nil {
		if err := r.en24V.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear 24V: %w", err))
		}
		if err := r.en24V.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close 24V: %w", err))
		}
	}
	if r.status != nil {
		if err := r.status.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close status: %w", err))
		}
	}
	for _, p := range []*SysfsPWM{r.dim, r.rail12V} {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
