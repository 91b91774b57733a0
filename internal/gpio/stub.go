//go:build !linux

package gpio

import "errors"

// RealIO is not available on non-Linux platforms.
type RealIO struct{}

// NewRealIO returns an error on non-Linux platforms.
func NewRealIO(pins Pins, onPulse func()) (*RealIO, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// SetLampEnable is not implemented on non-Linux platforms.
func (r *RealIO) SetLampEnable(on bool) error {
	return errors.New("gpio: not supported")
}

// SetRail24V is not implemented on non-Linux platforms.
func (r *RealIO) SetRail24V(on bool) error {
	return errors.New("gpio: not supported")
}

// SetRail12VDuty is not implemented on non-Linux platforms.
func (r *RealIO) SetRail12VDuty(level, top uint32) error {
	return errors.New("gpio: not supported")
}

// SetDimDuty is not implemented on non-Linux platforms.
func (r *RealIO) SetDimDuty(level, top uint32) error {
	return errors.New("gpio: not supported")
}

// StatusEnergized is not implemented on non-Linux platforms.
func (r *RealIO) StatusEnergized() (bool, error) {
	return false, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealIO) Close() error {
	return nil
}
