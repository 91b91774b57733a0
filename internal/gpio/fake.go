package gpio

// FakeIO is a test double that records output writes and returns a scripted
// status line.
type FakeIO struct {
	// Output state as last written.
	LampEnabled bool
	Rail24V     bool
	Rail12V     uint32
	Rail12VTop  uint32
	Dim         uint32
	DimTop      uint32

	// Rail12VHistory records every soft-start level written, in order.
	Rail12VHistory []uint32

	// EnableHistory records every lamp enable write, in order.
	EnableHistory []bool

	// Status is returned by StatusEnergized unless StatusFunc is set.
	Status bool

	// StatusFunc, if set, computes the status line from the current outputs.
	StatusFunc func(f *FakeIO) bool

	// StatusError, if set, will be returned by StatusEnergized.
	StatusError error

	// WriteError, if set, will be returned by every output write.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeIO creates a FakeIO with all outputs off.
func NewFakeIO() *FakeIO {
	return &FakeIO{}
}

// SetLampEnable records the enable output.
func (f *FakeIO) SetLampEnable(on bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.LampEnabled = on
	f.EnableHistory = append(f.EnableHistory, on)
	return nil
}

// SetRail24V records the 24V enable output.
func (f *FakeIO) SetRail24V(on bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Rail24V = on
	return nil
}

// SetRail12VDuty records the soft-start PWM level.
func (f *FakeIO) SetRail12VDuty(level, top uint32) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Rail12V = level
	f.Rail12VTop = top
	f.Rail12VHistory = append(f.Rail12VHistory, level)
	return nil
}

// SetDimDuty records the dimming PWM level.
func (f *FakeIO) SetDimDuty(level, top uint32) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Dim = level
	f.DimTop = top
	return nil
}

// StatusEnergized returns the scripted status line.
func (f *FakeIO) StatusEnergized() (bool, error) {
	if f.StatusError != nil {
		return false, f.StatusError
	}
	if f.StatusFunc != nil {
		return f.StatusFunc(f), nil
	}
	return f.Status, nil
}

// Rail12VOn reports whether the soft-start output is at full duty.
func (f *FakeIO) Rail12VOn() bool {
	return f.Rail12VTop > 0 && f.Rail12V >= f.Rail12VTop
}

// Close marks the fake as closed.
func (f *FakeIO) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded history and errors.
func (f *FakeIO) Reset() {
	f.Rail12VHistory = nil
	f.EnableHistory = nil
	f.StatusError = nil
	f.WriteError = nil
	f.Closed = false
}
