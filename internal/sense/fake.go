package sense

// Fake is a test double with settable rail readings.
type Fake struct {
	R Readings

	// UpdateError, if set, will be returned by Update.
	UpdateError error

	// Updates counts calls to Update.
	Updates int
}

// NewFake returns a Fake reporting a healthy 12V rail.
func NewFake() *Fake {
	return &Fake{R: Readings{VBus: 12, V12: 12, V24: 24}}
}

// Update counts the call.
func (f *Fake) Update() error {
	f.Updates++
	return f.UpdateError
}

// Readings returns the scripted readings.
func (f *Fake) Readings() Readings { return f.R }

// Sense12V returns the scripted 12V reading.
func (f *Fake) Sense12V() float64 { return f.R.V12 }
