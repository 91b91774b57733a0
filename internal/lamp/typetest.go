package lamp

import "time"

// DefaultTypeTestIterations bounds each phase of the type test. At one
// iteration per 10ms it outlasts the strike timeout.
const DefaultTypeTestIterations = 3000

const typeTestStep = 10 * time.Millisecond

// TypeStore persists a concluded lamp type.
type TypeStore interface {
	SaveLampType(t Type) error
}

// RunTypeTest determines the lamp type when it is not yet known and
// persists a conclusive result. A lamp that strikes on 12V alone is
// dimmable; one that needs 24V as well is non-dimmable.
//
// The test blocks the control loop for up to two strike sequences.
func (c *Controller) RunTypeTest(store TypeStore, maxIterations int) Type {
	if c.lampType != TypeUnknown {
		return c.lampType
	}
	if maxIterations <= 0 {
		maxIterations = DefaultTypeTestIterations
	}

	Logf("lamp: performing type test")
	t := c.typeTest(maxIterations)
	c.lampType = t
	Logf("lamp: type test concluded %s", t)

	if t != TypeUnknown && store != nil {
		if err := store.SaveLampType(t); err != nil {
			Logf("lamp: persist lamp type: %v", err)
		}
	}
	return t
}

func (c *Controller) typeTest(maxIterations int) Type {
	c.lampType = TypeUnknown
	c.RequestPower(PowerOff)
	c.Update()
	c.Update()
	c.clock.Sleep(100 * time.Millisecond)

	c.SetRail24V(false)
	c.clock.Sleep(100 * time.Millisecond)
	c.SetRail12V(false)
	c.clock.Sleep(100 * time.Millisecond)
	if !c.SetRail12V(true) {
		return TypeUnknown
	}
	c.clock.Sleep(time.Second)

	if c.strikes(maxIterations) {
		return TypeDimmable
	}

	c.RequestPower(PowerOff)
	c.Update()
	c.Update()
	c.clock.Sleep(100 * time.Millisecond)

	if !c.SetRail24V(true) {
		return TypeUnknown
	}
	c.clock.Sleep(time.Second)

	if c.strikes(maxIterations) {
		return TypeNonDimmable
	}
	return TypeUnknown
}

// strikes requests full power and runs the state machine until the lamp
// reaches Running (true), a failure state, or the iteration bound (false).
// Off can only be reached here through the rail fail-safe.
func (c *Controller) strikes(maxIterations int) bool {
	if !c.RequestPower(Power100) {
		return false
	}
	for i := 0; i < maxIterations; i++ {
		c.Update()
		c.clock.Sleep(typeTestStep)

		switch c.state {
		case StateRunning:
			return true
		case RestrikeCooldown(1), StateFailedOff, StateOff:
			return false
		}
	}
	return false
}
