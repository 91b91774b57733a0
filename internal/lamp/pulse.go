package lamp

import "sync/atomic"

// PulseCounter counts ballast status edges. Inc is called from the edge
// event handler; Latch is called from the control loop. Neither blocks.
type PulseCounter struct {
	n atomic.Uint32
}

// NewPulseCounter returns a zeroed counter.
func NewPulseCounter() *PulseCounter {
	return &PulseCounter{}
}

// Inc records one edge.
func (p *PulseCounter) Inc() {
	p.n.Add(1)
}

// Latch returns the edges counted since the previous Latch and resets the count.
func (p *PulseCounter) Latch() int {
	return int(p.n.Swap(0))
}
