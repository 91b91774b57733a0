// Package radar decodes the mmWave presence sensor's UART report stream and
// turns it into a single best-distance estimate.
//
// Bytes arrive on a reader goroutine (Pump) and are accumulated by a Decoder.
// The control loop consumes at most one complete frame per step through
// Estimator.Update. The Decoder is a single-producer/single-consumer cell:
// the producer never blocks and never takes a lock.
package radar

import (
	"log"
	"sync/atomic"
	"time"
)

// Logf is the package diagnostic logger. Tests may replace it.
var Logf = log.Printf

// FrameSize is the length of an inbound report frame: preamble, length,
// report body and postamble.
const FrameSize = 4 + 2 + reportBodySize + 4

// IdleReset is the receive silence after which a partially accumulated frame
// is discarded.
const IdleReset = 50 * time.Millisecond

// Frame is one raw, unvalidated inbound frame.
type Frame [FrameSize]byte

// Decoder reassembles the byte stream into fixed-size frames.
//
// Feed is called only by the producer; Take only by the consumer. A frame is
// published through slot guarded by the ready flag: the producer writes slot
// only while ready is clear, the consumer reads it only while ready is set,
// so a snapshot can never be torn.
type Decoder struct {
	// Producer-owned.
	acc      Frame
	n        int
	lastByte time.Time

	// Shared.
	slot   Frame
	ready  atomic.Bool
	muted  atomic.Bool
	resync atomic.Bool

	frames  atomic.Uint64
	dropped atomic.Uint64
	ignored atomic.Uint64
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed accumulates one received byte. at is the receive time.
// When a frame completes and the previous one has not been taken yet, the
// new frame is dropped.
func (d *Decoder) Feed(b byte, at time.Time) {
	if d.muted.Load() {
		d.ignored.Add(1)
		return
	}
	if d.resync.Swap(false) || (d.n > 0 && at.Sub(d.lastByte) > IdleReset) {
		d.n = 0
	}
	d.lastByte = at

	d.acc[d.n] = b
	d.n++
	if d.n < FrameSize {
		return
	}
	d.n = 0
	d.frames.Add(1)

	if d.ready.Load() {
		d.dropped.Add(1)
		return
	}
	d.slot = d.acc
	d.ready.Store(true)
}

// FeedBytes feeds every byte of p with the same receive time.
func (d *Decoder) FeedBytes(p []byte, at time.Time) {
	for _, b := range p {
		d.Feed(b, at)
	}
}

// Take returns the pending frame, if any, and clears the ready flag.
func (d *Decoder) Take() (Frame, bool) {
	if !d.ready.Load() {
		return Frame{}, false
	}
	f := d.slot
	d.ready.Store(false)
	return f, true
}

// Pending reports whether a complete frame is waiting to be taken.
func (d *Decoder) Pending() bool {
	return d.ready.Load()
}

// Mute makes the producer discard received bytes, as during a blind
// reconfiguration when the sensor echoes acknowledgements at another rate.
func (d *Decoder) Mute() {
	d.muted.Store(true)
}

// Unmute resumes reception. Any partially accumulated frame is discarded
// before the next byte is stored.
func (d *Decoder) Unmute() {
	d.resync.Store(true)
	d.muted.Store(false)
}

// DecoderStats are the producer-side counters.
type DecoderStats struct {
	Frames  uint64 // complete frames accumulated
	Dropped uint64 // frames dropped because the previous one was still pending
	Ignored uint64 // bytes discarded while muted
}

// Stats returns the producer-side counters.
func (d *Decoder) Stats() DecoderStats {
	return DecoderStats{
		Frames:  d.frames.Load(),
		Dropped: d.dropped.Load(),
		Ignored: d.ignored.Load(),
	}
}
