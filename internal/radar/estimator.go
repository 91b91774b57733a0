package radar

import (
	"time"

	"github.com/sweeney/uv-lamp/internal/timeutil"
)

const (
	// NoDistance is returned when no fresh distance is available.
	NoDistance = -1

	// SentinelFloorCm is the value the sensor reports when idle. Fields at
	// or below it are not distances.
	SentinelFloorCm = 30

	// StaleAfter is how long after the last valid report the distance is
	// still trusted.
	StaleAfter = 5 * time.Second

	// ReinitAfter is the report silence, and the minimum spacing between
	// attempts, that triggers a blind reconfiguration.
	ReinitAfter = 3 * time.Second

	// ReinitHighBaud is the rate tried first, in case the sensor was left
	// at its factory rate.
	ReinitHighBaud = 256000

	commandSettle = 50 * time.Millisecond
)

// Estimator turns validated reports into a best distance with staleness
// tracking, and re-initializes a silent sensor.
type Estimator struct {
	dec   *Decoder
	port  Port
	clock timeutil.Clock

	lastReport   Report
	lastReportAt time.Time
	haveReport   bool

	lastGood   int
	lastGoodAt time.Time

	lastReinit time.Time
	reinits    int
	errors     uint64
	distance   int
}

// NewEstimator creates an estimator reading frames from dec. port is used
// only for reconfiguration and may be nil when no sensor is fitted.
func NewEstimator(dec *Decoder, port Port, clock timeutil.Clock) *Estimator {
	now := clock.Now()
	return &Estimator{
		dec:          dec,
		port:         port,
		clock:        clock,
		lastReportAt: now,
		lastGood:     NoDistance,
		lastReinit:   now,
		distance:     NoDistance,
	}
}

// Update runs one control-loop step: the re-init watchdog, consumption of
// at most one pending frame, and the staleness check. rail12V reports
// whether the sensor is powered.
func (e *Estimator) Update(rail12V bool) {
	now := e.clock.Now()
	if rail12V && now.Sub(e.lastReportAt) >= ReinitAfter && now.Sub(e.lastReinit) >= ReinitAfter {
		e.Reinit()
		now = e.clock.Now()
		e.lastReinit = now
	}

	if f, ok := e.dec.Take(); ok {
		e.consume(f, now)
	}

	if e.haveReport && now.Sub(e.lastReportAt) < StaleAfter {
		e.distance = e.lastGood
	} else {
		e.distance = NoDistance
	}
}

func (e *Estimator) consume(f Frame, now time.Time) {
	r, err := ParseFrame(f)
	if err != nil {
		e.errors++
		Logf("radar: ill-formed frame: %v", err)
		return
	}

	e.lastReport = r
	e.lastReportAt = now
	e.haveReport = true

	if d := BestDistance(r); d != NoDistance {
		e.lastGood = d
		e.lastGoodAt = now
	}
}

// BestDistance returns the nearer of the moving and stationary distances
// that exceed the sentinel floor, or NoDistance.
func BestDistance(r Report) int {
	best := NoDistance
	for _, d := range []uint16{r.MovingDistanceCm, r.StationaryDistanceCm} {
		if d <= SentinelFloorCm {
			continue
		}
		if best == NoDistance || int(d) < best {
			best = int(d)
		}
	}
	return best
}

// Reinit blindly reconfigures the sensor for 9600 baud reporting: first
// assuming it listens at ReinitHighBaud, then at DefaultBaudRate. Nothing
// is acknowledged, so success shows only as reports resuming. Reception is
// muted meanwhile. The sequence blocks for a few hundred milliseconds.
func (e *Estimator) Reinit() {
	if e.port == nil {
		return
	}
	Logf("radar: no reports for %v, reinitializing", e.clock.Now().Sub(e.lastReportAt).Round(time.Millisecond))

	for _, baud := range []int{ReinitHighBaud, DefaultBaudRate} {
		e.reinitAt(baud)
	}
	e.reinits++
}

func (e *Estimator) reinitAt(baud int) {
	if err := e.port.SetBaudRate(baud); err != nil {
		Logf("radar: %v", err)
	}

	e.dec.Mute()
	defer e.dec.Unmute()

	e.send(EnterConfigCommand())
	e.clock.Sleep(commandSettle)
	e.send(FactoryResetCommand())
	e.clock.Sleep(commandSettle)
	e.send(SetBaudRateCommand(BaudIndex9600))
	e.clock.Sleep(commandSettle)
	e.send(RestartCommand())
	if err := e.port.ResetInputBuffer(); err != nil {
		Logf("radar: flush input: %v", err)
	}
	e.clock.Sleep(commandSettle)
}

func (e *Estimator) send(cmd []byte) {
	if _, err := e.port.Write(cmd); err != nil {
		Logf("radar: write command: %v", err)
	}
}

// Distance returns the best distance in cm, or NoDistance when the last
// valid report is older than StaleAfter.
func (e *Estimator) Distance() int { return e.distance }

// LastReport returns the most recent valid report and when it arrived.
func (e *Estimator) LastReport() (Report, time.Time, bool) {
	return e.lastReport, e.lastReportAt, e.haveReport
}

// Stats are the estimator's diagnostic counters.
type Stats struct {
	DecoderStats
	Errors  uint64 // frames rejected by validation
	Reinits int    // reconfiguration sequences run
}

// Stats returns the diagnostic counters.
func (e *Estimator) Stats() Stats {
	return Stats{
		DecoderStats: e.dec.Stats(),
		Errors:       e.errors,
		Reinits:      e.reinits,
	}
}
