// Package sense reads the fixture's supply rails through the ADC.
// The control core only consumes the scalar 12V reading.
package sense

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ADC reference and divider on the controller board.
const (
	adcVRef    = 3.3
	adcBits    = 12
	dividerTop = 100000.0
	dividerBot = 10000.0
)

// Channels maps rails to IIO voltage channel indices.
type Channels struct {
	VBus int
	V12  int
	V24  int
}

// DefaultChannels returns the board's ADC channel assignment.
func DefaultChannels() Channels {
	return Channels{VBus: 0, V12: 1, V24: 2}
}

// Readings is one sample of all rails in volts.
type Readings struct {
	VBus float64
	V12  float64
	V24  float64
}

// Convert turns a raw ADC count into the rail voltage before the divider.
func Convert(raw int) float64 {
	reading := float64(raw) * (adcVRef / float64(int(1)<<adcBits))
	return reading * (dividerTop + dividerBot) / dividerBot
}

// IIOSensor samples rails from a Linux IIO ADC device.
// Update is called once per loop; readers see the last sample.
type IIOSensor struct {
	dir string
	ch  Channels

	mu   sync.RWMutex
	last Readings
}

// NewIIOSensor opens /sys/bus/iio/devices/<device>.
func NewIIOSensor(device string, ch Channels) (*IIOSensor, error) {
	dir := filepath.Join("/sys/bus/iio/devices", device)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("open iio device: %w", err)
	}
	return &IIOSensor{dir: dir, ch: ch}, nil
}

// NewIIOSensorAt is NewIIOSensor with an explicit device directory.
func NewIIOSensorAt(dir string, ch Channels) *IIOSensor {
	return &IIOSensor{dir: dir, ch: ch}
}

// Update samples every rail. On error the previous sample is kept for the
// rails that could not be read.
func (s *IIOSensor) Update() error {
	s.mu.RLock()
	r := s.last
	s.mu.RUnlock()

	var firstErr error
	read := func(ch int, dst *float64) {
		raw, err := s.readRaw(ch)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		*dst = Convert(raw)
	}
	read(s.ch.VBus, &r.VBus)
	read(s.ch.V12, &r.V12)
	read(s.ch.V24, &r.V24)

	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
	return firstErr
}

// Update12V samples only the 12V rail. The other rails keep their last
// sample, so a missing VBus or 24V channel cannot fail the 12V read.
func (s *IIOSensor) Update12V() (float64, error) {
	raw, err := s.readRaw(s.ch.V12)
	if err != nil {
		return 0, err
	}
	v := Convert(raw)
	s.mu.Lock()
	s.last.V12 = v
	s.mu.Unlock()
	return v, nil
}

func (s *IIOSensor) readRaw(ch int) (int, error) {
	path := filepath.Join(s.dir, "in_voltage"+strconv.Itoa(ch)+"_raw")
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read adc channel %d: %w", ch, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse adc channel %d: %w", ch, err)
	}
	return v, nil
}

// Readings returns the last sample.
func (s *IIOSensor) Readings() Readings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Sense12V returns the last 12V rail sample.
func (s *IIOSensor) Sense12V() float64 {
	return s.Readings().V12
}
