// Package tilt reports how far the fixture is pointing away from straight
// down, derived from the accelerometer.
package tilt

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Sensor reports the pointing-down angle in whole degrees.
type Sensor interface {
	PointingDownAngle() int
}

// Fixed is a Sensor with a constant angle, used when no accelerometer is
// fitted or configured.
type Fixed int

// PointingDownAngle returns the fixed angle.
func (f Fixed) PointingDownAngle() int { return int(f) }

// AngleFromAccel returns the angle in degrees between the acceleration
// vector and the fixture's x axis, truncated. It returns false for a zero
// vector.
func AngleFromAccel(x, y, z float64) (int, bool) {
	mag := math.Sqrt(x*x + y*y + z*z)
	if mag == 0 {
		return 0, false
	}
	c := x / mag
	// Rounding can push the cosine just outside [-1, 1].
	c = math.Max(-1, math.Min(1, c))
	return int(math.Acos(c) * 180 / math.Pi), true
}

// IIOAccel reads an accelerometer through the Linux IIO sysfs interface.
// Update is called once per loop; readers see the last angle.
type IIOAccel struct {
	dir string

	mu    sync.RWMutex
	angle int
}

// NewIIOAccel opens /sys/bus/iio/devices/<device>.
func NewIIOAccel(device string) (*IIOAccel, error) {
	dir := filepath.Join("/sys/bus/iio/devices", device)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("open iio accelerometer: %w", err)
	}
	return &IIOAccel{dir: dir}, nil
}

// NewIIOAccelAt is NewIIOAccel with an explicit device directory.
func NewIIOAccelAt(dir string) *IIOAccel {
	return &IIOAccel{dir: dir}
}

// Update samples the three axes. The previous angle is kept on error.
func (a *IIOAccel) Update() error {
	var v [3]float64
	for i, axis := range []string{"x", "y", "z"} {
		raw, err := a.readRaw(axis)
		if err != nil {
			return err
		}
		v[i] = float64(raw)
	}

	angle, ok := AngleFromAccel(v[0], v[1], v[2])
	if !ok {
		return errors.New("accelerometer reads zero on every axis")
	}

	a.mu.Lock()
	a.angle = angle
	a.mu.Unlock()
	return nil
}

func (a *IIOAccel) readRaw(axis string) (int, error) {
	b, err := os.ReadFile(filepath.Join(a.dir, "in_accel_"+axis+"_raw"))
	if err != nil {
		return 0, fmt.Errorf("read accel %s: %w", axis, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse accel %s: %w", axis, err)
	}
	return v, nil
}

// PointingDownAngle returns the last sampled angle.
func (a *IIOAccel) PointingDownAngle() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.angle
}
