package persist

import (
	"fmt"
	"log"

	"github.com/sweeney/uv-lamp/internal/lamp"
)

// Manager holds the working copy of the record and writes it back only
// when a tracked field has changed. It is owned by the control loop.
type Manager struct {
	store Store
	rec   Record
	dirty bool
}

// Open reads the record from store. A missing or invalid record is
// replaced by DefaultRecord and marked dirty so it is written on the next
// WriteIfDirty.
func Open(store Store) (*Manager, error) {
	b, err := store.Load()
	if err != nil {
		return nil, err
	}

	m := &Manager{store: store}
	if b == nil {
		log.Printf("persist: no record stored, using defaults")
		m.rec = DefaultRecord()
		m.dirty = true
		return m, nil
	}
	if err := m.rec.UnmarshalBinary(b); err != nil {
		log.Printf("persist: %v, using defaults", err)
		m.rec = DefaultRecord()
		m.dirty = true
	}
	return m, nil
}

// Record returns the working copy.
func (m *Manager) Record() Record { return m.rec }

// Dirty reports whether the working copy differs from the stored record.
func (m *Manager) Dirty() bool { return m.dirty }

// SetPowerOn updates the power-on default.
func (m *Manager) SetPowerOn(on bool) {
	if m.rec.PowerOn != on {
		m.rec.PowerOn = on
		m.dirty = true
	}
}

// SetRadarOn updates the radar-enabled default.
func (m *Manager) SetRadarOn(on bool) {
	if m.rec.RadarOn != on {
		m.rec.RadarOn = on
		m.dirty = true
	}
}

// SetDimIndex updates the dim default. Indices above 3 are rejected.
func (m *Manager) SetDimIndex(idx uint8) bool {
	if idx > 3 {
		return false
	}
	if m.rec.DimIndex != idx {
		m.rec.DimIndex = idx
		m.dirty = true
	}
	return true
}

// SetLevel records an energized level as the dim default.
func (m *Manager) SetLevel(l lamp.PowerLevel) bool {
	idx, ok := lamp.DimIndexForLevel(l)
	if !ok {
		return false
	}
	return m.SetDimIndex(idx)
}

// SetLampType updates the factory lamp type.
func (m *Manager) SetLampType(t lamp.Type) {
	if m.rec.LampType != t {
		m.rec.LampType = t
		m.dirty = true
	}
}

// WriteIfDirty saves the record when it has changed since the last write.
func (m *Manager) WriteIfDirty() error {
	if !m.dirty {
		return nil
	}
	b, err := m.rec.MarshalBinary()
	if err != nil {
		return err
	}
	if err := m.store.Save(b); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	m.dirty = false
	return nil
}

// SaveLampType records a concluded type test and writes it immediately.
func (m *Manager) SaveLampType(t lamp.Type) error {
	m.SetLampType(t)
	return m.WriteIfDirty()
}
