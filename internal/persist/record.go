// Package persist stores the fixture's small configuration record: the
// factory-determined lamp type and the user's power, radar and dim
// preferences. Writes happen only when a field actually changes.
package persist

import (
	"encoding/binary"
	"fmt"

	"github.com/sweeney/uv-lamp/internal/lamp"
)

// Magic guards a valid record.
const Magic uint32 = 0xb8870200

// RecordSize is the encoded record length.
const RecordSize = 8

// Record is the persisted configuration.
type Record struct {
	PowerOn  bool
	RadarOn  bool
	DimIndex uint8 // 0..3 => 20/40/70/100%
	LampType lamp.Type
}

// DefaultRecord is used when no valid record is stored: lamp on at full
// power with the radar interlock enabled, type not yet tested.
func DefaultRecord() Record {
	return Record{
		PowerOn:  true,
		RadarOn:  true,
		DimIndex: 3,
		LampType: lamp.TypeUnknown,
	}
}

// Level returns the persisted dim level.
func (r Record) Level() lamp.PowerLevel {
	return lamp.LevelForDimIndex(r.DimIndex)
}

// MarshalBinary encodes r as magic, power_on, radar_on, dim_index,
// factory_lamp_type.
func (r Record) MarshalBinary() ([]byte, error) {
	b := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(b[0:4], Magic)
	b[4] = boolByte(r.PowerOn)
	b[5] = boolByte(r.RadarOn)
	b[6] = r.DimIndex
	b[7] = uint8(r.LampType)
	return b, nil
}

// UnmarshalBinary decodes b into r.
func (r *Record) UnmarshalBinary(b []byte) error {
	if len(b) < RecordSize {
		return fmt.Errorf("record too short: %d bytes", len(b))
	}
	if m := binary.LittleEndian.Uint32(b[0:4]); m != Magic {
		return fmt.Errorf("bad record magic %08x", m)
	}
	*r = Record{
		PowerOn:  b[4] != 0,
		RadarOn:  b[5] != 0,
		DimIndex: b[6],
		LampType: lamp.Type(b[7]),
	}
	if r.DimIndex > 3 {
		r.DimIndex = 3
	}
	if r.LampType > lamp.TypeNonDimmable {
		r.LampType = lamp.TypeUnknown
	}
	return nil
}

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}
