package radar

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Inbound frame delimiters, read as little-endian 32-bit values.
const (
	Preamble  uint32 = 0xf1f2f3f4
	Postamble uint32 = 0xf5f6f7f8
)

const reportBodySize = 13

var (
	ErrPreamble  = errors.New("bad preamble")
	ErrPostamble = errors.New("bad postamble")
)

// TargetState is the sensor's presence classification.
type TargetState uint8

const (
	TargetNone TargetState = iota
	TargetMoving
	TargetStationary
	TargetBoth
)

func (s TargetState) String() string {
	switch s {
	case TargetNone:
		return "none"
	case TargetMoving:
		return "moving"
	case TargetStationary:
		return "stationary"
	case TargetBoth:
		return "moving+stationary"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Report is the body of one validated inbound frame.
type Report struct {
	Type                 uint8
	Head                 uint8
	TargetState          TargetState
	MovingDistanceCm     uint16
	MovingEnergy         uint8
	StationaryDistanceCm uint16
	StationaryEnergy     uint8
	DetectionDistanceCm  uint16
	End                  uint8
	Check                uint8
}

// ParseFrame validates the frame delimiters and decodes the report body.
// The length field is not checked.
func ParseFrame(f Frame) (Report, error) {
	if pre := binary.LittleEndian.Uint32(f[0:4]); pre != Preamble {
		return Report{}, fmt.Errorf("%w: %08x", ErrPreamble, pre)
	}
	if post := binary.LittleEndian.Uint32(f[FrameSize-4:]); post != Postamble {
		return Report{}, fmt.Errorf("%w: %08x", ErrPostamble, post)
	}

	b := f[6 : 6+reportBodySize]
	return Report{
		Type:                 b[0],
		Head:                 b[1],
		TargetState:          TargetState(b[2]),
		MovingDistanceCm:     binary.LittleEndian.Uint16(b[3:5]),
		MovingEnergy:         b[5],
		StationaryDistanceCm: binary.LittleEndian.Uint16(b[6:8]),
		StationaryEnergy:     b[8],
		DetectionDistanceCm:  binary.LittleEndian.Uint16(b[9:11]),
		End:                  b[11],
		Check:                b[12],
	}, nil
}

// EncodeFrame builds the wire frame the sensor would send for r.
func EncodeFrame(r Report) Frame {
	var f Frame
	binary.LittleEndian.PutUint32(f[0:4], Preamble)
	binary.LittleEndian.PutUint16(f[4:6], reportBodySize)

	b := f[6 : 6+reportBodySize]
	b[0] = r.Type
	b[1] = r.Head
	b[2] = uint8(r.TargetState)
	binary.LittleEndian.PutUint16(b[3:5], r.MovingDistanceCm)
	b[5] = r.MovingEnergy
	binary.LittleEndian.PutUint16(b[6:8], r.StationaryDistanceCm)
	b[8] = r.StationaryEnergy
	binary.LittleEndian.PutUint16(b[9:11], r.DetectionDistanceCm)
	b[11] = r.End
	b[12] = r.Check

	binary.LittleEndian.PutUint32(f[FrameSize-4:], Postamble)
	return f
}
