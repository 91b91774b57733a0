package safety

import (
	"testing"

	"github.com/sweeney/uv-lamp/internal/lamp"
)

func TestThreshold(t *testing.T) {
	p := Threshold(DefaultThresholdCm)
	tests := []struct {
		cm   int
		want lamp.PowerLevel
	}{
		{0, lamp.PowerOff},
		{110, lamp.PowerOff},
		{111, lamp.Power100},
		{600, lamp.Power100},
	}
	for _, tt := range tests {
		for _, diffused := range []bool{false, true} {
			if got := p.LevelFor(tt.cm, diffused, true); got != tt.want {
				t.Errorf("%dcm diffused=%v: got %s, want %s", tt.cm, diffused, got, tt.want)
			}
		}
	}
}

func TestBreakTable(t *testing.T) {
	tests := []struct {
		cm       int
		diffused bool
		want     lamp.PowerLevel
	}{
		{110, false, lamp.PowerOff},
		{111, false, lamp.Power20},
		{114, false, lamp.Power40},
		{116, false, lamp.Power70},
		{117, false, lamp.Power100},
		{54, true, lamp.PowerOff},
		{55, true, lamp.Power20},
		{89, true, lamp.Power40},
		{112, true, lamp.Power70},
		{113, true, lamp.Power100},
	}
	for _, tt := range tests {
		if got := ICNIRPTable.LevelFor(tt.cm, tt.diffused, false); got != tt.want {
			t.Errorf("%dcm diffused=%v: got %s, want %s", tt.cm, tt.diffused, got, tt.want)
		}
	}
}

func TestBreakTableColumns(t *testing.T) {
	table := BreakTable{
		lamp.PowerOff: {UndiffusedLowTilt: 10, UndiffusedHighTilt: 20, DiffusedLowTilt: 30, DiffusedHighTilt: 40},
	}
	tests := []struct {
		diffused, highTilt bool
		off                int
	}{
		{false, false, 10},
		{false, true, 20},
		{true, false, 30},
		{true, true, 40},
	}
	for _, tt := range tests {
		if got := table.LevelFor(tt.off, tt.diffused, tt.highTilt); got != lamp.PowerOff {
			t.Errorf("diffused=%v highTilt=%v: %dcm should be OFF, got %s", tt.diffused, tt.highTilt, tt.off, got)
		}
	}
}

func TestIsHighTilt(t *testing.T) {
	if IsHighTilt(32) {
		t.Error("32 degrees is not high tilt")
	}
	if !IsHighTilt(33) {
		t.Error("33 degrees is high tilt")
	}
}

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("")
	if err != nil || p.Name() != "threshold/110cm" {
		t.Errorf("default policy: %v, %v", p, err)
	}
	p, err = PolicyByName("icnirp")
	if err != nil || p.Name() != "break-table" {
		t.Errorf("icnirp policy: %v, %v", p, err)
	}
	if _, err := PolicyByName("bogus"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
