package logic

import (
	"math"
	"testing"
)

func TestPressureConversion(t *testing.T) {
	c := PressureCurve

	tests := []struct {
		name  string
		volts float64
		want  float64
	}{
		{"at zero offset", c.ZeroOffset, 0},
		{"below zero offset", c.ZeroOffset - 0.05, 0},
		{"zero volts", 0, 0},
		{"50 kPa", c.ZeroOffset + 0.03875, 50},
		{"100 kPa", c.ZeroOffset + 2*0.03875, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Pressure(tt.volts)
			if got < 0 {
				t.Fatalf("negative pressure %v", got)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCurrentSenseConversion(t *testing.T) {
	c := CurrentSenseCurve

	if got := c.Convert(1.25); got != 0 {
		t.Errorf("at midpoint: got %v, want 0", got)
	}
	if got := c.Convert(1.25 + 0.185); math.Abs(got-1) > 1e-9 {
		t.Errorf("one unit: got %v, want 1", got)
	}
	// Current-sense values may be negative; only pressure is floored.
	if got := c.Convert(1.0); got >= 0 {
		t.Errorf("below midpoint: got %v, want negative", got)
	}
}

func TestConvertZeroSlope(t *testing.T) {
	c := CalibrationCurve{ZeroOffset: 1}
	if got := c.Convert(3); got != 0 {
		t.Errorf("got %v, want 0 for zero slope", got)
	}
}
