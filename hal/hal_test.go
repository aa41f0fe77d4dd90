package hal

import (
	"errors"
	"math"
	"testing"
)

func TestClampAndSnap(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		min, max float64
		step     float64
		expected float64
	}{
		{"in range on step", 0.5, 0.0, 1.0, 0.01, 0.5},
		{"below min", -5, 0.0, 1.0, 0.01, 0.0},
		{"above max", 99, 0.0, 1.0, 0.01, 1.0},
		{"snap down", 0.512, 0.0, 1.0, 0.01, 0.51},
		{"snap half up", 0.515, 0.0, 1.0, 0.01, 0.52},
		{"snap from offset min", 0.12, 0.1, 1.0, 0.05, 0.1},
		{"snap offset mid", 0.13, 0.1, 1.0, 0.05, 0.15},
		{"zero step", 0.123, 0.0, 1.0, 0, 0.123},
		{"max not escaped by snap", 2999.9, 100, 3000, 50, 3000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ClampAndSnap(tt.value, tt.min, tt.max, tt.step)
			if math.Abs(out-tt.expected) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.expected, out)
			}

			again := ClampAndSnap(out, tt.min, tt.max, tt.step)
			if out != again {
				t.Errorf("not idempotent: %v then %v", out, again)
			}
			if out < tt.min || out > tt.max {
				t.Errorf("result %v escaped [%v, %v]", out, tt.min, tt.max)
			}
		})
	}
}

func TestValidateParam(t *testing.T) {
	tests := []struct {
		name    string
		param   string
		value   float64
		wantErr bool
	}{
		{"known finite", "P", 0.5, false},
		{"known zero", "D", 0, false},
		{"unknown name", "Bogus", 1, true},
		{"nan value", "P", math.NaN(), true},
		{"inf value", "I", math.Inf(-1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParam(tt.param, tt.value)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParsePinValue(t *testing.T) {
	tests := []struct {
		in       string
		expected float64
		wantErr  bool
	}{
		{"1234.5", 1234.5, false},
		{"  -12.25\n", -12.25, false},
		{"TRUE", 1.0, false},
		{"true", 1.0, false},
		{"ON", 1.0, false},
		{"yes", 1.0, false},
		{"FALSE", 0.0, false},
		{"off", 0.0, false},
		{"No", 0.0, false},
		{"", 0, true},
		{"   ", 0, true},
		{"NaN", 0, true},
		{"+Inf", 0, true},
		{"-inf", 0, true},
		{"bogus", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			out, err := parsePinValue(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %v", tt.in, out)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, out)
			}
		})
	}
}

func TestParseSpeed(t *testing.T) {
	tests := []struct {
		in       string
		expected float64
	}{
		{"M3 S1000", 1000},
		{"M4 S500", 500},
		{"m3 s250.5", 250.5},
		{"M3", 1000},
		{"M3 S", 1000},
		{"M3 Sabc", 1000},
		{"M3 S-50", 1000},
	}

	for _, tt := range tests {
		if out := parseSpeed(tt.in); out != tt.expected {
			t.Errorf("parseSpeed(%q): expected %v, got %v", tt.in, tt.expected, out)
		}
	}
}
