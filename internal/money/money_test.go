package money

import (
	"errors"
	"testing"
)

func TestRound(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"already two places", 10.5, 10.5},
		{"half up", 1.005, 1.01},
		{"down", 2.344, 2.34},
		{"negative", -20.005, -20.01},
		{"third of amount", 100.0 / 3, 33.33},
		{"zero", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Round(tt.in); got != tt.want {
				t.Errorf("Round(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestToMinor(t *testing.T) {
	tests := []struct {
		in      float64
		want    int64
		wantErr error
	}{
		{499.99, 49999, nil},
		{0.29, 29, nil}, // int(0.29*100) would truncate to 28
		{1200, 120000, nil},
		{-1, 0, ErrNegativeAmount},
	}
	for _, tt := range tests {
		got, err := ToMinor(tt.in)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ToMinor(%v) error = %v, want %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ToMinor(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMultiplyAndFormat(t *testing.T) {
	if got := Multiply(19.99, 3); got != 59.97 {
		t.Errorf("Multiply(19.99, 3) = %v, want 59.97", got)
	}
	if got := FromMinor(49999); got != 499.99 {
		t.Errorf("FromMinor(49999) = %v, want 499.99", got)
	}
	if got := Format(500); got != "500" {
		t.Errorf("Format(500) = %q, want 500", got)
	}
	if got := Format(499.5); got != "499.5" {
		t.Errorf("Format(499.5) = %q, want 499.5", got)
	}
}
