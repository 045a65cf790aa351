package device

import (
	"math"
	"testing"
)

func TestEncodeScaled(t *testing.T) {
	tests := []struct {
		name  string
		value float32
		want  uint16
	}{
		{"zero", 0, 0},
		{"initial pv", 22.1, 221},
		{"initial sp", 50.0, 500},
		{"rounds half up", 12.35, 124},
		{"rounds down", 12.34, 123},
		{"max representable", 6553.5, 65535},
		{"wraps above max", 6553.6, 0},
		{"negative wraps", -1.0, 65526},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeScaled(tt.value); got != tt.want {
				t.Errorf("EncodeScaled(%v) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestDecodeScaled(t *testing.T) {
	tests := []struct {
		word uint16
		want float64
	}{
		{0, 0},
		{650, 65.0},
		{221, 22.1},
		{65535, 6553.5},
	}

	for _, tt := range tests {
		if got := DecodeScaled(tt.word); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("DecodeScaled(%d) = %v, want %v", tt.word, got, tt.want)
		}
	}
}

func TestScaledWord(t *testing.T) {
	tests := []struct {
		name   string
		value  float64
		want   uint16
		wantOK bool
	}{
		{"whole", 65, 650, true},
		{"half step in float64", 0.45, 5, true},
		{"half step above a whole", 72.45, 725, true},
		{"max", MaxScaled, 65535, true},
		{"zero", 0, 0, true},
		{"negative", -0.01, 0, false},
		{"above max", 6553.6, 0, false},
		{"nan", math.NaN(), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ScaledWord(tt.value)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ScaledWord(%v) = %d, %v, want %d, %v", tt.value, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// Any value in the representable range survives a scaled round trip to
// within half a scale step.
func TestScaledRoundTrip(t *testing.T) {
	for v := float32(0); v <= 6553.5; v += 0.37 {
		got := DecodeScaled(EncodeScaled(v))
		if math.Abs(got-float64(v)) > 0.05+1e-4 {
			t.Fatalf("round trip of %v = %v", v, got)
		}
	}
}

func TestSplitFloat32_KnownPattern(t *testing.T) {
	hi, lo := SplitFloat32(22.1)
	if hi != 0x41B0 || lo != 0xCCCD {
		t.Errorf("SplitFloat32(22.1) = %#04x %#04x, want 0x41b0 0xcccd", hi, lo)
	}
}

func TestFloat32RoundTrip_BitIdentical(t *testing.T) {
	values := []float32{
		0, -0, 22.1, 50, -273.15, 1e-38, 3.4e38,
		float32(math.Inf(1)), float32(math.Inf(-1)),
		math.Float32frombits(0x7FC00001), // NaN with payload
		math.Float32frombits(0x00000001), // smallest subnormal
	}

	for _, v := range values {
		got := JoinFloat32(SplitFloat32(v))
		if math.Float32bits(got) != math.Float32bits(v) {
			t.Errorf("JoinFloat32(SplitFloat32(%#08x)) = %#08x",
				math.Float32bits(v), math.Float32bits(got))
		}
	}
}
