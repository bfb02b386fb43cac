package audio

import (
	"math"
	"testing"
)

func TestEncodePCM16Clamping(t *testing.T) {
	tests := []struct {
		name     string
		samples  []float32
		expected []int16
	}{
		{
			name:     "silence",
			samples:  []float32{0, 0},
			expected: []int16{0, 0},
		},
		{
			name:     "full scale",
			samples:  []float32{1, -1},
			expected: []int16{32767, -32767},
		},
		{
			name:     "clamped overdrive",
			samples:  []float32{1.5, -2.0},
			expected: []int16{32767, -32767},
		},
		{
			name:     "half amplitude",
			samples:  []float32{0.5, -0.5},
			expected: []int16{16383, -16383},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := EncodePCM16(tt.samples)
			if len(pcm) != len(tt.expected)*2 {
				t.Fatalf("expected %d bytes, got %d", len(tt.expected)*2, len(pcm))
			}
			for i, want := range tt.expected {
				got := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
				if got != want {
					t.Errorf("sample %d: expected %d, got %d", i, want, got)
				}
			}
		})
	}
}

func TestDecodePCM16OddLength(t *testing.T) {
	// Trailing byte without a pair is dropped.
	out := DecodePCM16([]byte{0x00, 0x40, 0x7F})
	if len(out) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(out))
	}
	if math.Abs(float64(out[0])-0.5) > 0.001 {
		t.Errorf("expected 0.5, got %f", out[0])
	}
}

func TestCodecRoundTrip(t *testing.T) {
	samples := make([]float32, 4096)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 16000))
	}

	decoded := DecodePCM16(EncodePCM16(samples))
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}

	const tolerance = 1.0 / 32768.0
	for i := range samples {
		if math.Abs(float64(decoded[i]-samples[i])) > tolerance {
			t.Fatalf("sample %d: round-trip error %f exceeds %f", i, decoded[i]-samples[i], tolerance)
		}
	}
}
