package audio

import (
	"math"
	"testing"
	"time"
)

func TestRMSBytes(t *testing.T) {
	tests := []struct {
		name     string
		samples  []int16
		expected float64
	}{
		{
			name:     "silence",
			samples:  []int16{0, 0, 0, 0},
			expected: 0.0,
		},
		{
			name:     "max amplitude",
			samples:  []int16{32767, 32767, 32767, 32767},
			expected: 1.0,
		},
		{
			name:     "half amplitude",
			samples:  []int16{16384, 16384, 16384, 16384},
			expected: 0.5,
		},
		{
			name:     "mixed signal",
			samples:  []int16{16384, -16384, 16384, -16384},
			expected: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := make([]byte, len(tt.samples)*2)
			for i, s := range tt.samples {
				pcm[i*2] = byte(s & 0xFF)
				pcm[i*2+1] = byte((s >> 8) & 0xFF)
			}

			result := RMSBytes(pcm)
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("expected RMS %.3f, got %.3f", tt.expected, result)
			}
		})
	}
}

func TestRMSMatchesRMSBytes(t *testing.T) {
	samples := []float32{0.25, -0.25, 0.5, -0.5}
	pcm := EncodePCM16(samples)

	a := RMS(samples)
	b := RMSBytes(pcm)
	if math.Abs(a-b) > 0.001 {
		t.Errorf("RMS %.4f and RMSBytes %.4f diverge", a, b)
	}
}

func TestPeak(t *testing.T) {
	tests := []struct {
		name     string
		samples  []int16
		expected float64
	}{
		{
			name:     "silence",
			samples:  []int16{0, 0, 0, 0},
			expected: 0.0,
		},
		{
			name:     "positive peak",
			samples:  []int16{0, 16384, 0, 0},
			expected: 0.5,
		},
		{
			name:     "negative peak",
			samples:  []int16{0, -32768, 0, 0},
			expected: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := make([]byte, len(tt.samples)*2)
			for i, s := range tt.samples {
				pcm[i*2] = byte(s & 0xFF)
				pcm[i*2+1] = byte((s >> 8) & 0xFF)
			}

			result := Peak(pcm)
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("expected peak %.3f, got %.3f", tt.expected, result)
			}
		})
	}
}

func TestConfigDuration(t *testing.T) {
	cfg := PlaybackConfig()
	if cfg.BytesPerSecond() != 48000 {
		t.Fatalf("expected 48000 bytes/s, got %d", cfg.BytesPerSecond())
	}
	if d := cfg.Duration(48000); d != time.Second {
		t.Errorf("expected 1s, got %v", d)
	}
	if d := cfg.Duration(24000); d != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", d)
	}
	if n := cfg.BytesForDuration(250 * time.Millisecond); n != 12000 {
		t.Errorf("expected 12000 bytes, got %d", n)
	}

	capture := CaptureConfig()
	// A 4096-sample frame at 16kHz is 256ms.
	if d := capture.Duration(4096 * 2); d != 256*time.Millisecond {
		t.Errorf("expected 256ms, got %v", d)
	}
}
