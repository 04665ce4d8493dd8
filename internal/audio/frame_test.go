package audio

import (
	"math"
	"testing"
)

func TestEncodeDecodeFloat32LE_RoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1, 0.25}
	data := EncodeFloat32LE(samples)
	got := DecodeFloat32LE(data)

	if len(got) != len(samples) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d: got %v want %v", i, got[i], samples[i])
		}
	}
}

func TestEncodePCM16LE_ClipsOutOfRange(t *testing.T) {
	data := EncodePCM16LE([]float32{2, -2, 0})
	samples := DecodePCM16LE(data)

	if math.Abs(float64(samples[0])-1) > 1e-3 {
		t.Errorf("expected clip to ~1, got %v", samples[0])
	}
	if samples[1] > -0.99 {
		t.Errorf("expected clip to ~-1, got %v", samples[1])
	}
}

func TestFramer_PushAccumulatesPartialFrames(t *testing.T) {
	framer := NewFramer()

	half := make([]float32, FrameSamples/2)
	frames := framer.Push(EncodeFloat32LE(half))
	if len(frames) != 0 {
		t.Fatalf("expected no complete frames yet, got %d", len(frames))
	}
	if framer.Pending() != FrameSamples/2 {
		t.Fatalf("expected %d pending samples, got %d", FrameSamples/2, framer.Pending())
	}

	rest := make([]float32, FrameSamples/2)
	frames = framer.Push(EncodeFloat32LE(rest))
	if len(frames) != 1 {
		t.Fatalf("expected exactly one complete frame, got %d", len(frames))
	}
	if frames[0].Sequence != 0 {
		t.Fatalf("expected sequence 0, got %d", frames[0].Sequence)
	}
	if framer.Pending() != 0 {
		t.Fatalf("expected no pending samples, got %d", framer.Pending())
	}
}

func TestFramer_MultipleFramesAndSequenceIncrement(t *testing.T) {
	framer := NewFramer()
	samples := make([]float32, FrameSamples*3+10)
	frames := framer.Push(EncodeFloat32LE(samples))

	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	for i, fr := range frames {
		if fr.Sequence != uint64(i) {
			t.Errorf("frame %d: expected sequence %d, got %d", i, i, fr.Sequence)
		}
	}
	if framer.Pending() != 10 {
		t.Fatalf("expected 10 pending samples, got %d", framer.Pending())
	}
}
