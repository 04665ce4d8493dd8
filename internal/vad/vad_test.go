package vad

import (
	"testing"

	"voxd-server/internal/audio"
)

func frameOf(amplitude float32) audio.Frame {
	var f audio.Frame
	for i := range f.Samples {
		if i%2 == 0 {
			f.Samples[i] = amplitude
		} else {
			f.Samples[i] = -amplitude
		}
	}
	return f
}

func TestEnergyProvider_SilenceScoresLow(t *testing.T) {
	p := NewEnergyProvider(DefaultEnergyConfig())
	score := p.Score(frameOf(0))
	if score != 0 {
		t.Fatalf("expected score 0 for silence, got %v", score)
	}
}

func TestEnergyProvider_LoudFrameScoresHigh(t *testing.T) {
	p := NewEnergyProvider(DefaultEnergyConfig())
	score := p.Score(frameOf(0.5))
	if score < 0.9 {
		t.Fatalf("expected high score for loud frame, got %v", score)
	}
}

func TestEnergyProvider_ScoreMonotonicInAmplitude(t *testing.T) {
	p := NewEnergyProvider(DefaultEnergyConfig())
	low := p.Score(frameOf(0.01))
	high := p.Score(frameOf(0.2))
	if !(low < high) {
		t.Fatalf("expected score to increase with amplitude: low=%v high=%v", low, high)
	}
}

func TestEnergyProvider_DefaultGainAppliedWhenZero(t *testing.T) {
	p := NewEnergyProvider(EnergyConfig{})
	if p.cfg.Gain != DefaultEnergyConfig().Gain {
		t.Fatalf("expected default gain, got %v", p.cfg.Gain)
	}
}
