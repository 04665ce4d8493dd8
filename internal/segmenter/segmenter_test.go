package segmenter

import (
	"testing"

	"voxd-server/internal/audio"
)

// scriptedProvider returns a fixed score per call in sequence, repeating
// the last value once exhausted.
type scriptedProvider struct {
	scores []float64
	pos    int
}

func (p *scriptedProvider) Score(audio.Frame) float64 {
	if p.pos >= len(p.scores) {
		return p.scores[len(p.scores)-1]
	}
	v := p.scores[p.pos]
	p.pos++
	return v
}

func (p *scriptedProvider) Reset() {}

func testConfig() Config {
	return Config{
		SpeechThreshold:       0.45,
		SilenceFramesRequired: 3,
		PrerollFrames:         2,
		MinUtteranceFrames:    2,
		MaxUtteranceFrames:    100,
	}
}

func TestSegmenter_SilenceOnlyEmitsNothing(t *testing.T) {
	p := &scriptedProvider{scores: []float64{0, 0, 0, 0, 0}}
	seg := New(testConfig(), p)

	for i := 0; i < 5; i++ {
		u, done := seg.Push(audio.Frame{})
		if done {
			t.Fatalf("unexpected utterance emitted on silence-only input: %+v", u)
		}
	}
	if seg.State() != StateIdle {
		t.Fatalf("expected idle state, got %v", seg.State())
	}
}

func TestSegmenter_SpeechThenSilenceEmitsUtteranceWithPreroll(t *testing.T) {
	scores := []float64{0, 0, 1, 1, 1, 0, 0, 0}
	p := &scriptedProvider{scores: scores}
	seg := New(testConfig(), p)

	var got *Utterance
	for range scores {
		u, done := seg.Push(audio.Frame{})
		if done {
			got = u
			break
		}
	}

	if got == nil {
		t.Fatal("expected an utterance to be emitted")
	}
	// 2 preroll frames (from the two silent frames before speech) + 3
	// speech frames + 3 silence frames counted while in SPEAKING = 8.
	if len(got.Frames) != 8 {
		t.Fatalf("expected 8 frames (2 preroll + 6 speaking), got %d", len(got.Frames))
	}
}

func TestSegmenter_TooShortUtteranceIsDiscarded(t *testing.T) {
	cfg := testConfig()
	cfg.MinUtteranceFrames = 10
	scores := []float64{1, 0, 0, 0}
	p := &scriptedProvider{scores: scores}
	seg := New(cfg, p)

	for range scores {
		_, done := seg.Push(audio.Frame{})
		if done {
			t.Fatal("expected short utterance to be discarded, not emitted")
		}
	}
	if seg.State() != StateIdle {
		t.Fatalf("expected idle state after discard, got %v", seg.State())
	}
}

func TestSegmenter_MaxLengthForcesCut(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUtteranceFrames = 4
	cfg.SilenceFramesRequired = 100
	p := &scriptedProvider{scores: []float64{1, 1, 1, 1, 1, 1}}
	seg := New(cfg, p)

	var got *Utterance
	for i := 0; i < 6; i++ {
		u, done := seg.Push(audio.Frame{})
		if done {
			got = u
			break
		}
	}
	if got == nil {
		t.Fatal("expected forced cut to emit an utterance")
	}
	if len(got.Frames) != 4 {
		t.Fatalf("expected exactly MaxUtteranceFrames frames, got %d", len(got.Frames))
	}
}

func TestSegmenter_IDAssignedMonotonically(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUtteranceFrames = 2
	cfg.SilenceFramesRequired = 100
	p := &scriptedProvider{scores: []float64{1, 1, 1, 1, 1, 1}}
	seg := New(cfg, p)

	var ids []uint64
	for i := 0; i < 6; i++ {
		u, done := seg.Push(audio.Frame{})
		if done {
			ids = append(ids, u.ID)
		}
	}
	// Six speech frames cut every MaxUtteranceFrames=2 frames yield three
	// utterances.
	if len(ids) != 3 {
		t.Fatalf("expected 3 utterances, got %d", len(ids))
	}
	if ids[0] != 0 || ids[1] != 1 || ids[2] != 2 {
		t.Fatalf("expected monotonically increasing IDs, got %v", ids)
	}
}
