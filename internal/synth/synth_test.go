package synth

import (
	"context"
	"testing"
	"time"

	platformerrors "voxd-server/internal/platform/errors"
)

func TestPiperSynthesizer_EmptyTextYieldsNoAudio(t *testing.T) {
	p := NewPiperSynthesizer(PiperConfig{ExePath: "/bin/true", ModelPath: "x"})
	audio, err := p.Synthesize(context.Background(), "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if audio != nil {
		t.Fatalf("expected nil audio for blank text, got %v", audio)
	}
}

func TestPiperSynthesizer_MissingExecutableIsTransient(t *testing.T) {
	p := NewPiperSynthesizer(PiperConfig{ExePath: "/nonexistent/piper", ModelPath: "x", Timeout: time.Second})
	_, err := p.Synthesize(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
	if !platformerrors.IsKind(err, platformerrors.KindTransient) {
		t.Fatalf("expected transient kind, got %v", err)
	}
}

type stubSynth struct {
	calls int
	fail  int
	out   []byte
}

func (s *stubSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.calls++
	if s.calls <= s.fail {
		return nil, platformerrors.New(platformerrors.KindTransient, "stub", "flaky")
	}
	return s.out, nil
}

func TestWithRetry_RetriesTransientFailures(t *testing.T) {
	stub := &stubSynth{fail: 1, out: []byte("ok")}
	s := WithRetry(stub, RetryConfig{Attempts: 3, Delay: time.Millisecond})

	out, err := s.Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "ok" {
		t.Fatalf("unexpected output: %q", out)
	}
	if stub.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", stub.calls)
	}
}

func TestCacheKey_DeterministicAndDistinct(t *testing.T) {
	a := cacheKey("voiceA", "hello")
	b := cacheKey("voiceA", "hello")
	c := cacheKey("voiceB", "hello")

	if a != b {
		t.Fatal("expected identical inputs to produce identical keys")
	}
	if a == c {
		t.Fatal("expected different voices to produce different keys")
	}
}
