package session

import (
	"sync/atomic"
	"testing"
	"time"

	"voxd-server/internal/audio"
)

func TestSecondsToFrames(t *testing.T) {
	cases := []struct {
		seconds float64
		want    int
	}{
		{0, 0},
		{-1, 0},
		{1.0, 1000 / audio.FrameMillis},
		{0.5, 500 / audio.FrameMillis},
	}
	for _, c := range cases {
		if got := secondsToFrames(c.seconds); got != c.want {
			t.Fatalf("secondsToFrames(%v) = %d, want %d", c.seconds, got, c.want)
		}
	}
}

func TestFlattenFrames_ConcatenatesInOrder(t *testing.T) {
	var f1, f2 audio.Frame
	f1.Samples[0] = 0.1
	f2.Samples[0] = 0.2

	out := flattenFrames([]audio.Frame{f1, f2})
	if len(out) != 2*audio.FrameSamples {
		t.Fatalf("expected %d samples, got %d", 2*audio.FrameSamples, len(out))
	}
	if out[0] != 0.1 || out[audio.FrameSamples] != 0.2 {
		t.Fatalf("frames not concatenated in order: %v", out[:2])
	}
}

func TestConnStats_SnapshotReflectsCounters(t *testing.T) {
	var s connStats
	s.recordAudioIn(10)
	s.recordAudioIn(20)
	s.recordEventOut()
	s.recordUtterance()

	snap := s.snapshot()
	if snap.AudioChunksIn != 2 {
		t.Fatalf("expected 2 audio chunks, got %d", snap.AudioChunksIn)
	}
	if snap.AudioBytesIn != 30 {
		t.Fatalf("expected 30 bytes, got %d", snap.AudioBytesIn)
	}
	if snap.EventsOut != 1 {
		t.Fatalf("expected 1 event, got %d", snap.EventsOut)
	}
	if snap.UtterancesTotal != 1 {
		t.Fatalf("expected 1 utterance, got %d", snap.UtterancesTotal)
	}
}

func TestProtocolFrames_MarshalRoundTrip(t *testing.T) {
	data, err := marshal(TranscriptionFrame{Type: "transcription", Text: "hello world"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out TranscriptionFrame
	if err := unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.Text != "hello world" || out.Type != "transcription" {
		t.Fatalf("unexpected round trip result: %+v", out)
	}
}

// TestHandler_TurnsRunOneAtATime verifies runTurnLoop serializes jobs
// enqueued from ingestFrames/handleTestQuestion: a second job never
// starts before the first one returns, which is what keeps two
// utterances from ever driving processUtterance/runTurn concurrently.
func TestHandler_TurnsRunOneAtATime(t *testing.T) {
	h := &Handler{turnCh: make(chan func(), 1), turnDone: make(chan struct{})}
	go h.runTurnLoop()

	var running atomic.Int32
	var overlapped atomic.Bool
	const attempts = 50

	for i := 0; i < attempts; i++ {
		h.enqueueTurn(func() {
			if running.Add(1) > 1 {
				overlapped.Store(true)
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
		})
	}

	// Closing turnCh and waiting for turnDone only returns once every
	// job that made it into the channel has run to completion.
	close(h.turnCh)
	<-h.turnDone

	if overlapped.Load() {
		t.Fatal("turns ran concurrently; expected strict serialization")
	}
}

// TestHandler_EnqueueTurnDropsWhenQueueFull confirms a turn beyond the
// single queued slot is dropped rather than blocking the caller, which
// is what keeps a busy turn loop from stalling the read loop (and the
// interrupt frames it delivers).
func TestHandler_EnqueueTurnDropsWhenQueueFull(t *testing.T) {
	h := &Handler{turnCh: make(chan func(), 1), turnDone: make(chan struct{})}
	go h.runTurnLoop()

	block := make(chan struct{})
	started := make(chan struct{})
	h.enqueueTurn(func() {
		close(started)
		<-block
	})
	<-started // the first job now owns the loop's only worker

	var bRan, cRan atomic.Bool
	h.enqueueTurn(func() { bRan.Store(true) }) // fills the single queued slot
	h.enqueueTurn(func() { cRan.Store(true) }) // queue full, must be dropped

	close(block)
	close(h.turnCh)
	<-h.turnDone

	if !bRan.Load() {
		t.Fatal("expected the queued turn to eventually run")
	}
	if cRan.Load() {
		t.Fatal("expected the turn beyond the queued slot to be dropped, not run")
	}
}

func TestClientFrame_DispatchesOnType(t *testing.T) {
	data, _ := marshal(HelloFrame{Type: "hello", SampleRate: 16000, SessionID: "abc"})

	var env ClientFrame
	if err := unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if env.Type != "hello" {
		t.Fatalf("expected type hello, got %q", env.Type)
	}
}
