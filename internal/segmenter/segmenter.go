// Package segmenter implements the utterance segmenter finite-state
// machine: it turns a stream of scored audio frames into discrete
// Utterances bounded by speech-activity hysteresis.
package segmenter

import (
	"voxd-server/internal/audio"
	"voxd-server/internal/vad"
)

// State is the segmenter's two-state machine.
type State int

const (
	StateIdle State = iota
	StateSpeaking
)

func (s State) String() string {
	if s == StateSpeaking {
		return "speaking"
	}
	return "idle"
}

// Config tunes the segmenter's thresholds. Defaults live in
// internal/platform/config.
type Config struct {
	// SpeechThreshold is the VAD score at or above which a frame counts
	// as speech.
	SpeechThreshold float64
	// SilenceFramesRequired is the number of consecutive sub-threshold
	// frames needed to close an utterance (hysteresis).
	SilenceFramesRequired int
	// PrerollFrames is the number of pre-speech frames kept in a ring
	// buffer and prepended to a newly opened utterance, so the leading
	// edge of speech is not clipped.
	PrerollFrames int
	// MinUtteranceFrames discards utterances shorter than this on
	// silence-close (not on forced max-length cut).
	MinUtteranceFrames int
	// MaxUtteranceFrames forces an utterance to close even while still
	// speaking, to bound latency and memory.
	MaxUtteranceFrames int
}

// Utterance is a complete run of speech frames bounded by silence or a
// forced length cut.
type Utterance struct {
	ID     uint64
	Frames []audio.Frame
}

// Segmenter consumes frames one at a time and emits Utterances.
type Segmenter struct {
	cfg      Config
	provider vad.Provider

	state        State
	preroll      []audio.Frame
	active       []audio.Frame
	silenceCount int
	nextID       uint64
}

// New builds a segmenter in the idle state.
func New(cfg Config, provider vad.Provider) *Segmenter {
	return &Segmenter{cfg: cfg, provider: provider}
}

// State exposes the current FSM state.
func (s *Segmenter) State() State {
	return s.state
}

// Push feeds one frame through the FSM. It returns the completed
// utterance and true when a silence close or forced cut fires; the
// discarded-as-too-short case returns (nil, false) just like no
// completion at all, since both leave the segmenter ready for the next
// frame with nothing to emit.
func (s *Segmenter) Push(frame audio.Frame) (*Utterance, bool) {
	score := s.provider.Score(frame)
	isSpeech := score >= s.cfg.SpeechThreshold

	switch s.state {
	case StateIdle:
		if isSpeech {
			s.state = StateSpeaking
			s.active = append(s.active, s.preroll...)
			s.active = append(s.active, frame)
			s.preroll = s.preroll[:0]
			s.silenceCount = 0
		} else {
			s.pushPreroll(frame)
		}
		return nil, false

	case StateSpeaking:
		s.active = append(s.active, frame)
		if isSpeech {
			s.silenceCount = 0
		} else {
			s.silenceCount++
		}

		if len(s.active) >= s.cfg.MaxUtteranceFrames {
			return s.emit()
		}
		if s.silenceCount >= s.cfg.SilenceFramesRequired {
			if len(s.active) >= s.cfg.MinUtteranceFrames {
				return s.emit()
			}
			s.reset()
			return nil, false
		}
		return nil, false
	}

	return nil, false
}

func (s *Segmenter) pushPreroll(frame audio.Frame) {
	s.preroll = append(s.preroll, frame)
	if over := len(s.preroll) - s.cfg.PrerollFrames; over > 0 {
		s.preroll = s.preroll[over:]
	}
}

func (s *Segmenter) emit() (*Utterance, bool) {
	u := &Utterance{ID: s.nextID, Frames: s.active}
	s.nextID++
	s.reset()
	return u, true
}

func (s *Segmenter) reset() {
	s.state = StateIdle
	s.active = nil
	s.silenceCount = 0
	s.provider.Reset()
}
