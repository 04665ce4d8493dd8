// Package session owns the per-connection pipeline: wiring ingress audio
// through VAD segmentation, transcription, the dialog engine, sentence
// splitting, and synthesis, and speaking the client/server wire protocol
// over the websocket transport.
package session

import (
	"github.com/bytedance/sonic"
)

// ClientFrame is the envelope every text frame from the client is first
// decoded into, just enough to dispatch on Type before parsing the rest.
type ClientFrame struct {
	Type string `json:"type"`
}

// HelloFrame is the client's required first text frame.
type HelloFrame struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sample_rate"`
	SessionID  string `json:"session_id,omitempty"`
}

// InterruptFrame signals a barge-in.
type InterruptFrame struct {
	Type string `json:"type"`
}

// LoadSessionFrame asks the server to load a different session's history
// mid-connection.
type LoadSessionFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// TestQuestionFrame injects text directly into the dialog engine,
// bypassing transcription entirely. Carried over from the debug bypass
// the original server exposed for load tests and demos without a
// microphone.
type TestQuestionFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// StatsRequestFrame asks for the connection's running counters.
type StatsRequestFrame struct {
	Type string `json:"type"`
}

// TranscriptionFrame reports the text recognized from one utterance.
type TranscriptionFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// LLMResponseFrame reports the assistant's complete reply for one turn.
type LLMResponseFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TTSStartFrame brackets the start of a turn's synthesized audio burst.
// SampleRate advertises the PCM16LE rate of the binary frames that
// follow, since the default (Piper) and alternate (Edge) synthesizers
// do not necessarily share one native rate.
type TTSStartFrame struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sample_rate"`
}

// TTSStopFrame closes out a turn's audio burst. Sending it is idempotent
// from the caller's perspective: the pipeline only ever emits one per
// tts_start it actually sent.
type TTSStopFrame struct {
	Type string `json:"type"`
}

// ErrorFrame reports a non-fatal error without tearing down the session.
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatsResponseFrame answers a stats request with the connection's
// running counters.
type StatsResponseFrame struct {
	Type            string `json:"type"`
	AudioChunksIn   uint64 `json:"audio_chunks_in"`
	AudioBytesIn    uint64 `json:"audio_bytes_in"`
	EventsOut       uint64 `json:"events_out"`
	UtterancesTotal uint64 `json:"utterances_total"`
}

// Error codes used in ErrorFrame.Code.
const (
	ErrCodeProtocol          = "protocol"
	ErrCodeBusy              = "busy"
	ErrCodeBackendTransient  = "backend_transient"
	ErrCodeBackendPermanent  = "backend_permanent"
	ErrCodeBackendUnavailable = "backend_unavailable"
	ErrCodeHelloRequired     = "hello_required"
)

func marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}
