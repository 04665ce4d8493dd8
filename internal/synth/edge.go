package synth

import (
	"bytes"
	"context"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/wujunwei928/edge-tts-go/edge_tts"

	platformerrors "voxd-server/internal/platform/errors"
)

// EdgeConfig selects a Microsoft Edge neural voice for the alternate
// cloud-backed synthesizer.
type EdgeConfig struct {
	Voice string
}

// EdgeSynthesizer calls the Edge TTS service and decodes its mp3
// response down to raw PCM16LE samples.
type EdgeSynthesizer struct {
	cfg EdgeConfig
}

// NewEdgeSynthesizer builds the Edge TTS-backed synthesizer.
func NewEdgeSynthesizer(cfg EdgeConfig) *EdgeSynthesizer {
	return &EdgeSynthesizer{cfg: cfg}
}

// Synthesize requests mp3 audio from Edge TTS and decodes it to
// PCM16LE. The service renders at its own fixed sample rate rather than
// audio.OutputSampleRateHz; callers mixing Edge output with Piper output
// in the same session should resample before enqueueing for playback.
func (e *EdgeSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	mp3Bytes, err := e.FetchMP3(ctx, text)
	if err != nil {
		return nil, err
	}
	return decodeMP3(mp3Bytes)
}

// FetchMP3 returns the raw mp3 bytes Edge TTS produced, without
// decoding. Exposed so a disk cache can store the compact mp3 payload
// and decode it again on every cache hit instead of re-synthesizing.
func (e *EdgeSynthesizer) FetchMP3(ctx context.Context, text string) ([]byte, error) {
	communicate, err := edge_tts.New(e.cfg.Voice)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransient, "synth.edge.synthesize", "failed to create edge-tts session", err)
	}
	defer communicate.Close()

	mp3Bytes, err := communicate.Output(text)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransient, "synth.edge.synthesize", "edge-tts synthesis failed", err)
	}
	return mp3Bytes, nil
}

func decodeMP3(mp3Bytes []byte) ([]byte, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(mp3Bytes))
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindPermanent, "synth.edge.synthesize", "failed to decode edge-tts mp3 response", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindPermanent, "synth.edge.synthesize", "failed to read decoded edge-tts audio", err)
	}
	return pcm, nil
}
