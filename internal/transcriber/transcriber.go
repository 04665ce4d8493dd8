// Package transcriber turns a completed utterance into text. Speech
// recognition runs on the shared worker pool since it is CPU/GPU heavy;
// a model failure is non-fatal and simply causes the caller to skip the
// turn rather than propagate an error up to the session.
package transcriber

import (
	"bytes"
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"

	"voxd-server/internal/audio"
	platformerrors "voxd-server/internal/platform/errors"
	"voxd-server/internal/workerpool"
)

// Transcriber converts utterance audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// Config points the transcriber at an OpenAI-audio-API-compatible local
// speech-to-text server.
type Config struct {
	BaseURL string
	Model   string
}

// Client is the default Transcriber, calling a local Whisper-compatible
// transcription endpoint through the shared worker pool so the rest of
// the pipeline can keep making progress while recognition runs.
type Client struct {
	cfg  Config
	oai  *openai.Client
	pool *workerpool.Pool
}

// New builds the default transcription client.
func New(cfg Config, pool *workerpool.Pool) *Client {
	clientCfg := openai.DefaultConfig("unused")
	clientCfg.BaseURL = cfg.BaseURL
	return &Client{cfg: cfg, oai: openai.NewClientWithConfig(clientCfg), pool: pool}
}

// Transcribe encodes samples as 16-bit PCM WAV and submits the request
// through the shared worker pool, returning a trimmed transcript (which
// may legitimately be empty for silence-only or unintelligible audio).
func (c *Client) Transcribe(ctx context.Context, samples []float32) (string, error) {
	var text string
	err := c.pool.Do(ctx, func() error {
		wav := encodeWAV(samples, audio.InputSampleRateHz)
		req := openai.AudioRequest{
			Model:  c.cfg.Model,
			Reader: bytes.NewReader(wav),
			FilePath: "utterance.wav",
			Format: openai.AudioResponseFormatText,
		}
		resp, err := c.oai.CreateTranscription(ctx, req)
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindTransient, "transcriber.transcribe", "transcription request failed", err)
		}
		text = strings.TrimSpace(resp.Text)
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// encodeWAV wraps float32 PCM samples in a minimal 16-bit mono WAV
// container, the format most local Whisper-style servers expect.
func encodeWAV(samples []float32, sampleRate int) []byte {
	pcm := audio.EncodePCM16LE(samples)
	dataLen := len(pcm)

	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	writeLE32(buf, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeLE32(buf, 16)
	writeLE16(buf, 1) // PCM
	writeLE16(buf, 1) // mono
	writeLE32(buf, uint32(sampleRate))
	byteRate := sampleRate * 2
	writeLE32(buf, uint32(byteRate))
	writeLE16(buf, 2) // block align
	writeLE16(buf, 16) // bits per sample

	buf.WriteString("data")
	writeLE32(buf, uint32(dataLen))
	buf.Write(pcm)

	return buf.Bytes()
}

func writeLE32(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 24))
}

func writeLE16(buf *bytes.Buffer, v uint16) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
}
