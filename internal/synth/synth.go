// Package synth implements text-to-speech: a Synthesizer contract, a
// Piper-style subprocess adapter grounded in the reference
// implementation's invocation pattern, an edge-tts-go alternate
// provider, and an on-disk cache for repeated phrases.
package synth

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	platformerrors "voxd-server/internal/platform/errors"
)

// Synthesizer renders text to PCM16LE mono audio at OutputSampleRateHz.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// PiperConfig points at a local Piper-compatible executable invoked
// once per sentence: text goes in on stdin, raw PCM16LE comes back on
// stdout.
type PiperConfig struct {
	ExePath   string
	ModelPath string
	Timeout   time.Duration
}

// PiperSynthesizer shells out to the Piper executable for each call.
type PiperSynthesizer struct {
	cfg PiperConfig
}

// NewPiperSynthesizer builds the subprocess-backed synthesizer.
func NewPiperSynthesizer(cfg PiperConfig) *PiperSynthesizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &PiperSynthesizer{cfg: cfg}
}

// Synthesize runs the Piper executable, feeding text on stdin and
// reading raw PCM16LE from stdout. An empty or whitespace-only text
// yields no audio, matching silence passthrough rather than an error.
func (p *PiperSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.cfg.ExePath, "--model", p.cfg.ModelPath, "--output_raw")
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, platformerrors.Wrap(platformerrors.KindTransient, "synth.synthesize", "piper synthesis timed out", ctx.Err())
		}
		return nil, platformerrors.Wrap(platformerrors.KindTransient, "synth.synthesize", fmt.Sprintf("piper synthesis failed: %s", strings.TrimSpace(stderr.String())), err)
	}

	if stdout.Len() == 0 {
		return nil, platformerrors.New(platformerrors.KindTransient, "synth.synthesize", "piper produced no audio")
	}

	return stdout.Bytes(), nil
}
