package synth

import (
	"context"
	"time"

	"voxd-server/internal/retry"
)

// RetryConfig tunes the retry wrapper placed around a Synthesizer:
// connection/timeout faults only, per-sentence, with a short fixed
// delay rather than exponential backoff (a stuck sentence should not
// compound the session's perceived latency).
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// WithRetry wraps a Synthesizer so transient failures (timeouts,
// connection errors) are retried a bounded number of times before
// giving up on that sentence.
func WithRetry(inner Synthesizer, cfg RetryConfig) Synthesizer {
	return &retrying{inner: inner, cfg: cfg}
}

type retrying struct {
	inner Synthesizer
	cfg   RetryConfig
}

func (r *retrying) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var out []byte
	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: r.cfg.Attempts,
		Backoff:     retry.Fixed(r.cfg.Delay),
		Op:          "synth.synthesize",
	}, func(ctx context.Context) error {
		audioBytes, err := r.inner.Synthesize(ctx, text)
		if err != nil {
			return err
		}
		out = audioBytes
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
