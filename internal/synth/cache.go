package synth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	platformerrors "voxd-server/internal/platform/errors"
)

// CachedEdgeSynthesizer fronts an EdgeSynthesizer with an on-disk cache
// keyed by voice+text. Repeated phrases (greetings, fixed prompts) skip
// the network round trip entirely; the cache stores the compact mp3
// payload rather than decoded PCM and re-decodes on every hit.
type CachedEdgeSynthesizer struct {
	inner   *EdgeSynthesizer
	voice   string
	cacheDir string
}

// NewCachedEdgeSynthesizer builds a caching wrapper rooted at cacheDir.
func NewCachedEdgeSynthesizer(inner *EdgeSynthesizer, voice, cacheDir string) *CachedEdgeSynthesizer {
	return &CachedEdgeSynthesizer{inner: inner, voice: voice, cacheDir: cacheDir}
}

func (c *CachedEdgeSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	key := cacheKey(c.voice, text)
	path := filepath.Join(c.cacheDir, key+".mp3")

	if data, err := os.ReadFile(path); err == nil {
		return decodeMP3(data)
	}

	mp3Bytes, err := c.inner.FetchMP3(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindPermanent, "synth.cache", "failed to create cache directory", err)
	}
	if err := os.WriteFile(path, mp3Bytes, 0o644); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindPermanent, "synth.cache", "failed to write cache entry", err)
	}

	return decodeMP3(mp3Bytes)
}

func cacheKey(voice, text string) string {
	sum := sha256.Sum256([]byte(voice + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
