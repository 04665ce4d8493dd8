// Package splitter turns an incremental stream of dialog-engine text
// deltas into complete sentences ready for synthesis, and runs the
// bounded prefetch pipeline that keeps a few sentences' worth of audio
// synthesized ahead of playback.
package splitter

import (
	"strings"
	"unicode"
)

// abbreviations never end a sentence on their own, even though they end
// in a period.
var abbreviations = map[string]bool{
	"mr.": true, "dr.": true, "mrs.": true, "st.": true,
	"e.g.": true, "i.e.": true,
}

// Splitter accumulates streamed text and emits complete sentences as
// soon as enough of the following context is available to be confident
// a boundary is real.
type Splitter struct {
	buf           strings.Builder
	minChunkRunes int
	nextIndex     int
}

// New builds a splitter. minChunkRunes is the minimum sentence length
// enforced on every boundary except the final flush at end of stream.
func New(minChunkRunes int) *Splitter {
	if minChunkRunes < 0 {
		minChunkRunes = 0
	}
	return &Splitter{minChunkRunes: minChunkRunes}
}

// Push appends a text delta and returns every complete sentence that can
// now be confidently extracted, in order.
func (s *Splitter) Push(delta string) []string {
	s.buf.WriteString(delta)
	return s.drain(false)
}

// Flush forces out whatever text remains buffered as a final sentence
// (ignoring the minimum-length guard, since there is no more context
// coming), or returns nil if nothing is buffered.
func (s *Splitter) Flush() []string {
	return s.drain(true)
}

func (s *Splitter) drain(final bool) []string {
	var out []string
	text := s.buf.String()

	for {
		cut := findBoundary(text, s.minChunkRunes, final)
		if cut < 0 {
			break
		}
		sentence := strings.TrimSpace(text[:cut])
		if sentence != "" {
			out = append(out, sentence)
		}
		text = text[cut:]
	}

	s.buf.Reset()
	s.buf.WriteString(text)

	if final {
		rest := strings.TrimSpace(s.buf.String())
		s.buf.Reset()
		if rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

// findBoundary scans text for the first confirmed sentence boundary,
// returning the byte cut index (just past the terminator and the one
// whitespace rune that follows it, if any) or -1
// if none is found yet. A boundary is '.', '?' or '!' followed by
// whitespace (or end of text, if final), unless the preceding token is
// a known abbreviation, or '\n'. The candidate sentence must be at
// least minChunkRunes runes long unless final is true.
func findBoundary(text string, minChunkRunes int, final bool) int {
	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			if i+1 >= minChunkRunes || final {
				return byteIndex(runes, i+1)
			}
			continue
		}
		if r != '.' && r != '?' && r != '!' {
			continue
		}

		hasFollowing := i+1 < len(runes)
		followedByWhitespace := hasFollowing && unicode.IsSpace(runes[i+1])
		if !followedByWhitespace && !(final && !hasFollowing) {
			continue
		}

		candidate := string(runes[:i+1])
		if isAbbreviation(candidate) {
			continue
		}
		if len([]rune(candidate)) < minChunkRunes && !final {
			continue
		}

		cut := i + 1
		if followedByWhitespace {
			cut++
		}
		if cut > len(runes) {
			cut = len(runes)
		}
		return byteIndex(runes, cut)
	}
	return -1
}

func byteIndex(runes []rune, count int) int {
	return len(string(runes[:count]))
}

func isAbbreviation(candidate string) bool {
	fields := strings.Fields(candidate)
	if len(fields) == 0 {
		return false
	}
	last := strings.ToLower(fields[len(fields)-1])
	return abbreviations[last]
}
