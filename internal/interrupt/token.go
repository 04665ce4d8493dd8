// Package interrupt implements the generation counter that carries
// barge-in cancellation across a session's pipeline stages.
package interrupt

import "sync/atomic"

// Token is a monotonically increasing generation counter. Every stage of
// a session's pipeline stamps its work with the generation in effect at
// the time it started; a stage compares its stamp against Current()
// before publishing a result and discards the result on mismatch. This
// makes interrupt handling O(1) and non-blocking: bumping the counter is
// enough to make every in-flight stage's eventual output stale.
type Token struct {
	generation atomic.Uint64
}

// New returns a token starting at generation 0.
func New() *Token {
	return &Token{}
}

// Current returns the generation in effect right now.
func (t *Token) Current() uint64 {
	return t.generation.Load()
}

// Bump advances to the next generation and returns it. Called once per
// interrupt; every pipeline stage still carrying an older generation is
// now stale.
func (t *Token) Bump() uint64 {
	return t.generation.Add(1)
}

// Stale reports whether a generation captured by a pipeline stage no
// longer matches the current one, i.e. an interrupt happened since that
// stage started its work.
func (t *Token) Stale(generation uint64) bool {
	return generation != t.Current()
}
