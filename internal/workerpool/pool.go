// Package workerpool provides the bounded-concurrency gate shared by the
// CPU-heavy pipeline stages (STT transcription, TTS synthesis). A single
// pool instance is constructed at startup and handed to every session,
// so the server as a whole never runs more than its capacity worth of
// heavy work concurrently, regardless of how many sessions are active.
package workerpool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool caps concurrent execution of submitted work at a fixed capacity.
type Pool struct {
	sem *semaphore.Weighted
}

// New builds a pool that allows up to capacity concurrent Do calls.
func New(capacity int64) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{sem: semaphore.NewWeighted(capacity)}
}

// Do blocks until a slot is free (or ctx is canceled) and then runs fn,
// releasing the slot afterwards.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
