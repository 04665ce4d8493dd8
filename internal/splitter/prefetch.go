package splitter

import (
	"context"
	"sync"

	"voxd-server/internal/interrupt"
	"voxd-server/internal/platform/logging"
)

// ChunkState tracks a sentence chunk's progress through synthesis and
// delivery.
type ChunkState int

const (
	ChunkPending ChunkState = iota
	ChunkSynthesized
	ChunkDelivered
	ChunkCancelled
)

// Chunk is one sentence awaiting, undergoing, or having completed
// synthesis.
type Chunk struct {
	Index      int
	Text       string
	Generation uint64
	Audio      []byte

	mu    sync.Mutex
	state ChunkState
	ready chan struct{}
}

// State returns the chunk's current state.
func (c *Chunk) State() ChunkState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SynthesizeFunc renders one sentence of text to audio bytes.
type SynthesizeFunc func(ctx context.Context, text string) ([]byte, error)

// Queue is the bounded-depth prefetch pipeline: a producer pushes
// sentences as the splitter emits them and immediately kicks off their
// synthesis; a consumer pops chunks strictly in order, waiting for each
// one's synthesis to finish before the next chunk is even considered,
// so sentence N+1 racing ahead in synthesis never gets delivered before
// sentence N.
type Queue struct {
	depth      int
	chunks     chan *Chunk
	synthesize SynthesizeFunc
	token      *interrupt.Token
	logger     *logging.Logger

	closeOnce sync.Once
}

// NewQueue builds a prefetch queue with the given bounded depth.
func NewQueue(depth int, synthesize SynthesizeFunc, token *interrupt.Token, logger *logging.Logger) *Queue {
	if depth < 1 {
		depth = 1
	}
	return &Queue{
		depth:      depth,
		chunks:     make(chan *Chunk, depth),
		synthesize: synthesize,
		token:      token,
		logger:     logger,
	}
}

// Produce enqueues a sentence and schedules its synthesis in the
// background. It blocks once depth chunks are already queued, giving
// the pipeline natural backpressure.
func (q *Queue) Produce(ctx context.Context, index int, text string, generation uint64) bool {
	chunk := &Chunk{Index: index, Text: text, Generation: generation, ready: make(chan struct{})}

	select {
	case q.chunks <- chunk:
	case <-ctx.Done():
		return false
	}

	go q.runSynthesis(ctx, chunk)
	return true
}

func (q *Queue) runSynthesis(ctx context.Context, chunk *Chunk) {
	defer close(chunk.ready)

	audioBytes, err := q.synthesize(ctx, chunk.Text)

	chunk.mu.Lock()
	defer chunk.mu.Unlock()

	if q.token.Stale(chunk.Generation) {
		chunk.state = ChunkCancelled
		return
	}
	if err != nil {
		if q.logger != nil {
			q.logger.Warn("sentence synthesis failed", "index", chunk.Index, "error", err)
		}
		chunk.state = ChunkCancelled
		return
	}
	chunk.Audio = audioBytes
	chunk.state = ChunkSynthesized
}

// Consume pops the next chunk in order and waits for its synthesis to
// settle. It returns (chunk, true) when the chunk is ready for
// delivery, or (chunk, false) when the chunk was cancelled (stale
// generation or synthesis failure) and should be skipped without
// forwarding any audio — the caller should loop and call Consume again
// for the next chunk. A closed, drained queue returns (nil, false).
func (q *Queue) Consume(ctx context.Context) (*Chunk, bool) {
	select {
	case chunk, ok := <-q.chunks:
		if !ok {
			return nil, false
		}
		select {
		case <-chunk.ready:
		case <-ctx.Done():
			return nil, false
		}

		chunk.mu.Lock()
		state := chunk.state
		chunk.mu.Unlock()

		if state == ChunkCancelled || q.token.Stale(chunk.Generation) {
			return chunk, false
		}

		chunk.mu.Lock()
		chunk.state = ChunkDelivered
		chunk.mu.Unlock()
		return chunk, true

	case <-ctx.Done():
		return nil, false
	}
}

// Drain marks every chunk still buffered as cancelled and empties the
// channel, used when an interrupt bumps the generation and the
// in-flight sentences must not reach egress.
func (q *Queue) Drain() {
	for {
		select {
		case chunk, ok := <-q.chunks:
			if !ok {
				return
			}
			chunk.mu.Lock()
			chunk.state = ChunkCancelled
			chunk.mu.Unlock()
		default:
			return
		}
	}
}

// Close shuts down the queue. Safe to call multiple times.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.chunks)
	})
}
