package dialog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"voxd-server/internal/interrupt"
	platformerrors "voxd-server/internal/platform/errors"
	"voxd-server/internal/platform/logging"
	"voxd-server/internal/retry"
)

// maxToolRounds bounds how many times one StreamReply call will answer
// a round of tool calls with results and ask the backend to continue,
// so a backend that never stops requesting tools can't wedge a turn.
const maxToolRounds = 4

// HealthGate reports whether the external LLM backend is currently safe
// to call. A supervisor.Supervisor satisfies this interface; the
// dependency runs the other way on purpose, so the dialog engine never
// imports the supervisor package.
type HealthGate interface {
	WaitHealthy(ctx context.Context) error
}

// Config tunes the OpenAI-compatible streaming client.
type Config struct {
	BaseURL        string
	Model          string
	Temperature    float32
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// Delta is one incremental piece of an assistant reply.
type Delta struct {
	Content string
	Done    bool
}

// Engine owns one session's conversation history and streams replies
// from the shared, process-global LLM backend.
type Engine struct {
	cfg     Config
	client  *openai.Client
	history *History
	tools   *ToolRegistry
	gate    HealthGate
	logger  *logging.Logger

	// mu guards activeGen/streaming, which track whether the turn
	// AppendUser most recently started still owns an unfinalized
	// assistant reply. StreamReply's own completion and a concurrent
	// RewindOnInterrupt both race to finalize that turn; whichever
	// claims streaming first (by flipping it false under mu) is the one
	// that appends the assistant turn, so exactly one of them ever does.
	mu        sync.Mutex
	activeGen uint64
	streaming bool
}

// NewEngine builds a dialog engine bound to a session's history.
func NewEngine(cfg Config, systemPrompt string, maxHistoryTurns int, gate HealthGate, tools *ToolRegistry, logger *logging.Logger) *Engine {
	clientCfg := openai.DefaultConfig("unused")
	clientCfg.BaseURL = cfg.BaseURL

	return &Engine{
		cfg:     cfg,
		client:  openai.NewClientWithConfig(clientCfg),
		history: NewHistory(systemPrompt, maxHistoryTurns*2),
		tools:   tools,
		gate:    gate,
		logger:  logger,
	}
}

// AppendUser records a user turn before streaming a reply. generation is
// the token value in effect for the turn that is about to stream; from
// this call until the turn is finalized (normally by StreamReply, or
// early by RewindOnInterrupt), the turn is considered in flight for
// that generation.
func (e *Engine) AppendUser(generation uint64, text string) {
	e.history.AppendUser(text)
	e.mu.Lock()
	e.activeGen = generation
	e.streaming = true
	e.mu.Unlock()
}

// Turns exposes the retained user/assistant turns (excluding the system
// prompt) for persistence to a session store.
func (e *Engine) Turns() []Turn {
	return e.history.NonSystemTurns()
}

// RestoreHistory replaces the engine's conversation history with turns
// loaded from a session store, as when a client's hello carries a prior
// session_id or a load_session frame arrives mid-connection.
func (e *Engine) RestoreHistory(turns []Turn) {
	e.history.Restore(turns)
}

// RewindOnInterrupt finalizes the assistant turn with whatever partial
// text had already been produced when a barge-in cut the stream short,
// keeping history in valid alternation. generation identifies the turn
// the interrupt is cutting off (the token's value before the bump, not
// after); the call is a no-op unless that turn is still in flight and
// unfinalized — an interrupt received while idle, or one that lands
// after StreamReply already finalized the turn itself, must not touch
// history.
func (e *Engine) RewindOnInterrupt(generation uint64, partialText string) {
	e.mu.Lock()
	if !e.streaming || e.activeGen != generation {
		e.mu.Unlock()
		return
	}
	e.streaming = false
	e.mu.Unlock()

	e.history.AppendAssistant(partialText)
}

// StreamReply calls the backend and invokes onDelta for every text
// delta, finalizing the assistant turn in history once the stream
// completes normally. If gen.Stale(generation) becomes true mid-stream
// (a barge-in fired), the stream is aborted without touching history —
// the caller is expected to call RewindOnInterrupt itself with whatever
// partial text it had already forwarded downstream.
func (e *Engine) StreamReply(ctx context.Context, generation uint64, gen *interrupt.Token, onDelta func(Delta)) error {
	if e.gate != nil {
		if err := e.gate.WaitHealthy(ctx); err != nil {
			return platformerrors.Wrap(platformerrors.KindBackendUnavailable, "dialog.stream_reply", "backend not healthy", err)
		}
	}

	// emitted tracks whether the attempt in progress has already forwarded
	// any content downstream (to the sentence splitter and, from there,
	// to synthesis/the client). Once that has happened, retrying from the
	// top of the stream would re-emit sentences and audio the client
	// already received, so a mid-stream failure after content was
	// delivered is treated as final rather than retried.
	var full string
	var emitted bool
	policy := retry.Policy{
		MaxAttempts: maxInt(e.cfg.RetryAttempts, 1),
		Backoff:     retry.Exponential(firstPositive(e.cfg.RetryBaseDelay, time.Second), 10*time.Second),
		Retryable: func(err error) bool {
			if emitted {
				return false
			}
			return platformerrors.Retryable(err)
		},
		Logger: e.logger,
		Op:     "dialog.stream_reply",
	}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		full = ""
		emitted = false
		return e.runStream(ctx, generation, gen, func(d Delta) {
			if d.Content != "" {
				emitted = true
			}
			full += d.Content
			onDelta(d)
		})
	})
	if err != nil {
		e.mu.Lock()
		if e.activeGen == generation {
			e.streaming = false
		}
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	finalize := e.streaming && e.activeGen == generation && !gen.Stale(generation)
	if finalize {
		e.streaming = false
	}
	e.mu.Unlock()

	if finalize {
		e.history.AppendAssistant(full)
	}
	return nil
}

// runStream drives the backend call, forwarding text deltas to onDelta.
// When the backend asks for tool calls instead of (or alongside) text,
// it dispatches them through e.tools.Call, appends the assistant's
// tool-call message and each tool's result to the request, and issues
// another round — up to maxToolRounds — so the final, tool-informed
// reply is what reaches onDelta. Tool round-trips are scoped to this
// call only; they are not recorded in the persisted history, which
// only ever holds the user text and the final assistant text.
func (e *Engine) runStream(ctx context.Context, generation uint64, gen *interrupt.Token, onDelta func(Delta)) error {
	messages := toOpenAIMessages(e.history.Turns())

	for round := 0; round < maxToolRounds; round++ {
		assistantText, toolCalls, err := e.streamOnce(ctx, generation, gen, messages, onDelta)
		if err != nil {
			return err
		}
		if gen.Stale(generation) {
			onDelta(Delta{Done: true})
			return nil
		}
		if len(toolCalls) == 0 || e.tools == nil {
			onDelta(Delta{Done: true})
			return nil
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   assistantText,
			ToolCalls: toolCalls,
		})
		for _, call := range toolCalls {
			result, callErr := e.tools.Call(ctx, call.Function.Name, call.Function.Arguments)
			if callErr != nil {
				result = fmt.Sprintf("tool call failed: %v", callErr)
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	onDelta(Delta{Done: true})
	return nil
}

// streamOnce runs a single backend request to completion, returning the
// text it produced and any tool calls it asked for (accumulated across
// the streamed deltas, since both content and tool-call arguments arrive
// in fragments keyed by choice index).
func (e *Engine) streamOnce(ctx context.Context, generation uint64, gen *interrupt.Token, messages []openai.ChatCompletionMessage, onDelta func(Delta)) (string, []openai.ToolCall, error) {
	req := openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		Messages:    messages,
		Temperature: e.cfg.Temperature,
		Stream:      true,
	}
	if e.tools != nil {
		req.Tools = e.tools.Tools()
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if e.cfg.RequestTimeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}

	stream, err := e.client.CreateChatCompletionStream(reqCtx, req)
	if err != nil {
		return "", nil, classifyErr(err)
	}
	defer stream.Close()

	var text string
	calls := map[int]*openai.ToolCall{}
	var order []int

	for {
		if gen.Stale(generation) {
			return text, orderedToolCalls(calls, order), nil
		}

		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return text, orderedToolCalls(calls, order), nil
		}
		if err != nil {
			return "", nil, classifyErr(err)
		}

		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.Content != "" {
			text += delta.Content
			onDelta(Delta{Content: delta.Content})
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			existing, ok := calls[idx]
			if !ok {
				call := tc
				calls[idx] = &call
				order = append(order, idx)
				continue
			}
			existing.Function.Arguments += tc.Function.Arguments
			if tc.ID != "" {
				existing.ID = tc.ID
			}
			if tc.Function.Name != "" {
				existing.Function.Name = tc.Function.Name
			}
		}
	}
}

func orderedToolCalls(calls map[int]*openai.ToolCall, order []int) []openai.ToolCall {
	if len(order) == 0 {
		return nil
	}
	out := make([]openai.ToolCall, 0, len(order))
	for _, idx := range order {
		out = append(out, *calls[idx])
	}
	return out
}

func toOpenAIMessages(turns []Turn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(turns))
	for i, t := range turns {
		out[i] = openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Text}
	}
	return out
}

// classifyErr buckets an OpenAI client error into the server's error
// taxonomy: 4xx responses are permanent (not retried), everything else
// is treated as a transient network/backend fault.
func classifyErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 {
		return platformerrors.Wrap(platformerrors.KindPermanent, "dialog.stream_reply", "backend rejected request", err)
	}
	return platformerrors.Wrap(platformerrors.KindTransient, "dialog.stream_reply", "backend call failed", err)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func firstPositive(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
