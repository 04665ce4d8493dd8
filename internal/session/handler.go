package session

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"voxd-server/internal/audio"
	"voxd-server/internal/dialog"
	"voxd-server/internal/domain/eventbus"
	"voxd-server/internal/interrupt"
	platformconfig "voxd-server/internal/platform/config"
	platformerrors "voxd-server/internal/platform/errors"
	"voxd-server/internal/platform/logging"
	"voxd-server/internal/segmenter"
	"voxd-server/internal/splitter"
	"voxd-server/internal/synth"
	"voxd-server/internal/transcriber"
	"voxd-server/internal/vad"
	"voxd-server/internal/transport/ws"
	"voxd-server/internal/workerpool"
)

// Deps bundles the shared, process-global collaborators every session
// handler is built from: the worker pool and backend gate are shared
// across all sessions (§5 — "the worker pool is shared"), while each
// handler owns its own VAD, segmenter, dialog engine and interrupt
// token.
type Deps struct {
	Config      platformconfig.Config
	Store       Store
	Gate        dialog.HealthGate
	Pool        *workerpool.Pool
	Tools       *dialog.ToolRegistry
	Transcriber transcriber.Transcriber
	Synth       synth.Synthesizer
	Logger      *logging.Logger
}

// NewHandlerBuilder adapts Deps into the websocket transport's
// HandlerBuilder, constructing one Handler per upgraded connection.
func NewHandlerBuilder(deps Deps) ws.HandlerBuilder {
	return func(conn *ws.Connection, req *http.Request) (ws.SessionHandler, error) {
		return newHandler(deps, conn), nil
	}
}

// Handler is the pipeline-facing side of one websocket session: ingress
// decoding, utterance segmentation, transcription, dialog streaming,
// sentence splitting/prefetch, and synthesized-audio egress, all scoped
// to a single client connection.
type Handler struct {
	deps   Deps
	conn   *ws.Connection
	logger *logging.Logger

	sessionID string
	framer    *audio.Framer
	vadProv   vad.Provider
	seg       *segmenter.Segmenter
	token     *interrupt.Token
	engine    *dialog.Engine
	stats     connStats

	// turnCh is drained by the single goroutine runTurnLoop starts,
	// which is the only caller of processUtterance/runTurn: §3/§4.2/§5
	// all require at most one in-flight turn per session, so utterances
	// and test_question requests are serialized through here rather than
	// launched as independent goroutines that could race runTurn against
	// itself. A second queued turn waiting behind the active one is the
	// most this ever needs to hold, so the channel is unbuffered beyond
	// that single slot; anything past it is dropped rather than blocking
	// the read loop (and with it, receipt of the interrupt frame that
	// would otherwise clear the backlog).
	turnCh   chan func()
	turnDone chan struct{}

	mu                 sync.Mutex
	helloReceived      bool
	preHelloBuf        []byte
	activeTurn         bool
	activeQueue        *splitter.Queue
	partialText        strings.Builder
	ttsStartedThisTurn bool
}

func newHandler(deps Deps, conn *ws.Connection) *Handler {
	vadProv := vad.NewEnergyProvider(vad.EnergyConfig{})

	segCfg := segmenter.Config{
		SpeechThreshold:       deps.Config.VAD.SpeechThreshold,
		SilenceFramesRequired: deps.Config.Segmenter.SilenceFramesRequired,
		PrerollFrames:         deps.Config.Audio.PrerollMillis / audio.FrameMillis,
		MinUtteranceFrames:    secondsToFrames(deps.Config.Segmenter.MinUtteranceSeconds),
		MaxUtteranceFrames:    secondsToFrames(deps.Config.Segmenter.MaxUtteranceSeconds),
	}

	engineCfg := dialog.Config{
		BaseURL:        deps.Config.Dialog.BaseURL,
		Model:          deps.Config.Dialog.Model,
		Temperature:    deps.Config.Dialog.Temperature,
		RequestTimeout: deps.Config.Dialog.RequestTimeout,
		RetryAttempts:  deps.Config.Dialog.RetryAttempts,
		RetryBaseDelay: deps.Config.Dialog.RetryBaseDelay,
	}

	var tools *dialog.ToolRegistry
	if deps.Config.Dialog.ToolsEnabled {
		tools = deps.Tools
	}

	return &Handler{
		deps:      deps,
		conn:      conn,
		logger:    deps.Logger,
		sessionID: conn.GetID(),
		framer:    audio.NewFramer(),
		vadProv:   vadProv,
		seg:       segmenter.New(segCfg, vadProv),
		token:     interrupt.New(),
		engine:    dialog.NewEngine(engineCfg, deps.Config.Dialog.SystemPrompt, deps.Config.Dialog.MaxHistoryTurns, deps.Gate, tools, deps.Logger),
		turnCh:    make(chan func(), 1),
		turnDone:  make(chan struct{}),
	}
}

func secondsToFrames(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(seconds*1000) / audio.FrameMillis
}

// GetSessionID implements ws.SessionHandler.
func (h *Handler) GetSessionID() string { return h.sessionID }

// Close implements ws.SessionHandler: a best-effort final save, since
// the turn in flight (if any) already persists after it completes.
func (h *Handler) Close() {
	h.persist(context.Background())
}

// Handle implements ws.SessionHandler: it is the session's entire
// cooperative read loop, dispatching binary audio to the segmenter and
// text frames to the control-message switch. ctx is the session's own
// context, cancelled the moment the client disconnects, so an in-flight
// LLM stream or transcription call started from it unblocks immediately
// rather than running to its own timeout after there is no one left to
// hear the answer.
func (h *Handler) Handle(ctx context.Context) {
	eventbus.PublishAsync(eventbus.EventConnectionOpened, eventbus.ConnectionEventData{SessionID: h.sessionID})
	defer eventbus.PublishAsync(eventbus.EventConnectionClosed, eventbus.ConnectionEventData{SessionID: h.sessionID})

	go h.runTurnLoop()
	defer func() {
		close(h.turnCh)
		<-h.turnDone
	}()

	for {
		msgType, data, err := h.conn.ReadMessage()
		if err != nil {
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			h.handleAudio(ctx, data)
		case websocket.TextMessage:
			h.handleControl(ctx, data)
		}
	}
}

// runTurnLoop is the session's single turn-processing goroutine: the
// only caller of processUtterance and runTurn, so history and
// activeQueue/partialText are never touched by two turns at once.
func (h *Handler) runTurnLoop() {
	defer close(h.turnDone)
	for job := range h.turnCh {
		job()
	}
}

// enqueueTurn hands one turn to runTurnLoop. A turn already queued
// behind the active one is enough backlog to absorb normal speech
// pacing; anything beyond that is dropped rather than blocking the
// read loop, since a blocked read loop would also delay the interrupt
// frame that could clear the backlog.
func (h *Handler) enqueueTurn(job func()) {
	select {
	case h.turnCh <- job:
	default:
		if h.logger != nil {
			h.logger.Warn("turn dropped: previous turn still queued", "session", h.sessionID)
		}
	}
}

func (h *Handler) handleAudio(ctx context.Context, data []byte) {
	h.stats.recordAudioIn(len(data))

	h.mu.Lock()
	if !h.helloReceived {
		h.preHelloBuf = append(h.preHelloBuf, data...)
		maxBytes := audio.InputSampleRateHz * 4 // 1s of float32 PCM
		overflow := len(h.preHelloBuf) > maxBytes
		if overflow {
			h.preHelloBuf = nil
		}
		h.mu.Unlock()
		if overflow {
			h.sendError(ErrCodeHelloRequired, goerrors.New("audio received before hello, discarding buffered input"))
		}
		return
	}
	h.mu.Unlock()

	frames := h.framer.Push(data)
	h.ingestFrames(ctx, frames)
}

func (h *Handler) ingestFrames(ctx context.Context, frames []audio.Frame) {
	for _, frame := range frames {
		utt, ok := h.seg.Push(frame)
		if !ok {
			continue
		}
		generation := h.token.Current()
		h.stats.recordUtterance()
		h.enqueueTurn(func() {
			h.processUtterance(ctx, utt, generation)
		})
	}
}

func (h *Handler) handleControl(ctx context.Context, data []byte) {
	var env ClientFrame
	if err := unmarshal(data, &env); err != nil {
		h.sendError(ErrCodeProtocol, err)
		return
	}

	switch env.Type {
	case "hello":
		h.handleHello(ctx, data)
	case "interrupt":
		h.handleInterrupt()
	case "load_session":
		h.handleLoadSession(ctx, data)
	case "test_question":
		h.handleTestQuestion(ctx, data)
	case "stats":
		h.sendControl(h.stats.snapshot())
	default:
		h.sendError(ErrCodeProtocol, fmt.Errorf("unknown frame type %q", env.Type))
	}
}

func (h *Handler) handleHello(ctx context.Context, data []byte) {
	var hello HelloFrame
	if err := unmarshal(data, &hello); err != nil {
		h.sendError(ErrCodeProtocol, err)
		return
	}

	h.mu.Lock()
	h.helloReceived = true
	buffered := h.preHelloBuf
	h.preHelloBuf = nil
	h.mu.Unlock()

	if hello.SessionID != "" {
		h.sessionID = hello.SessionID
		h.loadHistory(ctx, hello.SessionID)
	}

	if len(buffered) > 0 {
		frames := h.framer.Push(buffered)
		h.ingestFrames(ctx, frames)
	}
}

func (h *Handler) loadHistory(ctx context.Context, id string) {
	rec, err := h.deps.Store.Load(ctx, id)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("session load failed", "session", id, "error", err)
		}
		return
	}
	if rec == nil {
		return
	}
	h.engine.RestoreHistory(rec.ToDialogTurns())
}

// handleInterrupt implements the barge-in protocol of §4.7: bump the
// token, drain whatever is still queued for synthesis, close out a
// tts_start with a matching tts_stop only if one was actually sent, and
// rewind the dialog history to whatever partial reply had already been
// produced.
func (h *Handler) handleInterrupt() {
	oldGen := h.token.Current()
	newGen := h.token.Bump()
	eventbus.PublishAsync(eventbus.EventInterruptTriggered, eventbus.InterruptEventData{
		SessionID:     h.sessionID,
		NewGeneration: newGen,
		Reason:        "client_interrupt",
	})

	h.mu.Lock()
	queue := h.activeQueue
	ttsStarted := h.ttsStartedThisTurn
	partial := h.partialText.String()
	h.mu.Unlock()

	if queue != nil {
		queue.Drain()
	}

	if ttsStarted {
		h.sendControl(TTSStopFrame{Type: "tts_stop"})
		h.mu.Lock()
		h.ttsStartedThisTurn = false
		h.mu.Unlock()
	}

	// oldGen names the turn this interrupt is cutting off. RewindOnInterrupt
	// is itself a no-op unless that turn is still in flight and unfinalized,
	// so an interrupt received while idle, or one racing a turn that just
	// finished streaming on its own, never corrupts history.
	h.engine.RewindOnInterrupt(oldGen, partial)
}

func (h *Handler) handleLoadSession(ctx context.Context, data []byte) {
	var frame LoadSessionFrame
	if err := unmarshal(data, &frame); err != nil {
		h.sendError(ErrCodeProtocol, err)
		return
	}

	h.mu.Lock()
	busy := h.activeTurn
	h.mu.Unlock()
	if busy {
		h.sendError(ErrCodeBusy, goerrors.New("load_session deferred: a turn is already in progress"))
		return
	}

	h.sessionID = frame.SessionID
	h.loadHistory(ctx, frame.SessionID)
}

func (h *Handler) handleTestQuestion(ctx context.Context, data []byte) {
	var frame TestQuestionFrame
	if err := unmarshal(data, &frame); err != nil {
		h.sendError(ErrCodeProtocol, err)
		return
	}

	text := strings.TrimSpace(frame.Text)
	if text == "" {
		return
	}

	generation := h.token.Current()
	eventbus.PublishAsync(eventbus.EventTranscriptResult, eventbus.TranscriptEventData{SessionID: h.sessionID, Text: text})
	h.sendControl(TranscriptionFrame{Type: "transcription", Text: text})
	h.enqueueTurn(func() {
		h.runTurn(ctx, text, generation)
	})
}

func (h *Handler) processUtterance(ctx context.Context, utt *segmenter.Utterance, generation uint64) {
	if h.token.Stale(generation) {
		return
	}

	samples := flattenFrames(utt.Frames)
	if len(samples) == 0 {
		return
	}

	text, err := h.deps.Transcriber.Transcribe(ctx, samples)
	if err != nil {
		eventbus.PublishAsync(eventbus.EventTranscriptError, eventbus.SystemEventData{Level: "warn", Message: err.Error()})
		h.sendErrorForErr(err, ErrCodeBackendTransient)
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if h.token.Stale(generation) {
		return
	}

	eventbus.PublishAsync(eventbus.EventTranscriptResult, eventbus.TranscriptEventData{SessionID: h.sessionID, Text: text})
	h.sendControl(TranscriptionFrame{Type: "transcription", Text: text})
	h.runTurn(ctx, text, generation)
}

// runTurn drives one complete turn: append the user utterance, stream
// the assistant reply through the sentence splitter into the prefetch
// queue, and forward synthesized audio as it becomes deliverable in
// order.
func (h *Handler) runTurn(ctx context.Context, userText string, generation uint64) {
	h.mu.Lock()
	h.activeTurn = true
	h.partialText.Reset()
	h.ttsStartedThisTurn = false
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.activeTurn = false
		h.activeQueue = nil
		h.mu.Unlock()
	}()

	h.engine.AppendUser(generation, userText)

	sp := splitter.New(h.deps.Config.Splitter.MinChunkRunes)
	var synthesize splitter.SynthesizeFunc = h.deps.Synth.Synthesize
	if h.deps.Pool != nil {
		synthesize = func(ctx context.Context, text string) ([]byte, error) {
			var out []byte
			err := h.deps.Pool.Do(ctx, func() error {
				var synthErr error
				out, synthErr = h.deps.Synth.Synthesize(ctx, text)
				return synthErr
			})
			return out, err
		}
	}
	queue := splitter.NewQueue(h.deps.Config.Splitter.PrefetchDepth, synthesize, h.token, h.logger)

	h.mu.Lock()
	h.activeQueue = queue
	h.mu.Unlock()

	var ttsStarted bool
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for {
			chunk, ok := queue.Consume(ctx)
			if chunk == nil && !ok {
				return
			}
			if !ok {
				continue
			}
			if h.token.Stale(generation) {
				continue
			}
			if !ttsStarted {
				h.sendControl(TTSStartFrame{Type: "tts_start", SampleRate: audio.OutputSampleRateHz})
				h.mu.Lock()
				h.ttsStartedThisTurn = true
				h.mu.Unlock()
				ttsStarted = true
			}
			if err := h.conn.WriteMessage(websocket.BinaryMessage, chunk.Audio); err != nil {
				return
			}
			h.stats.recordEventOut()
		}
	}()

	index := 0
	streamErr := h.engine.StreamReply(ctx, generation, h.token, func(d dialog.Delta) {
		if d.Content != "" {
			h.mu.Lock()
			h.partialText.WriteString(d.Content)
			h.mu.Unlock()
			for _, sentence := range sp.Push(d.Content) {
				eventbus.PublishAsync(eventbus.EventSentenceReady, eventbus.SentenceEventData{SessionID: h.sessionID, Generation: generation, Index: index, Text: sentence})
				queue.Produce(ctx, index, sentence, generation)
				index++
			}
		}
		if d.Done {
			for _, sentence := range sp.Flush() {
				eventbus.PublishAsync(eventbus.EventSentenceReady, eventbus.SentenceEventData{SessionID: h.sessionID, Generation: generation, Index: index, Text: sentence})
				queue.Produce(ctx, index, sentence, generation)
				index++
			}
		}
	})

	queue.Close()
	<-consumerDone

	stale := h.token.Stale(generation)

	if streamErr != nil && !stale {
		eventbus.PublishAsync(eventbus.EventDialogError, eventbus.SystemEventData{Level: "warn", Message: streamErr.Error()})
		h.sendErrorForErr(streamErr, ErrCodeBackendTransient)
	}

	if !stale {
		h.mu.Lock()
		text := h.partialText.String()
		h.mu.Unlock()
		eventbus.PublishAsync(eventbus.EventDialogCompleted, eventbus.DialogEventData{SessionID: h.sessionID, Generation: generation, Content: text, IsFinal: true})
		h.sendControl(LLMResponseFrame{Type: "llm_response", Text: text})
	}
	if ttsStarted {
		h.sendControl(TTSStopFrame{Type: "tts_stop"})
	}

	h.persist(ctx)
}

func (h *Handler) persist(ctx context.Context) {
	if h.deps.Store == nil {
		return
	}
	rec := FromTurns(h.sessionID, h.engine.Turns())
	if err := h.deps.Store.Save(ctx, rec); err != nil && h.logger != nil {
		h.logger.Warn("session save failed", "session", h.sessionID, "error", err)
	}
}

func (h *Handler) sendControl(v any) {
	data, err := marshal(v)
	if err != nil {
		return
	}
	if err := h.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return
	}
	h.stats.recordEventOut()
}

func (h *Handler) sendError(code string, err error) {
	h.sendControl(ErrorFrame{Type: "error", Code: code, Message: err.Error()})
}

// sendErrorForErr classifies a pipeline error by its platformerrors.Kind
// and surfaces the appropriate error frame code, per the propagation
// policy of §7 (a KindCancellation error, e.g. from an interrupt racing
// the stream, is not a failure and is not reported at all).
func (h *Handler) sendErrorForErr(err error, fallback string) {
	code := fallback
	var typed *platformerrors.Error
	if goerrors.As(err, &typed) {
		switch typed.Kind {
		case platformerrors.KindPermanent:
			code = ErrCodeBackendPermanent
		case platformerrors.KindBackendUnavailable:
			code = ErrCodeBackendUnavailable
		case platformerrors.KindTransient:
			code = ErrCodeBackendTransient
		case platformerrors.KindCancellation:
			return
		}
	}
	h.sendError(code, err)
}

func flattenFrames(frames []audio.Frame) []float32 {
	out := make([]float32, 0, len(frames)*audio.FrameSamples)
	for _, f := range frames {
		out = append(out, f.Samples[:]...)
	}
	return out
}
